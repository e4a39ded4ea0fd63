package workflow

import (
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/accountfactory/internal/activity"
)

// registerActivities registers activity structs with the test workflow
// environment so that parameter and return types can be deserialized
// correctly by the Temporal test framework. In unit tests, all activities
// are mocked via OnActivity, but the framework still needs the type
// information for proper serialization/deserialization of activity
// parameters and return values.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Gate{})
	env.RegisterActivity(&activity.TargetState{})
	env.RegisterActivity(&activity.Deploy{})
	env.RegisterActivity(&activity.Resolve{})
	env.RegisterActivity(&activity.Ancillary{})
	env.RegisterActivity(&activity.Validation{})
	env.RegisterActivity(&activity.Directory{})
	env.RegisterActivity(&activity.Notify{})
}
