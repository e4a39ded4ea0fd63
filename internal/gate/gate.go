// Package gate checks for external processes that must not overlap with an
// account-creation run: the shared deployment pipeline is serial, and the
// account decommission job mutates the same declarative state.
package gate

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"

	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/pipeline"
)

// Runner reports in-progress executions of the deployment pipeline.
type Runner interface {
	Name() string
	RunningExecutions(ctx context.Context) ([]string, error)
}

// Gate resolves the set of currently blocking external processes. Each
// configured resource is queried exactly once per Check; unset resources are
// skipped. Check has no side effects and a non-empty result is not an error:
// the caller retries later.
type Gate struct {
	decommissionProject string
	deployPipeline      Runner
	cb                  pipeline.CodeBuildAPI
}

// New creates a Gate. Either resource may be empty/nil to skip that check.
func New(decommissionProject string, deployPipeline Runner, cb pipeline.CodeBuildAPI) *Gate {
	return &Gate{
		decommissionProject: decommissionProject,
		deployPipeline:      deployPipeline,
		cb:                  cb,
	}
}

// Check queries each watched resource and returns the subset that is busy.
func (g *Gate) Check(ctx context.Context) (model.GateResult, error) {
	var result model.GateResult

	if g.decommissionProject != "" {
		busy, err := g.decommissionRunning(ctx)
		if err != nil {
			return model.GateResult{}, err
		}
		if busy {
			result.Blocking = append(result.Blocking, model.BlockedResource{
				Kind: "CodeBuild",
				Name: g.decommissionProject,
			})
		}
	}

	if g.deployPipeline != nil {
		running, err := g.deployPipeline.RunningExecutions(ctx)
		if err != nil {
			return model.GateResult{}, err
		}
		if len(running) > 0 {
			result.Blocking = append(result.Blocking, model.BlockedResource{
				Kind: "CodePipeline",
				Name: g.deployPipeline.Name(),
			})
		}
	}

	return result, nil
}

// decommissionRunning reports whether any build of the decommission project
// is in progress. Only the most recent page of builds is inspected; builds
// are returned newest first.
func (g *Gate) decommissionRunning(ctx context.Context) (bool, error) {
	list, err := g.cb.ListBuildsForProject(ctx, &codebuild.ListBuildsForProjectInput{
		ProjectName: aws.String(g.decommissionProject),
	})
	if err != nil {
		return false, fmt.Errorf("list builds for %s: %w", g.decommissionProject, err)
	}
	if len(list.Ids) == 0 {
		return false, nil
	}

	builds, err := g.cb.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{Ids: list.Ids})
	if err != nil {
		return false, fmt.Errorf("get builds for %s: %w", g.decommissionProject, err)
	}
	for _, b := range builds.Builds {
		if b.BuildStatus == cbtypes.StatusTypeInProgress {
			return true, nil
		}
	}
	return false, nil
}
