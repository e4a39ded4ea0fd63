package model

// DeploymentStatus is the terminal-or-not state of a pipeline execution,
// normalized from the provider's status strings.
type DeploymentStatus string

const (
	DeploymentSucceeded  DeploymentStatus = "Succeeded"
	DeploymentInProgress DeploymentStatus = "InProgress"
	DeploymentFailed     DeploymentStatus = "Failed"
	DeploymentStopped    DeploymentStatus = "Stopped"
)

// Terminal reports whether the deployment has reached a state it will not
// leave on its own.
func (s DeploymentStatus) Terminal() bool {
	return s != DeploymentInProgress
}

// Validation check statuses.
const (
	CheckPassed     = "Passed"
	CheckFailed     = "Failed"
	CheckInProgress = "InProgress"
)

// Aggregate validation statuses. A run is InProgress while any individual
// check is InProgress; otherwise Completed, regardless of Failed entries.
const (
	ValidationInProgress = "InProgress"
	ValidationCompleted  = "Completed"
)

// ValidationResult is the outcome of one post-provisioning check.
type ValidationResult struct {
	Check   string `json:"check"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AggregateValidation folds individual check results into one status per the
// rule above.
func AggregateValidation(results []ValidationResult) string {
	for _, r := range results {
		if r.Status == CheckInProgress {
			return ValidationInProgress
		}
	}
	return ValidationCompleted
}
