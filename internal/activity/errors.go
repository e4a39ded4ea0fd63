package activity

import "go.temporal.io/sdk/temporal"

// Error types attached to non-retryable application errors. Business
// failures carry a stable type so workflows and the Temporal UI can tell
// them apart from transient infrastructure errors.
const (
	ErrTypeDuplicateEntry     = "DuplicateEntry"
	ErrTypeInvalidPlacement   = "InvalidPlacement"
	ErrTypeAccountNotFound    = "ProvisionedAccountNotFound"
	ErrTypeAccountTerminal    = "ProvisionedAccountTerminal"
	ErrTypeGroupNotFound      = "DirectoryGroupNotFound"
	ErrTypePermissionSet      = "PermissionSetNotFound"
	ErrTypeDeploymentFailed   = "DeploymentFailed"
	ErrTypeExceededWaitLimit  = "ExceededWaitTimeLimit"
	ErrTypeUnknownCheck       = "UnknownValidationCheck"
)

func terminal(err error, errType string) error {
	return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
}
