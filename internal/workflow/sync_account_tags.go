package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/accountfactory/internal/activity"
)

// SyncAccountTagsInput identifies the account to re-mirror.
type SyncAccountTagsInput struct {
	AccountID string `json:"account_id"`
}

// SyncAccountTagsWorkflow mirrors an account's organization tags into the
// member account's parameter store. Run when tags change after provisioning;
// CreateAccountWorkflow covers the initial mirror.
func SyncAccountTagsWorkflow(ctx workflow.Context, input SyncAccountTagsInput) (*activity.MirrorAccountTagsResult, error) {
	var result activity.MirrorAccountTagsResult
	if err := workflow.ExecuteActivity(defaultActivityCtx(ctx), "MirrorAccountTags",
		activity.MirrorAccountTagsParams{AccountID: input.AccountID},
	).Get(ctx, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
