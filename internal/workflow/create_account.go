package workflow

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/accountfactory/internal/activity"
	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/notify"
)

// TaskQueue is the Temporal task queue all account factory workflows and
// activities run on.
const TaskQueue = "account-factory"

// RunOptions tune the polling behavior of one run. Zero values fall back to
// the defaults below. The options travel in the workflow input so replays
// see the same values the original run did.
type RunOptions struct {
	GatePollInterval       time.Duration `json:"gate_poll_interval"`
	DeployPollInterval     time.Duration `json:"deploy_poll_interval"`
	ValidatePollInterval   time.Duration `json:"validate_poll_interval"`
	DirectorySyncInterval  time.Duration `json:"directory_sync_interval"`
	DirectorySyncWaitLimit int           `json:"directory_sync_wait_limit"`
}

func (o RunOptions) withDefaults() RunOptions {
	if o.GatePollInterval <= 0 {
		o.GatePollInterval = 5 * time.Minute
	}
	if o.DeployPollInterval <= 0 {
		o.DeployPollInterval = time.Minute
	}
	if o.ValidatePollInterval <= 0 {
		o.ValidatePollInterval = time.Minute
	}
	if o.DirectorySyncInterval <= 0 {
		o.DirectorySyncInterval = time.Minute
	}
	if o.DirectorySyncWaitLimit <= 0 {
		o.DirectorySyncWaitLimit = 15
	}
	return o
}

// CreateAccountInput is the input to CreateAccountWorkflow.
type CreateAccountInput struct {
	Request model.ProvisionRequest `json:"request"`
	Options RunOptions             `json:"options"`
}

// CreateAccountWorkflow provisions one organizational account end to end:
// wait for the shared deployment resources to be free, merge the account
// into the target state, run the deployment pipeline to completion, resolve
// the account's identity, decorate it with ancillary resources, validate
// the result, and optionally bind directory groups to the account. Any
// failure is published to the platform notification topic before the
// workflow fails.
func CreateAccountWorkflow(ctx workflow.Context, input CreateAccountInput) (*model.RunOutput, error) {
	opts := input.Options.withDefaults()
	output := &model.RunOutput{
		ExecutionID: workflow.GetInfo(ctx).WorkflowExecution.ID,
	}

	step, err := provision(ctx, input.Request, opts, output)
	if err != nil {
		publishFailure(ctx, input.Request, output.ExecutionID, step, err)
		return nil, err
	}

	sendCompletionEmail(ctx, input.Request, output)
	return output, nil
}

// provision runs the main sequence. It returns the name of the step that
// failed alongside the error so the failure notification can say where the
// run stopped.
func provision(ctx workflow.Context, req model.ProvisionRequest, opts RunOptions, output *model.RunOutput) (string, error) {
	logger := workflow.GetLogger(ctx)
	actx := defaultActivityCtx(ctx)

	// BypassCreation skips everything up to resolution: the account was
	// created out of band and the run only re-validates it.
	if !req.BypassCreation {
		// Shared deployment resources admit one run at a time.
		for {
			var gateResult model.GateResult
			if err := workflow.ExecuteActivity(actx, "CheckForRunningProcesses").Get(ctx, &gateResult); err != nil {
				return "gate", err
			}
			if gateResult.Clear() {
				break
			}
			logger.Info("deployment resources busy, waiting",
				"blocking", gateResult.Blocking,
				"retry_in", opts.GatePollInterval)
			if err := workflow.Sleep(ctx, opts.GatePollInterval); err != nil {
				return "gate", err
			}
		}

		if err := workflow.ExecuteActivity(actx, "MergeTargetState", activity.MergeTargetStateParams{
			Request: req,
		}).Get(ctx, nil); err != nil {
			return "merge", err
		}

		var started activity.StartDeploymentResult
		if err := workflow.ExecuteActivity(actx, "StartDeployment").Get(ctx, &started); err != nil {
			return "deploy", err
		}

		// Poll the pipeline until it reaches a terminal state.
		var status activity.GetDeploymentStatusResult
		for {
			if err := workflow.Sleep(ctx, opts.DeployPollInterval); err != nil {
				return "deploy", err
			}
			if err := workflow.ExecuteActivity(actx, "GetDeploymentStatus", activity.GetDeploymentStatusParams{
				ExecutionID: started.ExecutionID,
			}).Get(ctx, &status); err != nil {
				return "deploy", err
			}
			if status.Status.Terminal() {
				break
			}
			logger.Info("deployment in progress", "execution_id", started.ExecutionID)
		}
		if status.Status != model.DeploymentSucceeded {
			return "deploy", temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("deployment %s: %s", status.Status, status.RootCause),
				activity.ErrTypeDeploymentFailed, nil)
		}
	}

	deployedAt := workflow.Now(ctx)

	// Resolution tolerates the catalog still converging: under-change
	// products come back as retryable errors, so give this activity a
	// longer leash than the default.
	var account model.ProvisionedAccount
	if err := workflow.ExecuteActivity(resolveActivityCtx(ctx), "ResolveProvisionedAccount",
		activity.ResolveProvisionedAccountParams{AccountName: req.AccountName},
	).Get(ctx, &account); err != nil {
		return "resolve", err
	}
	output.Account = account

	if err := workflow.ExecuteActivity(actx, "CreateAncillaryResources", activity.CreateAncillaryResourcesParams{
		Account: account,
		Request: req,
	}).Get(ctx, nil); err != nil {
		return "ancillary", err
	}

	// Validation sweeps repeat while any check is still waiting on
	// propagation.
	for {
		var result activity.ValidateAccountResourcesResult
		if err := workflow.ExecuteActivity(actx, "ValidateAccountResources", activity.ValidateAccountResourcesParams{
			Account:   account,
			Request:   req,
			StartedAt: deployedAt,
		}).Get(ctx, &result); err != nil {
			return "validate", err
		}
		output.ValidationStatus = result.Status
		output.ValidationResults = result.Results
		if result.Status != model.ValidationInProgress {
			break
		}
		if err := workflow.Sleep(ctx, opts.ValidatePollInterval); err != nil {
			return "validate", err
		}
	}

	if len(req.ADIntegration) > 0 {
		if step, err := bindDirectoryGroups(ctx, req, opts, output); err != nil {
			return step, err
		}
	}

	return "", nil
}

// bindDirectoryGroups pushes the requested AD groups into the identity
// center and grants them their permission sets on the account. Sync
// propagation is bounded: once the wait limit is hit the run fails.
func bindDirectoryGroups(ctx workflow.Context, req model.ProvisionRequest, opts RunOptions, output *model.RunOutput) (string, error) {
	logger := workflow.GetLogger(ctx)
	actx := defaultActivityCtx(ctx)

	if err := workflow.ExecuteActivity(actx, "SyncDirectoryGroups", activity.SyncDirectoryGroupsParams{
		GroupNames: req.GroupNames(),
	}).Get(ctx, nil); err != nil {
		return "directory-sync", err
	}

	waits := 0
	for {
		var sync activity.CheckGroupSyncResult
		if err := workflow.ExecuteActivity(actx, "CheckGroupSync", activity.CheckGroupSyncParams{
			GroupNames: req.GroupNames(),
		}).Get(ctx, &sync); err != nil {
			return "directory-sync", err
		}
		if sync.Synced {
			break
		}
		waits++
		if waits >= opts.DirectorySyncWaitLimit {
			return "directory-sync", temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("groups %v not synced after %d checks", sync.Missing, waits),
				activity.ErrTypeExceededWaitLimit, nil)
		}
		logger.Info("directory groups not synced yet",
			"missing", sync.Missing,
			"wait", waits)
		if err := workflow.Sleep(ctx, opts.DirectorySyncInterval); err != nil {
			return "directory-sync", err
		}
	}

	var attached activity.AttachPermissionSetsResult
	if err := workflow.ExecuteActivity(actx, "AttachPermissionSets", activity.AttachPermissionSetsParams{
		AccountID: output.Account.AccountID,
		Mappings:  req.ADIntegration,
	}).Get(ctx, &attached); err != nil {
		return "permission-sets", err
	}
	output.GroupAssignments = attached.Assignments
	return "", nil
}

// publishFailure notifies the platform topic about a failed run. It is
// best-effort: the original error is what the workflow reports.
func publishFailure(ctx workflow.Context, req model.ProvisionRequest, executionID, step string, runErr error) {
	logger := workflow.GetLogger(ctx)
	if err := workflow.ExecuteActivity(notifyActivityCtx(ctx), "PublishFailure", notify.Failure{
		AccountName: req.AccountName,
		ExecutionID: executionID,
		Step:        step,
		Error:       runErr.Error(),
		FailedAt:    workflow.Now(ctx),
	}).Get(ctx, nil); err != nil {
		logger.Error("failure notification could not be published",
			"account", req.AccountName,
			"error", err)
	}
}

// sendCompletionEmail mails the requesting team. Best-effort: a completed
// account is not failed retroactively because the email bounced.
func sendCompletionEmail(ctx workflow.Context, req model.ProvisionRequest, output *model.RunOutput) {
	logger := workflow.GetLogger(ctx)
	if err := workflow.ExecuteActivity(notifyActivityCtx(ctx), "SendCompletionEmail", activity.SendCompletionEmailParams{
		Recipient: req.SupportDL,
		Output:    *output,
	}).Get(ctx, nil); err != nil {
		logger.Error("completion email could not be sent",
			"account", req.AccountName,
			"error", err)
	}
}
