// Package starter launches account-creation workflows with collision-free
// execution names. Names are derived from the account name; when a name was
// already used by an earlier run the starter appends a two-digit suffix and
// tries again.
package starter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/workflow"
)

// maxNameAttempts bounds the suffix search: base plus -01 through -99.
const maxNameAttempts = 100

// TemporalClient is the subset of the Temporal client used by the starter.
type TemporalClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, wf interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// ErrNamesExhausted reports that every candidate execution name for an
// account is taken.
var ErrNamesExhausted = errors.New("all execution names for account are taken")

// ExecutionName returns the candidate name for the given attempt: the base
// name first, then base-01, base-02 and so on. Spaces are not valid in
// workflow IDs we hand out, so they become dashes.
func ExecutionName(accountName string, attempt int) string {
	base := strings.ReplaceAll(accountName, " ", "-")
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s-%02d", base, attempt)
}

// Starter launches account-creation workflows.
type Starter struct {
	temporal TemporalClient
	options  workflow.RunOptions
}

// New creates a Starter.
func New(temporal TemporalClient, options workflow.RunOptions) *Starter {
	return &Starter{temporal: temporal, options: options}
}

// StartResult identifies the launched workflow.
type StartResult struct {
	ExecutionID string `json:"execution_id"`
	RunID       string `json:"run_id"`
}

// Start launches CreateAccountWorkflow for the request under the first free
// execution name. Used names are never reused, including those of completed
// runs, so every run of an account is distinguishable in history.
func (s *Starter) Start(ctx context.Context, req model.ProvisionRequest) (StartResult, error) {
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := ExecutionName(req.AccountName, attempt)
		// Without WorkflowExecutionErrorWhenAlreadyStarted the SDK swallows
		// the AlreadyStarted error and hands back the existing run, which
		// would make the suffix search silently reuse taken names.
		run, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
			ID:                                       name,
			TaskQueue:                                workflow.TaskQueue,
			WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflow.CreateAccountWorkflow, workflow.CreateAccountInput{
			Request: req,
			Options: s.options,
		})
		if err != nil {
			var started *serviceerror.WorkflowExecutionAlreadyStarted
			if errors.As(err, &started) {
				continue
			}
			return StartResult{}, fmt.Errorf("start workflow %s: %w", name, err)
		}
		return StartResult{ExecutionID: run.GetID(), RunID: run.GetRunID()}, nil
	}
	return StartResult{}, fmt.Errorf("%w: %s", ErrNamesExhausted, req.AccountName)
}
