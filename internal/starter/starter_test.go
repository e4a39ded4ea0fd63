package starter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/workflow"
)

type fakeRun struct {
	client.WorkflowRun

	id    string
	runID string
}

func (f fakeRun) GetID() string    { return f.id }
func (f fakeRun) GetRunID() string { return f.runID }

type fakeTemporal struct {
	taken     map[string]bool
	attempted []string
	options   []client.StartWorkflowOptions
	startErr  error
}

// ExecuteWorkflow mirrors the SDK's handling of taken workflow IDs: the
// AlreadyStarted error only surfaces when the start options ask for it;
// otherwise the client returns a handle to the existing run.
func (f *fakeTemporal) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, _ ...interface{}) (client.WorkflowRun, error) {
	f.attempted = append(f.attempted, options.ID)
	f.options = append(f.options, options)
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.taken[options.ID] {
		if !options.WorkflowExecutionErrorWhenAlreadyStarted {
			return fakeRun{id: options.ID, runID: "existing-run"}, nil
		}
		return nil, serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "")
	}
	return fakeRun{id: options.ID, runID: "run-1"}, nil
}

func TestExecutionName(t *testing.T) {
	assert.Equal(t, "Finance", ExecutionName("Finance", 0))
	assert.Equal(t, "Finance-01", ExecutionName("Finance", 1))
	assert.Equal(t, "Finance-12", ExecutionName("Finance", 12))
	assert.Equal(t, "My-Account", ExecutionName("My Account", 0))
}

func TestStartFirstNameFree(t *testing.T) {
	temporal := &fakeTemporal{taken: map[string]bool{}}
	s := New(temporal, workflow.RunOptions{})

	result, err := s.Start(context.Background(), model.ProvisionRequest{AccountName: "Finance"})
	require.NoError(t, err)
	assert.Equal(t, "Finance", result.ExecutionID)
	assert.Equal(t, []string{"Finance"}, temporal.attempted)
}

func TestStartSkipsTakenNames(t *testing.T) {
	temporal := &fakeTemporal{taken: map[string]bool{
		"Finance":    true,
		"Finance-01": true,
	}}
	s := New(temporal, workflow.RunOptions{})

	result, err := s.Start(context.Background(), model.ProvisionRequest{AccountName: "Finance"})
	require.NoError(t, err)
	assert.Equal(t, "Finance-02", result.ExecutionID)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, []string{"Finance", "Finance-01", "Finance-02"}, temporal.attempted)
}

func TestStartDemandsCollisionErrors(t *testing.T) {
	temporal := &fakeTemporal{taken: map[string]bool{"Finance": true}}
	s := New(temporal, workflow.RunOptions{})

	result, err := s.Start(context.Background(), model.ProvisionRequest{AccountName: "Finance"})
	require.NoError(t, err)
	assert.Equal(t, "Finance-01", result.ExecutionID)
	assert.NotEqual(t, "existing-run", result.RunID)

	require.Len(t, temporal.options, 2)
	for _, options := range temporal.options {
		assert.True(t, options.WorkflowExecutionErrorWhenAlreadyStarted)
		assert.Equal(t, enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE, options.WorkflowIDReusePolicy)
	}
}

func TestStartNamesExhausted(t *testing.T) {
	taken := map[string]bool{"Finance": true}
	for i := 1; i < maxNameAttempts; i++ {
		taken[ExecutionName("Finance", i)] = true
	}
	s := New(&fakeTemporal{taken: taken}, workflow.RunOptions{})

	_, err := s.Start(context.Background(), model.ProvisionRequest{AccountName: "Finance"})
	assert.ErrorIs(t, err, ErrNamesExhausted)
}

func TestStartOtherErrorsPropagate(t *testing.T) {
	s := New(&fakeTemporal{startErr: errors.New("connection refused")}, workflow.RunOptions{})

	_, err := s.Start(context.Background(), model.ProvisionRequest{AccountName: "Finance"})
	assert.ErrorContains(t, err, "connection refused")
}
