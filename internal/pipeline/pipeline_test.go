package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/accountfactory/internal/model"
)

// fakeCodePipeline serves scripted responses for GetPipelineExecution and
// records call counts.
type fakeCodePipeline struct {
	CodePipelineAPI

	statusScript []any // either cptypes.PipelineExecutionStatus or error
	statusCalls  int

	startedExecutionID string
	summaries          []cptypes.PipelineExecutionSummary
	actionDetails      []cptypes.ActionExecutionDetail
	declaration        *cptypes.PipelineDeclaration
}

func (f *fakeCodePipeline) StartPipelineExecution(_ context.Context, _ *codepipeline.StartPipelineExecutionInput, _ ...func(*codepipeline.Options)) (*codepipeline.StartPipelineExecutionOutput, error) {
	return &codepipeline.StartPipelineExecutionOutput{
		PipelineExecutionId: aws.String(f.startedExecutionID),
	}, nil
}

func (f *fakeCodePipeline) GetPipelineExecution(_ context.Context, _ *codepipeline.GetPipelineExecutionInput, _ ...func(*codepipeline.Options)) (*codepipeline.GetPipelineExecutionOutput, error) {
	step := f.statusScript[f.statusCalls]
	f.statusCalls++
	if err, ok := step.(error); ok {
		return nil, err
	}
	return &codepipeline.GetPipelineExecutionOutput{
		PipelineExecution: &cptypes.PipelineExecution{
			Status: step.(cptypes.PipelineExecutionStatus),
		},
	}, nil
}

func (f *fakeCodePipeline) ListPipelineExecutions(_ context.Context, _ *codepipeline.ListPipelineExecutionsInput, _ ...func(*codepipeline.Options)) (*codepipeline.ListPipelineExecutionsOutput, error) {
	return &codepipeline.ListPipelineExecutionsOutput{
		PipelineExecutionSummaries: f.summaries,
	}, nil
}

func (f *fakeCodePipeline) ListActionExecutions(_ context.Context, _ *codepipeline.ListActionExecutionsInput, _ ...func(*codepipeline.Options)) (*codepipeline.ListActionExecutionsOutput, error) {
	return &codepipeline.ListActionExecutionsOutput{
		ActionExecutionDetails: f.actionDetails,
	}, nil
}

func (f *fakeCodePipeline) GetPipeline(_ context.Context, _ *codepipeline.GetPipelineInput, _ ...func(*codepipeline.Options)) (*codepipeline.GetPipelineOutput, error) {
	return &codepipeline.GetPipelineOutput{Pipeline: f.declaration}, nil
}

type fakeCodeBuild struct {
	CodeBuildAPI

	builds []cbtypes.Build
}

func (f *fakeCodeBuild) BatchGetBuilds(_ context.Context, _ *codebuild.BatchGetBuildsInput, _ ...func(*codebuild.Options)) (*codebuild.BatchGetBuildsOutput, error) {
	return &codebuild.BatchGetBuildsOutput{Builds: f.builds}, nil
}

func newTestPipeline(cp *fakeCodePipeline, cb *fakeCodeBuild) *Pipeline {
	p := New("platform-pipeline", cp, cb)
	p.delay = func(context.Context, time.Duration) error { return nil }
	return p
}

func TestStatus_SucceededWithoutRetry(t *testing.T) {
	cp := &fakeCodePipeline{statusScript: []any{cptypes.PipelineExecutionStatusSucceeded}}
	p := newTestPipeline(cp, nil)

	status, err := p.Status(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentSucceeded, status)
	assert.Equal(t, 1, cp.statusCalls)
}

func TestStatus_NotFoundRetriesThenSucceeds(t *testing.T) {
	notFound := &cptypes.PipelineExecutionNotFoundException{}
	cp := &fakeCodePipeline{statusScript: []any{
		notFound, notFound, cptypes.PipelineExecutionStatusSucceeded,
	}}
	p := newTestPipeline(cp, nil)

	status, err := p.Status(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, model.DeploymentSucceeded, status)
	assert.Equal(t, 3, cp.statusCalls)
}

func TestStatus_NotFoundExhaustsRetryCeiling(t *testing.T) {
	script := make([]any, lookupAttempts+1)
	for i := range script {
		script[i] = &cptypes.PipelineExecutionNotFoundException{}
	}
	cp := &fakeCodePipeline{statusScript: script}
	p := newTestPipeline(cp, nil)

	_, err := p.Status(context.Background(), "exec-1")
	require.Error(t, err)
	var notFound *cptypes.PipelineExecutionNotFoundException
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, lookupAttempts+1, cp.statusCalls)
}

func TestStatus_Normalization(t *testing.T) {
	tests := []struct {
		provider cptypes.PipelineExecutionStatus
		expected model.DeploymentStatus
	}{
		{cptypes.PipelineExecutionStatusSucceeded, model.DeploymentSucceeded},
		{cptypes.PipelineExecutionStatusInProgress, model.DeploymentInProgress},
		{cptypes.PipelineExecutionStatusFailed, model.DeploymentFailed},
		{cptypes.PipelineExecutionStatusStopped, model.DeploymentStopped},
		{cptypes.PipelineExecutionStatusSuperseded, model.DeploymentStopped},
		{cptypes.PipelineExecutionStatusCancelled, model.DeploymentStopped},
	}
	for _, tt := range tests {
		cp := &fakeCodePipeline{statusScript: []any{tt.provider}}
		p := newTestPipeline(cp, nil)
		status, err := p.Status(context.Background(), "exec")
		require.NoError(t, err)
		assert.Equal(t, tt.expected, status)
	}
}

func TestRunningExecutions_FiltersInProgress(t *testing.T) {
	cp := &fakeCodePipeline{summaries: []cptypes.PipelineExecutionSummary{
		{PipelineExecutionId: aws.String("a"), Status: cptypes.PipelineExecutionStatusSucceeded},
		{PipelineExecutionId: aws.String("b"), Status: cptypes.PipelineExecutionStatusInProgress},
		{PipelineExecutionId: aws.String("c"), Status: cptypes.PipelineExecutionStatusInProgress},
	}}
	p := newTestPipeline(cp, nil)

	running, err := p.RunningExecutions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, running)
}

func TestFailureDetail_DrillsIntoCodeBuild(t *testing.T) {
	cp := &fakeCodePipeline{actionDetails: []cptypes.ActionExecutionDetail{
		{
			StageName:  aws.String("Source"),
			ActionName: aws.String("Fetch"),
			Status:     cptypes.ActionExecutionStatusSucceeded,
		},
		{
			StageName:  aws.String("Deploy"),
			ActionName: aws.String("Apply"),
			Status:     cptypes.ActionExecutionStatusFailed,
			Input: &cptypes.ActionExecutionInput{
				ActionTypeId: &cptypes.ActionTypeId{Provider: aws.String("CodeBuild")},
			},
			Output: &cptypes.ActionExecutionOutput{
				ExecutionResult: &cptypes.ActionExecutionResult{
					ExternalExecutionId:      aws.String("build-42"),
					ExternalExecutionSummary: aws.String("Build failed"),
				},
			},
		},
	}}
	cb := &fakeCodeBuild{builds: []cbtypes.Build{{
		Id: aws.String("build-42"),
		Phases: []cbtypes.BuildPhase{
			{PhaseType: cbtypes.BuildPhaseTypeInstall, PhaseStatus: cbtypes.StatusTypeSucceeded},
			{
				PhaseType:   cbtypes.BuildPhaseTypeBuild,
				PhaseStatus: cbtypes.StatusTypeFailed,
				Contexts: []cbtypes.PhaseContext{
					{Message: aws.String("COMMAND_EXECUTION_ERROR: exit status 1")},
				},
			},
		},
	}}}
	p := newTestPipeline(cp, cb)

	detail, err := p.FailureDetail(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "Deploy", detail.Stage)
	assert.Equal(t, "Apply", detail.Action)
	require.NotNil(t, detail.Build)
	assert.Equal(t, "BUILD", detail.Build.Phase)
	assert.Equal(t, "FAILED", detail.Build.Status)
	assert.Contains(t, detail.RootCause(), "COMMAND_EXECUTION_ERROR")
}

func TestFailureDetail_NoFailedAction(t *testing.T) {
	cp := &fakeCodePipeline{actionDetails: []cptypes.ActionExecutionDetail{
		{Status: cptypes.ActionExecutionStatusSucceeded},
	}}
	p := newTestPipeline(cp, nil)

	_, err := p.FailureDetail(context.Background(), "exec-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no failed action")
}

func TestSourceLocation(t *testing.T) {
	cp := &fakeCodePipeline{declaration: &cptypes.PipelineDeclaration{
		Stages: []cptypes.StageDeclaration{{
			Name: aws.String("Source"),
			Actions: []cptypes.ActionDeclaration{{
				Name: aws.String("Config"),
				ActionTypeId: &cptypes.ActionTypeId{
					Category: cptypes.ActionCategorySource,
					Provider: aws.String("S3"),
				},
				Configuration: map[string]string{
					"S3Bucket":    "config-bucket",
					"S3ObjectKey": "source/aws-accelerator-config.zip",
				},
			}},
		}},
	}}
	p := newTestPipeline(cp, nil)

	bucket, key, err := p.SourceLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "config-bucket", bucket)
	assert.Equal(t, "source/aws-accelerator-config.zip", key)
}

func TestStart(t *testing.T) {
	cp := &fakeCodePipeline{startedExecutionID: "exec-99"}
	p := newTestPipeline(cp, nil)

	id, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "exec-99", id)
}
