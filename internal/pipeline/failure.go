package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"
)

// BuildPhaseDetail describes the first failed phase of a CodeBuild build.
// Timestamps are intentionally omitted; they carry no signal for the caller.
type BuildPhaseDetail struct {
	Phase    string   `json:"phase"`
	Status   string   `json:"status"`
	Contexts []string `json:"contexts,omitempty"`
}

// FailureDetail identifies the failed stage and action of a pipeline
// execution, with build-level detail when the action is backed by CodeBuild.
type FailureDetail struct {
	Stage   string            `json:"stage"`
	Action  string            `json:"action"`
	Summary string            `json:"summary,omitempty"`
	Build   *BuildPhaseDetail `json:"build,omitempty"`
}

// RootCause renders the failure as one human-readable line.
func (d *FailureDetail) RootCause() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s action %s failed", d.Stage, d.Action)
	if d.Summary != "" {
		fmt.Fprintf(&b, ": %s", d.Summary)
	}
	if d.Build != nil {
		fmt.Fprintf(&b, " (build phase %s %s", d.Build.Phase, d.Build.Status)
		if len(d.Build.Contexts) > 0 {
			fmt.Fprintf(&b, ": %s", strings.Join(d.Build.Contexts, "; "))
		}
		b.WriteString(")")
	}
	return b.String()
}

// FailureDetail inspects a failed execution and returns the failed action
// with its root cause. Only meaningful once Status reported Failed.
func (p *Pipeline) FailureDetail(ctx context.Context, executionID string) (*FailureDetail, error) {
	out, err := p.cp.ListActionExecutions(ctx, &codepipeline.ListActionExecutionsInput{
		PipelineName: aws.String(p.name),
		Filter: &cptypes.ActionExecutionFilter{
			PipelineExecutionId: aws.String(executionID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list action executions for %s: %w", executionID, err)
	}

	var failed *cptypes.ActionExecutionDetail
	for i, action := range out.ActionExecutionDetails {
		if action.Status == cptypes.ActionExecutionStatusFailed {
			failed = &out.ActionExecutionDetails[i]
			break
		}
	}
	if failed == nil {
		return nil, fmt.Errorf("execution %s: no failed action found", executionID)
	}

	detail := &FailureDetail{
		Stage:  aws.ToString(failed.StageName),
		Action: aws.ToString(failed.ActionName),
	}

	var externalID string
	if failed.Output != nil && failed.Output.ExecutionResult != nil {
		detail.Summary = aws.ToString(failed.Output.ExecutionResult.ExternalExecutionSummary)
		externalID = aws.ToString(failed.Output.ExecutionResult.ExternalExecutionId)
	}

	// Drill one level deeper when the action is a CodeBuild job.
	if actionProvider(failed) == "CodeBuild" && externalID != "" {
		build, err := p.failedBuildPhase(ctx, externalID)
		if err != nil {
			return nil, err
		}
		detail.Build = build
	}

	return detail, nil
}

func actionProvider(action *cptypes.ActionExecutionDetail) string {
	if action.Input == nil || action.Input.ActionTypeId == nil {
		return ""
	}
	return aws.ToString(action.Input.ActionTypeId.Provider)
}

// failedBuildPhase fetches a build and returns its first FAILED phase.
func (p *Pipeline) failedBuildPhase(ctx context.Context, buildID string) (*BuildPhaseDetail, error) {
	out, err := p.cb.BatchGetBuilds(ctx, &codebuild.BatchGetBuildsInput{
		Ids: []string{buildID},
	})
	if err != nil {
		return nil, fmt.Errorf("get build %s: %w", buildID, err)
	}
	if len(out.Builds) == 0 {
		return nil, fmt.Errorf("build %s not found", buildID)
	}

	for _, phase := range out.Builds[0].Phases {
		if phase.PhaseStatus != cbtypes.StatusTypeFailed {
			continue
		}
		detail := &BuildPhaseDetail{
			Phase:  string(phase.PhaseType),
			Status: string(phase.PhaseStatus),
		}
		for _, c := range phase.Contexts {
			if msg := aws.ToString(c.Message); msg != "" {
				detail.Contexts = append(detail.Contexts, msg)
			}
		}
		return detail, nil
	}
	return nil, fmt.Errorf("build %s has no failed phase", buildID)
}
