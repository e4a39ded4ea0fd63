// Package pipeline drives the external deployment pipeline (AWS
// CodePipeline) that applies the target-state configuration: trigger a
// release, poll it to a terminal status, and drill into failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codepipeline"
	cptypes "github.com/aws/aws-sdk-go-v2/service/codepipeline/types"

	"github.com/edvin/accountfactory/internal/model"
)

// CodePipelineAPI is the subset of the CodePipeline client used here.
type CodePipelineAPI interface {
	StartPipelineExecution(ctx context.Context, params *codepipeline.StartPipelineExecutionInput, optFns ...func(*codepipeline.Options)) (*codepipeline.StartPipelineExecutionOutput, error)
	GetPipelineExecution(ctx context.Context, params *codepipeline.GetPipelineExecutionInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineExecutionOutput, error)
	GetPipeline(ctx context.Context, params *codepipeline.GetPipelineInput, optFns ...func(*codepipeline.Options)) (*codepipeline.GetPipelineOutput, error)
	ListPipelineExecutions(ctx context.Context, params *codepipeline.ListPipelineExecutionsInput, optFns ...func(*codepipeline.Options)) (*codepipeline.ListPipelineExecutionsOutput, error)
	ListActionExecutions(ctx context.Context, params *codepipeline.ListActionExecutionsInput, optFns ...func(*codepipeline.Options)) (*codepipeline.ListActionExecutionsOutput, error)
}

// CodeBuildAPI is the subset of the CodeBuild client used here.
type CodeBuildAPI interface {
	BatchGetBuilds(ctx context.Context, params *codebuild.BatchGetBuildsInput, optFns ...func(*codebuild.Options)) (*codebuild.BatchGetBuildsOutput, error)
	ListBuildsForProject(ctx context.Context, params *codebuild.ListBuildsForProjectInput, optFns ...func(*codebuild.Options)) (*codebuild.ListBuildsForProjectOutput, error)
}

// Immediately after a trigger the execution may not be queryable yet. The
// status lookup retries a not-found response this many times before
// surfacing it; this is a consistency retry, not a business retry.
const (
	lookupAttempts = 5
	lookupDelay    = 5 * time.Second
)

// Pipeline wraps one named deployment pipeline.
type Pipeline struct {
	name string
	cp   CodePipelineAPI
	cb   CodeBuildAPI

	// delay is overridable in tests.
	delay func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline for the named CodePipeline.
func New(name string, cp CodePipelineAPI, cb CodeBuildAPI) *Pipeline {
	return &Pipeline{name: name, cp: cp, cb: cb, delay: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Start triggers a release and returns the execution id.
func (p *Pipeline) Start(ctx context.Context) (string, error) {
	out, err := p.cp.StartPipelineExecution(ctx, &codepipeline.StartPipelineExecutionInput{
		Name: aws.String(p.name),
	})
	if err != nil {
		return "", fmt.Errorf("start pipeline %s: %w", p.name, err)
	}
	return aws.ToString(out.PipelineExecutionId), nil
}

// Status returns the normalized status of an execution, retrying not-found
// responses up to the lookup ceiling.
func (p *Pipeline) Status(ctx context.Context, executionID string) (model.DeploymentStatus, error) {
	var attempts int
	for {
		out, err := p.cp.GetPipelineExecution(ctx, &codepipeline.GetPipelineExecutionInput{
			PipelineName:        aws.String(p.name),
			PipelineExecutionId: aws.String(executionID),
		})
		if err != nil {
			var notFound *cptypes.PipelineExecutionNotFoundException
			if errors.As(err, &notFound) && attempts < lookupAttempts {
				attempts++
				if err := p.delay(ctx, lookupDelay); err != nil {
					return "", err
				}
				continue
			}
			return "", fmt.Errorf("get pipeline execution %s: %w", executionID, err)
		}
		return normalizeStatus(out.PipelineExecution.Status), nil
	}
}

func normalizeStatus(s cptypes.PipelineExecutionStatus) model.DeploymentStatus {
	switch s {
	case cptypes.PipelineExecutionStatusSucceeded:
		return model.DeploymentSucceeded
	case cptypes.PipelineExecutionStatusInProgress:
		return model.DeploymentInProgress
	case cptypes.PipelineExecutionStatusFailed:
		return model.DeploymentFailed
	default:
		// Cancelled, Stopped, Stopping, Superseded.
		return model.DeploymentStopped
	}
}

// RunningExecutions returns the ids of executions currently in progress.
func (p *Pipeline) RunningExecutions(ctx context.Context) ([]string, error) {
	var running []string
	var next *string
	for {
		out, err := p.cp.ListPipelineExecutions(ctx, &codepipeline.ListPipelineExecutionsInput{
			PipelineName: aws.String(p.name),
			NextToken:    next,
		})
		if err != nil {
			return nil, fmt.Errorf("list executions for pipeline %s: %w", p.name, err)
		}
		for _, s := range out.PipelineExecutionSummaries {
			if s.Status == cptypes.PipelineExecutionStatusInProgress {
				running = append(running, aws.ToString(s.PipelineExecutionId))
			}
		}
		if out.NextToken == nil {
			return running, nil
		}
		next = out.NextToken
	}
}

// SourceLocation resolves the S3 bucket and object key of the pipeline's
// configuration source artifact from the pipeline definition.
func (p *Pipeline) SourceLocation(ctx context.Context) (string, string, error) {
	out, err := p.cp.GetPipeline(ctx, &codepipeline.GetPipelineInput{
		Name: aws.String(p.name),
	})
	if err != nil {
		return "", "", fmt.Errorf("get pipeline %s: %w", p.name, err)
	}

	for _, stage := range out.Pipeline.Stages {
		for _, action := range stage.Actions {
			if action.ActionTypeId == nil || action.ActionTypeId.Category != cptypes.ActionCategorySource {
				continue
			}
			if aws.ToString(action.ActionTypeId.Provider) != "S3" {
				continue
			}
			bucket := action.Configuration["S3Bucket"]
			key := action.Configuration["S3ObjectKey"]
			if bucket == "" || key == "" {
				return "", "", fmt.Errorf("pipeline %s: S3 source action has no bucket/key configured", p.name)
			}
			return bucket, key, nil
		}
	}
	return "", "", fmt.Errorf("pipeline %s has no S3 source action", p.name)
}
