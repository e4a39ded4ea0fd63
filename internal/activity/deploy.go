package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/pipeline"
)

// Deploy contains activities that drive the deployment pipeline.
type Deploy struct {
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger
}

// NewDeploy creates a new Deploy activity struct.
func NewDeploy(p *pipeline.Pipeline, logger zerolog.Logger) *Deploy {
	return &Deploy{pipeline: p, logger: logger}
}

// StartDeploymentResult holds the execution handle returned by the pipeline.
type StartDeploymentResult struct {
	ExecutionID string `json:"execution_id"`
}

// StartDeployment triggers one pipeline run and returns its execution ID.
func (a *Deploy) StartDeployment(ctx context.Context) (StartDeploymentResult, error) {
	id, err := a.pipeline.Start(ctx)
	if err != nil {
		return StartDeploymentResult{}, fmt.Errorf("start deployment pipeline: %w", err)
	}
	a.logger.Info().Str("execution_id", id).Msg("started deployment pipeline")
	return StartDeploymentResult{ExecutionID: id}, nil
}

// GetDeploymentStatusParams holds parameters for polling a pipeline run.
type GetDeploymentStatusParams struct {
	ExecutionID string `json:"execution_id"`
}

// GetDeploymentStatusResult is one poll observation. RootCause is set only
// when the run failed.
type GetDeploymentStatusResult struct {
	Status    model.DeploymentStatus `json:"status"`
	RootCause string                 `json:"root_cause,omitempty"`
}

// GetDeploymentStatus returns the current status of a pipeline execution.
// Freshly started executions can be invisible for a short window; the
// lookup retries internally before giving up. On failure the result carries
// the failed stage and, for build actions, the failed build phase.
func (a *Deploy) GetDeploymentStatus(ctx context.Context, params GetDeploymentStatusParams) (GetDeploymentStatusResult, error) {
	status, err := a.pipeline.Status(ctx, params.ExecutionID)
	if err != nil {
		return GetDeploymentStatusResult{}, err
	}

	result := GetDeploymentStatusResult{Status: status}
	if status == model.DeploymentFailed {
		detail, err := a.pipeline.FailureDetail(ctx, params.ExecutionID)
		if err != nil {
			a.logger.Warn().Err(err).Str("execution_id", params.ExecutionID).
				Msg("could not fetch pipeline failure detail")
			result.RootCause = "pipeline execution failed"
		} else {
			result.RootCause = detail.RootCause()
		}
	}
	return result, nil
}
