package activity

import (
	"context"
	"time"

	"github.com/edvin/accountfactory/internal/metrics"
	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/validate"
)

// Validation contains the post-provisioning validation activity.
type Validation struct {
	runner *validate.Runner
	plan   *validate.Plan
}

// NewValidation creates a new Validation activity struct.
func NewValidation(runner *validate.Runner, plan *validate.Plan) *Validation {
	return &Validation{runner: runner, plan: plan}
}

// ValidateAccountResourcesParams holds parameters for one validation sweep.
type ValidateAccountResourcesParams struct {
	Account   model.ProvisionedAccount `json:"account"`
	Request   model.ProvisionRequest   `json:"request"`
	StartedAt time.Time                `json:"started_at"`
}

// ValidateAccountResourcesResult carries the per-check results and the
// aggregate status.
type ValidateAccountResourcesResult struct {
	Status  string                   `json:"status"`
	Results []model.ValidationResult `json:"results"`
}

// ValidateAccountResources runs the validation checks selected by the
// account's organizational unit and aggregates the outcome.
func (a *Validation) ValidateAccountResources(ctx context.Context, params ValidateAccountResourcesParams) (ValidateAccountResourcesResult, error) {
	specs := a.plan.For(params.Request.ManagedOrgUnit)
	target := validate.Target{
		Account:   params.Account,
		Request:   params.Request,
		StartedAt: params.StartedAt,
	}

	results, status, err := a.runner.Run(ctx, specs, target)
	if err != nil {
		// A check name with no implementation is a deployment bug, not
		// something retries can fix.
		return ValidateAccountResourcesResult{}, terminal(err, ErrTypeUnknownCheck)
	}

	for _, result := range results {
		metrics.ValidationChecks.WithLabelValues(result.Check, result.Status).Inc()
	}
	return ValidateAccountResourcesResult{Status: status, Results: results}, nil
}
