package validate

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/edvin/accountfactory/internal/model"
)

// Runner executes planned checks concurrently and aggregates the results.
type Runner struct {
	checks map[string]Check
}

// NewRunner creates a Runner over the given checks.
func NewRunner(checks ...Check) *Runner {
	byKind := make(map[string]Check, len(checks))
	for _, check := range checks {
		byKind[check.Kind()] = check
	}
	return &Runner{checks: byKind}
}

// Run executes the planned checks against the target. A spec naming a kind
// with no registered check is a configuration error, not a failed result.
// The returned results are ordered by check name so repeated sweeps compare
// stable.
func (r *Runner) Run(ctx context.Context, specs []CheckSpec, target Target) ([]model.ValidationResult, string, error) {
	selected := make([]Check, 0, len(specs))
	for _, spec := range specs {
		check, ok := r.checks[spec.Kind]
		if !ok {
			return nil, "", fmt.Errorf("unknown validation check %q", spec.Kind)
		}
		selected = append(selected, check)
	}

	perSpec := make([][]model.ValidationResult, len(specs))
	group, gctx := errgroup.WithContext(ctx)
	for i, check := range selected {
		group.Go(func() error {
			perSpec[i] = check.Run(gctx, target, specs[i].Targets)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, "", err
	}

	var results []model.ValidationResult
	for _, batch := range perSpec {
		results = append(results, batch...)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Check < results[j].Check })
	return results, model.AggregateValidation(results), nil
}
