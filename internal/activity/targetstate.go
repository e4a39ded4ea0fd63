package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.temporal.io/sdk/activity"

	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/targetstate"
)

// TargetState contains activities that edit the deployment target-state
// bundle.
type TargetState struct {
	store           *targetstate.Store
	rootEmailPrefix string
	rootEmailDomain string
	logger          zerolog.Logger
}

// NewTargetState creates a new TargetState activity struct.
func NewTargetState(store *targetstate.Store, rootEmailPrefix, rootEmailDomain string, logger zerolog.Logger) *TargetState {
	return &TargetState{
		store:           store,
		rootEmailPrefix: rootEmailPrefix,
		rootEmailDomain: rootEmailDomain,
		logger:          logger,
	}
}

// MergeTargetStateParams holds parameters for merging an account into the
// target state.
type MergeTargetStateParams struct {
	Request model.ProvisionRequest `json:"request"`
}

// MergeTargetStateResult reports whether the bundle was rewritten.
type MergeTargetStateResult struct {
	Updated bool                     `json:"updated"`
	Entry   targetstate.AccountEntry `json:"entry"`
}

// MergeTargetState loads the target-state bundle, validates the requested
// placement against the organization config, and merges the account entry
// into the accounts config. An entry identical to what is already recorded
// is a no-op, so retried and resumed runs converge. A differing duplicate
// without force-update fails permanently.
func (a *TargetState) MergeTargetState(ctx context.Context, params MergeTargetStateParams) (MergeTargetStateResult, error) {
	req := params.Request

	bundle, err := a.store.Load(ctx)
	if err != nil {
		return MergeTargetStateResult{}, fmt.Errorf("load target state: %w", err)
	}

	if err := bundle.Organization.ValidatePlacement(req.ManagedOrgUnit); err != nil {
		var invalid *targetstate.InvalidPlacementError
		if errors.As(err, &invalid) {
			return MergeTargetStateResult{}, terminal(err, ErrTypeInvalidPlacement)
		}
		return MergeTargetStateResult{}, err
	}

	email := req.AccountEmail
	if email == "" {
		email = model.RootEmail(a.rootEmailPrefix, a.rootEmailDomain, req.AccountName)
	}
	entry := targetstate.AccountEntry{
		Name:               req.AccountName,
		Description:        fmt.Sprintf("%s workload account", req.AccountName),
		Email:              email,
		OrganizationalUnit: req.ManagedOrgUnit,
	}

	if existing, found := bundle.Accounts.Lookup(entry.Name); found && existing == entry {
		a.logger.Info().Str("account", entry.Name).Msg("target state already holds identical entry")
		return MergeTargetStateResult{Updated: false, Entry: entry}, nil
	}

	if err := bundle.Accounts.Merge(entry, req.ForceUpdate); err != nil {
		var dup *targetstate.DuplicateEntryError
		if errors.As(err, &dup) {
			return MergeTargetStateResult{}, terminal(err, ErrTypeDuplicateEntry)
		}
		return MergeTargetStateResult{}, fmt.Errorf("merge account entry: %w", err)
	}

	if err := a.store.Save(ctx, bundle); err != nil {
		return MergeTargetStateResult{}, fmt.Errorf("save target state: %w", err)
	}

	a.logger.Info().
		Str("account", entry.Name).
		Str("ou", entry.OrganizationalUnit).
		Str("activity", activity.GetInfo(ctx).ActivityType.Name).
		Msg("merged account into target state")
	return MergeTargetStateResult{Updated: true, Entry: entry}, nil
}
