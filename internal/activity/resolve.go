package activity

import (
	"context"
	"errors"

	"github.com/edvin/accountfactory/internal/catalog"
	"github.com/edvin/accountfactory/internal/model"
)

// Resolve contains the provisioned-account resolution activity.
type Resolve struct {
	resolver *catalog.Resolver
}

// NewResolve creates a new Resolve activity struct.
func NewResolve(r *catalog.Resolver) *Resolve {
	return &Resolve{resolver: r}
}

// ResolveProvisionedAccountParams holds parameters for resolving an account.
type ResolveProvisionedAccountParams struct {
	AccountName string `json:"account_name"`
}

// ResolveProvisionedAccount maps an account name to its provisioned
// identity. Products still under change surface as retryable errors so the
// retry policy keeps polling; tainted, errored and missing products fail
// the run permanently.
func (a *Resolve) ResolveProvisionedAccount(ctx context.Context, params ResolveProvisionedAccountParams) (model.ProvisionedAccount, error) {
	account, err := a.resolver.Resolve(ctx, params.AccountName)
	if err != nil {
		var notFound *catalog.NotFoundError
		if errors.As(err, &notFound) {
			return model.ProvisionedAccount{}, terminal(err, ErrTypeAccountNotFound)
		}
		var term *catalog.TerminalStateError
		if errors.As(err, &term) {
			return model.ProvisionedAccount{}, terminal(err, ErrTypeAccountTerminal)
		}
		return model.ProvisionedAccount{}, err
	}
	return account, nil
}
