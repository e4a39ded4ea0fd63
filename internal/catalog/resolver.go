// Package catalog resolves the identity of a provisioned account from the
// catalog provisioning service (AWS Service Catalog) by display name.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/servicecatalog"
	sctypes "github.com/aws/aws-sdk-go-v2/service/servicecatalog/types"

	"github.com/edvin/accountfactory/internal/model"
)

// API is the subset of the Service Catalog client used by the resolver.
type API interface {
	SearchProvisionedProducts(ctx context.Context, params *servicecatalog.SearchProvisionedProductsInput, optFns ...func(*servicecatalog.Options)) (*servicecatalog.SearchProvisionedProductsOutput, error)
}

// ErrUnderChange reports that the provisioned product exists but is still
// being created or updated. Transient; callers retry.
var ErrUnderChange = errors.New("provisioned product is under change")

// NotFoundError reports that no provisioned product matched the name. The
// resolver runs only after the deployment succeeded, so absence here is a
// caller ordering bug or an out-of-band deletion, not a transient state.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provisioned product %q not found in service catalog", e.Name)
}

// TerminalStateError reports a provisioned product in an error state the
// workflow cannot recover from.
type TerminalStateError struct {
	Name          string
	Status        string
	StatusMessage string
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("provisioned product %q is %s: %s", e.Name, e.Status, e.StatusMessage)
}

// Resolver looks up provisioned products by display name.
type Resolver struct {
	sc API
}

// NewResolver creates a Resolver.
func NewResolver(sc API) *Resolver {
	return &Resolver{sc: sc}
}

// Resolve returns the account identity behind the named provisioned
// product. Tainted/errored products fail hard, in-flight changes return
// ErrUnderChange, and absence returns NotFoundError.
func (r *Resolver) Resolve(ctx context.Context, name string) (model.ProvisionedAccount, error) {
	out, err := r.sc.SearchProvisionedProducts(ctx, &servicecatalog.SearchProvisionedProductsInput{
		AccessLevelFilter: &sctypes.AccessLevelFilter{
			Key:   sctypes.AccessLevelFilterKeyAccount,
			Value: aws.String("self"),
		},
		Filters: map[string][]string{
			"SearchQuery": {"name:" + name},
		},
	})
	if err != nil {
		return model.ProvisionedAccount{}, fmt.Errorf("search provisioned products: %w", err)
	}
	if len(out.ProvisionedProducts) == 0 {
		return model.ProvisionedAccount{}, &NotFoundError{Name: name}
	}

	product := out.ProvisionedProducts[0]
	switch product.Status {
	case sctypes.ProvisionedProductStatusAvailable:
		return model.ProvisionedAccount{
			AccountID:            aws.ToString(product.PhysicalId),
			ProvisionedProductID: aws.ToString(product.Id),
			Name:                 aws.ToString(product.Name),
		}, nil
	case sctypes.ProvisionedProductStatusTainted, sctypes.ProvisionedProductStatusError:
		return model.ProvisionedAccount{}, &TerminalStateError{
			Name:          aws.ToString(product.Name),
			Status:        string(product.Status),
			StatusMessage: aws.ToString(product.StatusMessage),
		}
	default:
		// UNDER_CHANGE, PLAN_IN_PROGRESS.
		return model.ProvisionedAccount{}, ErrUnderChange
	}
}
