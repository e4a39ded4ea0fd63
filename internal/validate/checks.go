package validate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/edvin/accountfactory/internal/model"
)

// Target is the account under validation together with the request that
// produced it and the time the deployment finished. StartedAt anchors the
// propagation window: evidence missing inside the window is still settling,
// missing after it is a failure.
type Target struct {
	Account   model.ProvisionedAccount
	Request   model.ProvisionRequest
	StartedAt time.Time
}

// Check is a single validation capability. Targets name the concrete
// resources to inspect; kinds that inspect the account as a whole ignore
// them. Run returns one result per resource inspected.
type Check interface {
	Kind() string
	Run(ctx context.Context, target Target, targets []string) []model.ValidationResult
}

// Propagation resolves missing evidence into in-progress or failed
// depending on whether the propagation window has elapsed.
type Propagation struct {
	Window time.Duration
	now    func() time.Time
}

// NewPropagation creates a Propagation with the given window.
func NewPropagation(window time.Duration) *Propagation {
	return &Propagation{Window: window, now: time.Now}
}

// Resolve returns an in-progress result while the window is open and a
// failure once it has elapsed.
func (p *Propagation) Resolve(check string, startedAt time.Time, missing string) model.ValidationResult {
	if p.now().Sub(startedAt) < p.Window {
		return model.ValidationResult{
			Check:   check,
			Status:  model.CheckInProgress,
			Message: missing + " not visible yet",
		}
	}
	return model.ValidationResult{
		Check:   check,
		Status:  model.CheckFailed,
		Message: missing + " still missing after propagation window",
	}
}

func passed(check string) model.ValidationResult {
	return model.ValidationResult{Check: check, Status: model.CheckPassed}
}

func failed(check, message string) model.ValidationResult {
	return model.ValidationResult{Check: check, Status: model.CheckFailed, Message: message}
}

// resultName labels a per-resource result as kind/resource.
func resultName(kind, resource string) string {
	return kind + "/" + resource
}

// OrgsAPI is the subset of the Organizations wrapper used by checks.
type OrgsAPI interface {
	AccountInOU(ctx context.Context, accountID, ouPath string) (bool, error)
	AccountTags(ctx context.Context, accountID string) (map[string]string, error)
}

// PlacementCheck verifies the account landed in its managed organizational
// unit.
type PlacementCheck struct {
	Orgs        OrgsAPI
	Propagation *Propagation
}

func (c *PlacementCheck) Kind() string { return "placement" }

func (c *PlacementCheck) Run(ctx context.Context, target Target, _ []string) []model.ValidationResult {
	in, err := c.Orgs.AccountInOU(ctx, target.Account.AccountID, target.Request.ManagedOrgUnit)
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	if in {
		return []model.ValidationResult{passed(c.Kind())}
	}
	return []model.ValidationResult{c.Propagation.Resolve(c.Kind(), target.StartedAt,
		fmt.Sprintf("account in %s", target.Request.ManagedOrgUnit))}
}

// TagCheck verifies the required organization tags are present with the
// expected values.
type TagCheck struct {
	Orgs        OrgsAPI
	Propagation *Propagation
}

func (c *TagCheck) Kind() string { return "tags" }

func (c *TagCheck) Run(ctx context.Context, target Target, _ []string) []model.ValidationResult {
	actual, err := c.Orgs.AccountTags(ctx, target.Account.AccountID)
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	var missing []string
	for _, want := range target.Request.RequiredTags() {
		if got, ok := actual[want.Key]; !ok || got != want.Value {
			missing = append(missing, want.Key)
		}
	}
	if len(missing) == 0 {
		return []model.ValidationResult{passed(c.Kind())}
	}
	return []model.ValidationResult{c.Propagation.Resolve(c.Kind(), target.StartedAt,
		"tags "+strings.Join(missing, ", "))}
}

// AccountIAMFactory builds an IAM client scoped to the target account,
// typically via an assumed role.
type AccountIAMFactory func(ctx context.Context, accountID string) (IAMAPI, error)

// IAMAPI is the subset of the IAM client used by the alias and role checks.
type IAMAPI interface {
	ListAccountAliases(ctx context.Context, params *iam.ListAccountAliasesInput, optFns ...func(*iam.Options)) (*iam.ListAccountAliasesOutput, error)
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
}

// AliasCheck verifies the account alias matches the account name.
type AliasCheck struct {
	Factory     AccountIAMFactory
	Propagation *Propagation
}

func (c *AliasCheck) Kind() string { return "alias" }

func (c *AliasCheck) Run(ctx context.Context, target Target, _ []string) []model.ValidationResult {
	client, err := c.Factory(ctx, target.Account.AccountID)
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	out, err := client.ListAccountAliases(ctx, &iam.ListAccountAliasesInput{})
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	want := model.AccountAlias(target.Account.Name)
	for _, alias := range out.AccountAliases {
		if alias == want {
			return []model.ValidationResult{passed(c.Kind())}
		}
	}
	return []model.ValidationResult{c.Propagation.Resolve(c.Kind(), target.StartedAt, "alias "+want)}
}

// RoleCheck verifies the named IAM roles exist in the target account.
type RoleCheck struct {
	Factory     AccountIAMFactory
	Propagation *Propagation
}

func (c *RoleCheck) Kind() string { return "iam-role" }

func (c *RoleCheck) Run(ctx context.Context, target Target, targets []string) []model.ValidationResult {
	client, err := c.Factory(ctx, target.Account.AccountID)
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	results := make([]model.ValidationResult, 0, len(targets))
	for _, role := range targets {
		name := resultName(c.Kind(), role)
		_, err := client.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(role)})
		if err != nil {
			var notFound *iamtypes.NoSuchEntityException
			if errors.As(err, &notFound) {
				results = append(results, c.Propagation.Resolve(name, target.StartedAt, "role "+role))
				continue
			}
			results = append(results, failed(name, err.Error()))
			continue
		}
		results = append(results, passed(name))
	}
	return results
}

// AccountSSMFactory builds an SSM client scoped to the target account.
type AccountSSMFactory func(ctx context.Context, accountID string) (SSMAPI, error)

// SSMAPI is the subset of the SSM client used by the parameter check.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// ParameterCheck verifies the named SSM parameters exist in the target
// account. With no configured targets it inspects the account-name mirror
// parameter, which must also hold the account's name.
type ParameterCheck struct {
	Factory     AccountSSMFactory
	Propagation *Propagation
}

func (c *ParameterCheck) Kind() string { return "parameters" }

func (c *ParameterCheck) Run(ctx context.Context, target Target, targets []string) []model.ValidationResult {
	client, err := c.Factory(ctx, target.Account.AccountID)
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	mirror := model.TagParameterName("account-name")
	if len(targets) == 0 {
		targets = []string{mirror}
	}
	results := make([]model.ValidationResult, 0, len(targets))
	for _, param := range targets {
		name := resultName(c.Kind(), param)
		out, err := client.GetParameter(ctx, &ssm.GetParameterInput{Name: aws.String(param)})
		if err != nil {
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				results = append(results, c.Propagation.Resolve(name, target.StartedAt, "parameter "+param))
				continue
			}
			results = append(results, failed(name, err.Error()))
			continue
		}
		if param == mirror && aws.ToString(out.Parameter.Value) != target.Account.Name {
			results = append(results, failed(name, fmt.Sprintf("parameter %s holds %q, want %q",
				param, aws.ToString(out.Parameter.Value), target.Account.Name)))
			continue
		}
		results = append(results, passed(name))
	}
	return results
}

// AccountS3Factory builds an S3 client scoped to the target account.
type AccountS3Factory func(ctx context.Context, accountID string) (S3API, error)

// S3API is the subset of the S3 client used by the bucket check.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// BucketCheck verifies the named S3 buckets exist in the target account.
type BucketCheck struct {
	Factory     AccountS3Factory
	Propagation *Propagation
}

func (c *BucketCheck) Kind() string { return "s3-bucket" }

func (c *BucketCheck) Run(ctx context.Context, target Target, targets []string) []model.ValidationResult {
	client, err := c.Factory(ctx, target.Account.AccountID)
	if err != nil {
		return []model.ValidationResult{failed(c.Kind(), err.Error())}
	}
	results := make([]model.ValidationResult, 0, len(targets))
	for _, bucket := range targets {
		name := resultName(c.Kind(), bucket)
		_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err != nil {
			var notFound *s3types.NotFound
			if errors.As(err, &notFound) {
				results = append(results, c.Propagation.Resolve(name, target.StartedAt, "bucket "+bucket))
				continue
			}
			results = append(results, failed(name, err.Error()))
			continue
		}
		results = append(results, passed(name))
	}
	return results
}
