package activity

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/edvin/accountfactory/internal/validate"
)

// MemberIAMAPI is the IAM surface needed inside a member account.
type MemberIAMAPI interface {
	validate.IAMAPI
	CreateAccountAlias(ctx context.Context, params *iam.CreateAccountAliasInput, optFns ...func(*iam.Options)) (*iam.CreateAccountAliasOutput, error)
}

// MemberSSMAPI is the SSM surface needed inside a member account.
type MemberSSMAPI interface {
	validate.SSMAPI
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// MemberClientFactory builds service clients scoped to a member account.
type MemberClientFactory interface {
	IAM(ctx context.Context, accountID string) (MemberIAMAPI, error)
	SSM(ctx context.Context, accountID string) (MemberSSMAPI, error)
	S3(ctx context.Context, accountID string) (validate.S3API, error)
}

// RoleClientFactory assumes the organization access role in member accounts
// and builds clients on the resulting credentials.
type RoleClientFactory struct {
	cfg      aws.Config
	roleName string
}

// NewRoleClientFactory creates a RoleClientFactory. roleName is the name of
// the cross-account role present in every member account.
func NewRoleClientFactory(cfg aws.Config, roleName string) *RoleClientFactory {
	return &RoleClientFactory{cfg: cfg, roleName: roleName}
}

func (f *RoleClientFactory) memberConfig(accountID string) aws.Config {
	roleArn := fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, f.roleName)
	provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(f.cfg), roleArn)
	cfg := f.cfg.Copy()
	cfg.Credentials = aws.NewCredentialsCache(provider)
	return cfg
}

// IAM returns an IAM client operating inside the member account.
func (f *RoleClientFactory) IAM(_ context.Context, accountID string) (MemberIAMAPI, error) {
	return iam.NewFromConfig(f.memberConfig(accountID)), nil
}

// SSM returns an SSM client operating inside the member account.
func (f *RoleClientFactory) SSM(_ context.Context, accountID string) (MemberSSMAPI, error) {
	return ssm.NewFromConfig(f.memberConfig(accountID)), nil
}

// S3 returns an S3 client operating inside the member account.
func (f *RoleClientFactory) S3(_ context.Context, accountID string) (validate.S3API, error) {
	return s3.NewFromConfig(f.memberConfig(accountID)), nil
}
