package activity

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog"

	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/orgs"
)

// Ancillary contains activities that decorate a freshly provisioned account
// with the resources the deployment pipeline does not manage: organization
// tags, the IAM account alias, and tag mirrors in the member account's
// parameter store.
type Ancillary struct {
	orgs    *orgs.Client
	clients MemberClientFactory
	logger  zerolog.Logger
}

// NewAncillary creates a new Ancillary activity struct.
func NewAncillary(orgsClient *orgs.Client, clients MemberClientFactory, logger zerolog.Logger) *Ancillary {
	return &Ancillary{orgs: orgsClient, clients: clients, logger: logger}
}

// CreateAncillaryResourcesParams holds parameters for decorating an account.
type CreateAncillaryResourcesParams struct {
	Account model.ProvisionedAccount `json:"account"`
	Request model.ProvisionRequest   `json:"request"`
}

// CreateAncillaryResources tags the account, sets its alias, and mirrors
// the tags into the member account. Every step is idempotent so the
// activity can be retried as a whole.
func (a *Ancillary) CreateAncillaryResources(ctx context.Context, params CreateAncillaryResourcesParams) error {
	tags := params.Request.RequiredTags()
	if err := a.orgs.TagAccount(ctx, params.Account.AccountID, tags); err != nil {
		return err
	}

	if err := a.setAccountAlias(ctx, params.Account); err != nil {
		return err
	}

	if err := a.mirrorTags(ctx, params.Account.AccountID, tags); err != nil {
		return err
	}

	a.logger.Info().
		Str("account_id", params.Account.AccountID).
		Int("tags", len(tags)).
		Msg("ancillary resources in place")
	return nil
}

// MirrorAccountTagsParams identifies the account whose tags to mirror.
type MirrorAccountTagsParams struct {
	AccountID string `json:"account_id"`
}

// MirrorAccountTagsResult reports how many tags were written.
type MirrorAccountTagsResult struct {
	Mirrored int `json:"mirrored"`
}

// MirrorAccountTags re-reads the account's organization tags and writes them
// into the member account's parameter store, so parameters follow tag edits
// made after provisioning.
func (a *Ancillary) MirrorAccountTags(ctx context.Context, params MirrorAccountTagsParams) (MirrorAccountTagsResult, error) {
	current, err := a.orgs.AccountTags(ctx, params.AccountID)
	if err != nil {
		return MirrorAccountTagsResult{}, err
	}

	tags := make([]model.Tag, 0, len(current))
	for key, value := range current {
		tags = append(tags, model.Tag{Key: key, Value: value})
	}
	if err := a.mirrorTags(ctx, params.AccountID, tags); err != nil {
		return MirrorAccountTagsResult{}, err
	}

	a.logger.Info().
		Str("account_id", params.AccountID).
		Int("tags", len(tags)).
		Msg("account tags mirrored")
	return MirrorAccountTagsResult{Mirrored: len(tags)}, nil
}

func (a *Ancillary) setAccountAlias(ctx context.Context, account model.ProvisionedAccount) error {
	client, err := a.clients.IAM(ctx, account.AccountID)
	if err != nil {
		return fmt.Errorf("iam client for %s: %w", account.AccountID, err)
	}

	alias := model.AccountAlias(account.Name)
	_, err = client.CreateAccountAlias(ctx, &iam.CreateAccountAliasInput{
		AccountAlias: aws.String(alias),
	})
	if err != nil {
		var exists *iamtypes.EntityAlreadyExistsException
		if errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("create account alias %s: %w", alias, err)
	}
	return nil
}

func (a *Ancillary) mirrorTags(ctx context.Context, accountID string, tags []model.Tag) error {
	client, err := a.clients.SSM(ctx, accountID)
	if err != nil {
		return fmt.Errorf("ssm client for %s: %w", accountID, err)
	}

	for _, tag := range tags {
		_, err := client.PutParameter(ctx, &ssm.PutParameterInput{
			Name:      aws.String(model.TagParameterName(tag.Key)),
			Value:     aws.String(tag.Value),
			Type:      ssmtypes.ParameterTypeString,
			Overwrite: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("mirror tag %s: %w", tag.Key, err)
		}
	}
	return nil
}
