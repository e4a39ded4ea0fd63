// Package orgs wraps AWS Organizations lookups used by account validation
// and ancillary-resource tagging: resolving organizational unit paths,
// checking account placement, and reading or writing account tags.
package orgs

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/edvin/accountfactory/internal/model"
)

// API is the subset of the Organizations client used by this package.
type API interface {
	ListRoots(ctx context.Context, params *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error)
	ListOrganizationalUnitsForParent(ctx context.Context, params *organizations.ListOrganizationalUnitsForParentInput, optFns ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error)
	ListChildren(ctx context.Context, params *organizations.ListChildrenInput, optFns ...func(*organizations.Options)) (*organizations.ListChildrenOutput, error)
	ListAccounts(ctx context.Context, params *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
	ListTagsForResource(ctx context.Context, params *organizations.ListTagsForResourceInput, optFns ...func(*organizations.Options)) (*organizations.ListTagsForResourceOutput, error)
	TagResource(ctx context.Context, params *organizations.TagResourceInput, optFns ...func(*organizations.Options)) (*organizations.TagResourceOutput, error)
}

// OUNotFoundError reports an organizational unit path segment that does not
// exist under its parent.
type OUNotFoundError struct {
	Path    string
	Segment string
}

func (e *OUNotFoundError) Error() string {
	return fmt.Sprintf("organizational unit %q not found while resolving path %q", e.Segment, e.Path)
}

// Client performs Organizations lookups.
type Client struct {
	api API
}

// NewClient creates a Client.
func NewClient(api API) *Client {
	return &Client{api: api}
}

// ResolveOUPath walks a slash-separated organizational unit path from the
// organization root and returns the ID of the final unit. An empty path
// resolves to the root itself.
func (c *Client) ResolveOUPath(ctx context.Context, path string) (string, error) {
	roots, err := c.api.ListRoots(ctx, &organizations.ListRootsInput{})
	if err != nil {
		return "", fmt.Errorf("list roots: %w", err)
	}
	if len(roots.Roots) == 0 {
		return "", fmt.Errorf("organization has no root")
	}
	parent := aws.ToString(roots.Roots[0].Id)

	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		id, err := c.childOU(ctx, parent, segment)
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", &OUNotFoundError{Path: path, Segment: segment}
		}
		parent = id
	}
	return parent, nil
}

func (c *Client) childOU(ctx context.Context, parentID, name string) (string, error) {
	var next *string
	for {
		out, err := c.api.ListOrganizationalUnitsForParent(ctx, &organizations.ListOrganizationalUnitsForParentInput{
			ParentId:  aws.String(parentID),
			NextToken: next,
		})
		if err != nil {
			return "", fmt.Errorf("list organizational units under %s: %w", parentID, err)
		}
		for _, ou := range out.OrganizationalUnits {
			if aws.ToString(ou.Name) == name {
				return aws.ToString(ou.Id), nil
			}
		}
		if out.NextToken == nil {
			return "", nil
		}
		next = out.NextToken
	}
}

// AccountInOU reports whether the account is a direct child of the
// organizational unit at the given path.
func (c *Client) AccountInOU(ctx context.Context, accountID, ouPath string) (bool, error) {
	ouID, err := c.ResolveOUPath(ctx, ouPath)
	if err != nil {
		return false, err
	}

	var next *string
	for {
		out, err := c.api.ListChildren(ctx, &organizations.ListChildrenInput{
			ParentId:  aws.String(ouID),
			ChildType: orgtypes.ChildTypeAccount,
			NextToken: next,
		})
		if err != nil {
			return false, fmt.Errorf("list accounts under %s: %w", ouID, err)
		}
		for _, child := range out.Children {
			if aws.ToString(child.Id) == accountID {
				return true, nil
			}
		}
		if out.NextToken == nil {
			return false, nil
		}
		next = out.NextToken
	}
}

// AccountIDByName returns the ID of the member account with the given name,
// or found=false when no account carries it.
func (c *Client) AccountIDByName(ctx context.Context, name string) (string, bool, error) {
	var next *string
	for {
		out, err := c.api.ListAccounts(ctx, &organizations.ListAccountsInput{NextToken: next})
		if err != nil {
			return "", false, fmt.Errorf("list accounts: %w", err)
		}
		for _, account := range out.Accounts {
			if aws.ToString(account.Name) == name {
				return aws.ToString(account.Id), true, nil
			}
		}
		if out.NextToken == nil {
			return "", false, nil
		}
		next = out.NextToken
	}
}

// AccountTags returns the organization tags on an account as a map.
func (c *Client) AccountTags(ctx context.Context, accountID string) (map[string]string, error) {
	tags := make(map[string]string)
	var next *string
	for {
		out, err := c.api.ListTagsForResource(ctx, &organizations.ListTagsForResourceInput{
			ResourceId: aws.String(accountID),
			NextToken:  next,
		})
		if err != nil {
			return nil, fmt.Errorf("list tags for %s: %w", accountID, err)
		}
		for _, tag := range out.Tags {
			tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
		}
		if out.NextToken == nil {
			return tags, nil
		}
		next = out.NextToken
	}
}

// TagAccount applies tags to an account. Existing keys are overwritten.
func (c *Client) TagAccount(ctx context.Context, accountID string, tags []model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	orgTags := make([]orgtypes.Tag, 0, len(tags))
	for _, tag := range tags {
		orgTags = append(orgTags, orgtypes.Tag{
			Key:   aws.String(tag.Key),
			Value: aws.String(tag.Value),
		})
	}
	if _, err := c.api.TagResource(ctx, &organizations.TagResourceInput{
		ResourceId: aws.String(accountID),
		Tags:       orgTags,
	}); err != nil {
		return fmt.Errorf("tag account %s: %w", accountID, err)
	}
	return nil
}
