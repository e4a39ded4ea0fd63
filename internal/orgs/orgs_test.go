package orgs

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	orgtypes "github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/accountfactory/internal/model"
)

type fakeOrgs struct {
	API

	// parent ID -> child OUs
	ous map[string][]orgtypes.OrganizationalUnit
	// parent ID -> account children
	accounts map[string][]string
	// account name -> ID, served by ListAccounts
	named  map[string]string
	tags   []orgtypes.Tag
	tagged *organizations.TagResourceInput
}

func (f *fakeOrgs) ListAccounts(context.Context, *organizations.ListAccountsInput, ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	out := &organizations.ListAccountsOutput{}
	for name, id := range f.named {
		out.Accounts = append(out.Accounts, orgtypes.Account{
			Id:   aws.String(id),
			Name: aws.String(name),
		})
	}
	return out, nil
}

func (f *fakeOrgs) ListRoots(context.Context, *organizations.ListRootsInput, ...func(*organizations.Options)) (*organizations.ListRootsOutput, error) {
	return &organizations.ListRootsOutput{
		Roots: []orgtypes.Root{{Id: aws.String("r-root")}},
	}, nil
}

func (f *fakeOrgs) ListOrganizationalUnitsForParent(_ context.Context, params *organizations.ListOrganizationalUnitsForParentInput, _ ...func(*organizations.Options)) (*organizations.ListOrganizationalUnitsForParentOutput, error) {
	return &organizations.ListOrganizationalUnitsForParentOutput{
		OrganizationalUnits: f.ous[aws.ToString(params.ParentId)],
	}, nil
}

func (f *fakeOrgs) ListChildren(_ context.Context, params *organizations.ListChildrenInput, _ ...func(*organizations.Options)) (*organizations.ListChildrenOutput, error) {
	children := make([]orgtypes.Child, 0)
	for _, id := range f.accounts[aws.ToString(params.ParentId)] {
		children = append(children, orgtypes.Child{Id: aws.String(id), Type: orgtypes.ChildTypeAccount})
	}
	return &organizations.ListChildrenOutput{Children: children}, nil
}

func (f *fakeOrgs) ListTagsForResource(context.Context, *organizations.ListTagsForResourceInput, ...func(*organizations.Options)) (*organizations.ListTagsForResourceOutput, error) {
	return &organizations.ListTagsForResourceOutput{Tags: f.tags}, nil
}

func (f *fakeOrgs) TagResource(_ context.Context, params *organizations.TagResourceInput, _ ...func(*organizations.Options)) (*organizations.TagResourceOutput, error) {
	f.tagged = params
	return &organizations.TagResourceOutput{}, nil
}

func ou(id, name string) orgtypes.OrganizationalUnit {
	return orgtypes.OrganizationalUnit{Id: aws.String(id), Name: aws.String(name)}
}

func TestResolveOUPath(t *testing.T) {
	fake := &fakeOrgs{ous: map[string][]orgtypes.OrganizationalUnit{
		"r-root":  {ou("ou-work", "Workloads"), ou("ou-sand", "Sandbox")},
		"ou-work": {ou("ou-prod", "Prod"), ou("ou-dev", "Dev")},
	}}
	client := NewClient(fake)

	id, err := client.ResolveOUPath(context.Background(), "Workloads/Prod")
	require.NoError(t, err)
	assert.Equal(t, "ou-prod", id)
}

func TestResolveOUPathRoot(t *testing.T) {
	client := NewClient(&fakeOrgs{})

	id, err := client.ResolveOUPath(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "r-root", id)
}

func TestResolveOUPathMissingSegment(t *testing.T) {
	fake := &fakeOrgs{ous: map[string][]orgtypes.OrganizationalUnit{
		"r-root": {ou("ou-work", "Workloads")},
	}}
	client := NewClient(fake)

	_, err := client.ResolveOUPath(context.Background(), "Workloads/Prod")
	var notFound *OUNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Prod", notFound.Segment)
}

func TestAccountInOU(t *testing.T) {
	fake := &fakeOrgs{
		ous: map[string][]orgtypes.OrganizationalUnit{
			"r-root": {ou("ou-work", "Workloads")},
		},
		accounts: map[string][]string{
			"ou-work": {"111122223333", "444455556666"},
		},
	}
	client := NewClient(fake)

	in, err := client.AccountInOU(context.Background(), "111122223333", "Workloads")
	require.NoError(t, err)
	assert.True(t, in)

	in, err = client.AccountInOU(context.Background(), "999988887777", "Workloads")
	require.NoError(t, err)
	assert.False(t, in)
}

func TestAccountIDByName(t *testing.T) {
	fake := &fakeOrgs{named: map[string]string{"Finance": "111122223333"}}
	client := NewClient(fake)

	id, found, err := client.AccountIDByName(context.Background(), "Finance")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "111122223333", id)

	_, found, err = client.AccountIDByName(context.Background(), "Marketing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAccountTags(t *testing.T) {
	fake := &fakeOrgs{tags: []orgtypes.Tag{
		{Key: aws.String("account-name"), Value: aws.String("Finance")},
		{Key: aws.String("vendor"), Value: aws.String("platform")},
	}}
	client := NewClient(fake)

	tags, err := client.AccountTags(context.Background(), "111122223333")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"account-name": "Finance", "vendor": "platform"}, tags)
}

func TestTagAccount(t *testing.T) {
	fake := &fakeOrgs{}
	client := NewClient(fake)

	err := client.TagAccount(context.Background(), "111122223333", []model.Tag{
		{Key: "support-dl", Value: "finance@example.com"},
	})
	require.NoError(t, err)
	require.NotNil(t, fake.tagged)
	assert.Equal(t, "111122223333", aws.ToString(fake.tagged.ResourceId))
	require.Len(t, fake.tagged.Tags, 1)
	assert.Equal(t, "support-dl", aws.ToString(fake.tagged.Tags[0].Key))
}

func TestTagAccountEmpty(t *testing.T) {
	fake := &fakeOrgs{}

	require.NoError(t, NewClient(fake).TagAccount(context.Background(), "111122223333", nil))
	assert.Nil(t, fake.tagged)
}
