package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/identitystore"
	"github.com/aws/aws-sdk-go-v2/service/identitystore/document"
	idstoretypes "github.com/aws/aws-sdk-go-v2/service/identitystore/types"
	"github.com/aws/aws-sdk-go-v2/service/ssoadmin"
	ssotypes "github.com/aws/aws-sdk-go-v2/service/ssoadmin/types"
)

// IdentityStoreAPI is the subset of the identity store client used here.
type IdentityStoreAPI interface {
	GetGroupId(ctx context.Context, params *identitystore.GetGroupIdInput, optFns ...func(*identitystore.Options)) (*identitystore.GetGroupIdOutput, error)
}

// SSOAdminAPI is the subset of the SSO admin client used here.
type SSOAdminAPI interface {
	ListPermissionSets(ctx context.Context, params *ssoadmin.ListPermissionSetsInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.ListPermissionSetsOutput, error)
	DescribePermissionSet(ctx context.Context, params *ssoadmin.DescribePermissionSetInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.DescribePermissionSetOutput, error)
	CreateAccountAssignment(ctx context.Context, params *ssoadmin.CreateAccountAssignmentInput, optFns ...func(*ssoadmin.Options)) (*ssoadmin.CreateAccountAssignmentOutput, error)
}

// PermissionSetNotFoundError reports a permission set name with no match in
// the Identity Center instance.
type PermissionSetNotFoundError struct {
	Name string
}

func (e *PermissionSetNotFoundError) Error() string {
	return fmt.Sprintf("permission set %q not found", e.Name)
}

// IdentityCenter resolves groups and permission sets in AWS IAM Identity
// Center and binds them to accounts.
type IdentityCenter struct {
	idStore         IdentityStoreAPI
	sso             SSOAdminAPI
	identityStoreID string
	instanceArn     string
}

// NewIdentityCenter creates an IdentityCenter for one instance.
func NewIdentityCenter(idStore IdentityStoreAPI, sso SSOAdminAPI, identityStoreID, instanceArn string) *IdentityCenter {
	return &IdentityCenter{
		idStore:         idStore,
		sso:             sso,
		identityStoreID: identityStoreID,
		instanceArn:     instanceArn,
	}
}

// GroupID looks up a synced group by display name. A group that has not
// arrived yet returns found=false with no error; directory provisioning is
// eventually consistent, so the caller decides when absence becomes fatal.
func (ic *IdentityCenter) GroupID(ctx context.Context, name string) (id string, found bool, err error) {
	out, err := ic.idStore.GetGroupId(ctx, &identitystore.GetGroupIdInput{
		IdentityStoreId: aws.String(ic.identityStoreID),
		AlternateIdentifier: &idstoretypes.AlternateIdentifierMemberUniqueAttribute{
			Value: idstoretypes.UniqueAttribute{
				AttributePath:  aws.String("displayName"),
				AttributeValue: document.NewLazyDocument(name),
			},
		},
	})
	if err != nil {
		var notFound *idstoretypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get group id for %s: %w", name, err)
	}
	return aws.ToString(out.GroupId), true, nil
}

// PermissionSetArn resolves a permission set name to its ARN.
func (ic *IdentityCenter) PermissionSetArn(ctx context.Context, name string) (string, error) {
	var next *string
	for {
		page, err := ic.sso.ListPermissionSets(ctx, &ssoadmin.ListPermissionSetsInput{
			InstanceArn: aws.String(ic.instanceArn),
			NextToken:   next,
		})
		if err != nil {
			return "", fmt.Errorf("list permission sets: %w", err)
		}
		for _, arn := range page.PermissionSets {
			desc, err := ic.sso.DescribePermissionSet(ctx, &ssoadmin.DescribePermissionSetInput{
				InstanceArn:      aws.String(ic.instanceArn),
				PermissionSetArn: aws.String(arn),
			})
			if err != nil {
				return "", fmt.Errorf("describe permission set %s: %w", arn, err)
			}
			if aws.ToString(desc.PermissionSet.Name) == name {
				return arn, nil
			}
		}
		if page.NextToken == nil {
			return "", &PermissionSetNotFoundError{Name: name}
		}
		next = page.NextToken
	}
}

// AssignGroup grants a group the permission set on an account.
func (ic *IdentityCenter) AssignGroup(ctx context.Context, accountID, permissionSetArn, groupID string) error {
	_, err := ic.sso.CreateAccountAssignment(ctx, &ssoadmin.CreateAccountAssignmentInput{
		InstanceArn:      aws.String(ic.instanceArn),
		PermissionSetArn: aws.String(permissionSetArn),
		PrincipalId:      aws.String(groupID),
		PrincipalType:    ssotypes.PrincipalTypeGroup,
		TargetId:         aws.String(accountID),
		TargetType:       ssotypes.TargetTypeAwsAccount,
	})
	if err != nil {
		return fmt.Errorf("assign group %s on account %s: %w", groupID, accountID, err)
	}
	return nil
}
