package activity

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/edvin/accountfactory/internal/directory"
	"github.com/edvin/accountfactory/internal/model"
)

// GraphAPI is the Microsoft Graph surface used by directory activities.
type GraphAPI interface {
	GroupByName(ctx context.Context, name string) (directory.Group, error)
	AssignGroupToApp(ctx context.Context, groupID, servicePrincipalID, appRoleID string) error
	StartProvisioningJob(ctx context.Context, servicePrincipalID, jobID string) error
}

// IdentityCenterAPI is the Identity Center surface used by directory
// activities.
type IdentityCenterAPI interface {
	GroupID(ctx context.Context, name string) (id string, found bool, err error)
	PermissionSetArn(ctx context.Context, name string) (string, error)
	AssignGroup(ctx context.Context, accountID, permissionSetArn, groupID string) error
}

// Directory contains activities that push AD groups into Identity Center
// and bind them to the new account.
type Directory struct {
	graph              GraphAPI
	identityCenter     IdentityCenterAPI
	servicePrincipalID string
	appRoleID          string
	provisioningJobID  string
	logger             zerolog.Logger
}

// NewDirectory creates a new Directory activity struct.
func NewDirectory(graph GraphAPI, ic IdentityCenterAPI, servicePrincipalID, appRoleID, provisioningJobID string, logger zerolog.Logger) *Directory {
	return &Directory{
		graph:              graph,
		identityCenter:     ic,
		servicePrincipalID: servicePrincipalID,
		appRoleID:          appRoleID,
		provisioningJobID:  provisioningJobID,
		logger:             logger,
	}
}

// SyncDirectoryGroupsParams holds parameters for pushing groups toward
// Identity Center.
type SyncDirectoryGroupsParams struct {
	GroupNames []string `json:"group_names"`
}

// SyncDirectoryGroups assigns each named directory group to the Identity
// Center enterprise application and starts a provisioning sync. Groups that
// do not exist in the directory fail the run permanently.
func (a *Directory) SyncDirectoryGroups(ctx context.Context, params SyncDirectoryGroupsParams) error {
	for _, name := range params.GroupNames {
		group, err := a.graph.GroupByName(ctx, name)
		if err != nil {
			var notFound *directory.GroupNotFoundError
			if errors.As(err, &notFound) {
				return terminal(err, ErrTypeGroupNotFound)
			}
			return err
		}
		if err := a.graph.AssignGroupToApp(ctx, group.ID, a.servicePrincipalID, a.appRoleID); err != nil {
			return err
		}
		a.logger.Info().Str("group", name).Msg("assigned directory group to provisioning app")
	}

	return a.graph.StartProvisioningJob(ctx, a.servicePrincipalID, a.provisioningJobID)
}

// CheckGroupSyncParams holds parameters for checking sync progress.
type CheckGroupSyncParams struct {
	GroupNames []string `json:"group_names"`
}

// CheckGroupSyncResult reports which groups have not arrived in Identity
// Center yet.
type CheckGroupSyncResult struct {
	Synced  bool     `json:"synced"`
	Missing []string `json:"missing,omitempty"`
}

// CheckGroupSync reports whether every group has propagated into the
// identity store. Absence is expected while provisioning runs, so it is
// a result, not an error.
func (a *Directory) CheckGroupSync(ctx context.Context, params CheckGroupSyncParams) (CheckGroupSyncResult, error) {
	var missing []string
	for _, name := range params.GroupNames {
		_, found, err := a.identityCenter.GroupID(ctx, name)
		if err != nil {
			return CheckGroupSyncResult{}, err
		}
		if !found {
			missing = append(missing, name)
		}
	}
	return CheckGroupSyncResult{Synced: len(missing) == 0, Missing: missing}, nil
}

// AttachPermissionSetsParams holds parameters for binding groups to the
// account.
type AttachPermissionSetsParams struct {
	AccountID string                 `json:"account_id"`
	Mappings  []model.ADGroupMapping `json:"mappings"`
}

// AttachPermissionSetsResult lists the group/permission-set bindings that
// were created, as "group:permission-set" strings.
type AttachPermissionSetsResult struct {
	Assignments []string `json:"assignments"`
}

// AttachPermissionSets grants each mapped group its permission set on the
// account. All groups must be synced before this runs; a group still
// missing here fails the run permanently.
func (a *Directory) AttachPermissionSets(ctx context.Context, params AttachPermissionSetsParams) (AttachPermissionSetsResult, error) {
	result := AttachPermissionSetsResult{}
	for _, mapping := range params.Mappings {
		groupID, found, err := a.identityCenter.GroupID(ctx, mapping.GroupName)
		if err != nil {
			return AttachPermissionSetsResult{}, err
		}
		if !found {
			return AttachPermissionSetsResult{}, terminal(
				&directory.GroupNotFoundError{Name: mapping.GroupName}, ErrTypeGroupNotFound)
		}

		psArn, err := a.identityCenter.PermissionSetArn(ctx, mapping.PermissionSetName)
		if err != nil {
			var notFound *directory.PermissionSetNotFoundError
			if errors.As(err, &notFound) {
				return AttachPermissionSetsResult{}, terminal(err, ErrTypePermissionSet)
			}
			return AttachPermissionSetsResult{}, err
		}

		if err := a.identityCenter.AssignGroup(ctx, params.AccountID, psArn, groupID); err != nil {
			return AttachPermissionSetsResult{}, err
		}
		result.Assignments = append(result.Assignments, mapping.GroupName+":"+mapping.PermissionSetName)
	}
	return result, nil
}
