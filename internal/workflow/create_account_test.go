package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/accountfactory/internal/activity"
	"github.com/edvin/accountfactory/internal/model"
	"github.com/edvin/accountfactory/internal/notify"
)

type CreateAccountWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *CreateAccountWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *CreateAccountWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func testRequest() model.ProvisionRequest {
	return model.ProvisionRequest{
		AccountName:    "Finance",
		SupportDL:      "finance@example.com",
		ManagedOrgUnit: "Workloads/Prod",
	}
}

func testAccount() model.ProvisionedAccount {
	return model.ProvisionedAccount{
		AccountID:            "111122223333",
		ProvisionedProductID: "pp-1",
		Name:                 "Finance",
	}
}

func completedValidation() activity.ValidateAccountResourcesResult {
	return activity.ValidateAccountResourcesResult{
		Status: model.ValidationCompleted,
		Results: []model.ValidationResult{
			{Check: "placement", Status: model.CheckPassed},
			{Check: "tags", Status: model.CheckPassed},
		},
	}
}

func (s *CreateAccountWorkflowTestSuite) TestHappyPathWithDirectory() {
	req := testRequest()
	req.ADIntegration = []model.ADGroupMapping{
		{GroupName: "aws-finance-admins", PermissionSetName: "AdminAccess"},
	}
	account := testAccount()

	s.env.OnActivity("CheckForRunningProcesses", mock.Anything).Return(model.GateResult{}, nil)
	s.env.OnActivity("MergeTargetState", mock.Anything, activity.MergeTargetStateParams{Request: req}).
		Return(activity.MergeTargetStateResult{Updated: true}, nil)
	s.env.OnActivity("StartDeployment", mock.Anything).
		Return(activity.StartDeploymentResult{ExecutionID: "exec-1"}, nil)
	s.env.OnActivity("GetDeploymentStatus", mock.Anything, activity.GetDeploymentStatusParams{ExecutionID: "exec-1"}).
		Return(activity.GetDeploymentStatusResult{Status: model.DeploymentInProgress}, nil).Once()
	s.env.OnActivity("GetDeploymentStatus", mock.Anything, activity.GetDeploymentStatusParams{ExecutionID: "exec-1"}).
		Return(activity.GetDeploymentStatusResult{Status: model.DeploymentSucceeded}, nil).Once()
	s.env.OnActivity("ResolveProvisionedAccount", mock.Anything, activity.ResolveProvisionedAccountParams{AccountName: "Finance"}).
		Return(account, nil)
	s.env.OnActivity("CreateAncillaryResources", mock.Anything, activity.CreateAncillaryResourcesParams{
		Account: account, Request: req,
	}).Return(nil)
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(completedValidation(), nil)
	s.env.OnActivity("SyncDirectoryGroups", mock.Anything, activity.SyncDirectoryGroupsParams{
		GroupNames: []string{"aws-finance-admins"},
	}).Return(nil)
	s.env.OnActivity("CheckGroupSync", mock.Anything, mock.Anything).
		Return(activity.CheckGroupSyncResult{Synced: false, Missing: []string{"aws-finance-admins"}}, nil).Once()
	s.env.OnActivity("CheckGroupSync", mock.Anything, mock.Anything).
		Return(activity.CheckGroupSyncResult{Synced: true}, nil).Once()
	s.env.OnActivity("AttachPermissionSets", mock.Anything, activity.AttachPermissionSetsParams{
		AccountID: account.AccountID, Mappings: req.ADIntegration,
	}).Return(activity.AttachPermissionSetsResult{Assignments: []string{"aws-finance-admins:AdminAccess"}}, nil)
	s.env.OnActivity("SendCompletionEmail", mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{Request: req})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var output model.RunOutput
	s.NoError(s.env.GetWorkflowResult(&output))
	s.Equal(account, output.Account)
	s.Equal(model.ValidationCompleted, output.ValidationStatus)
	s.Equal([]string{"aws-finance-admins:AdminAccess"}, output.GroupAssignments)
}

func (s *CreateAccountWorkflowTestSuite) TestGateBusyThenClear() {
	req := testRequest()

	s.env.OnActivity("CheckForRunningProcesses", mock.Anything).
		Return(model.GateResult{Blocking: []model.BlockedResource{
			{Kind: "pipeline", Name: "AWSAccelerator-Pipeline"},
		}}, nil).Once()
	s.env.OnActivity("CheckForRunningProcesses", mock.Anything).
		Return(model.GateResult{}, nil).Once()
	s.env.OnActivity("MergeTargetState", mock.Anything, mock.Anything).
		Return(activity.MergeTargetStateResult{Updated: true}, nil)
	s.env.OnActivity("StartDeployment", mock.Anything).
		Return(activity.StartDeploymentResult{ExecutionID: "exec-1"}, nil)
	s.env.OnActivity("GetDeploymentStatus", mock.Anything, mock.Anything).
		Return(activity.GetDeploymentStatusResult{Status: model.DeploymentSucceeded}, nil)
	s.env.OnActivity("ResolveProvisionedAccount", mock.Anything, mock.Anything).
		Return(testAccount(), nil)
	s.env.OnActivity("CreateAncillaryResources", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(completedValidation(), nil)
	s.env.OnActivity("SendCompletionEmail", mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{Request: req})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *CreateAccountWorkflowTestSuite) TestBypassCreationSkipsDeployment() {
	req := testRequest()
	req.BypassCreation = true

	// No gate, MergeTargetState, StartDeployment or GetDeploymentStatus
	// mocks: any call to them would fail the test.
	s.env.OnActivity("ResolveProvisionedAccount", mock.Anything, mock.Anything).
		Return(testAccount(), nil)
	s.env.OnActivity("CreateAncillaryResources", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(completedValidation(), nil)
	s.env.OnActivity("SendCompletionEmail", mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{Request: req})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *CreateAccountWorkflowTestSuite) TestDeploymentFailurePublishesNotification() {
	req := testRequest()

	s.env.OnActivity("CheckForRunningProcesses", mock.Anything).Return(model.GateResult{}, nil)
	s.env.OnActivity("MergeTargetState", mock.Anything, mock.Anything).
		Return(activity.MergeTargetStateResult{Updated: true}, nil)
	s.env.OnActivity("StartDeployment", mock.Anything).
		Return(activity.StartDeploymentResult{ExecutionID: "exec-1"}, nil)
	s.env.OnActivity("GetDeploymentStatus", mock.Anything, mock.Anything).
		Return(activity.GetDeploymentStatusResult{
			Status:    model.DeploymentFailed,
			RootCause: "stage Deploy action Accelerator: COMMAND_EXECUTION_ERROR",
		}, nil)
	s.env.OnActivity("PublishFailure", mock.Anything, mock.MatchedBy(func(f notify.Failure) bool {
		return f.AccountName == "Finance" && f.Step == "deploy" && f.Error != ""
	})).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{Request: req})
	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "COMMAND_EXECUTION_ERROR")
}

func (s *CreateAccountWorkflowTestSuite) TestDirectorySyncWaitLimit() {
	req := testRequest()
	req.BypassCreation = true
	req.ADIntegration = []model.ADGroupMapping{
		{GroupName: "aws-finance-admins", PermissionSetName: "AdminAccess"},
	}

	s.env.OnActivity("ResolveProvisionedAccount", mock.Anything, mock.Anything).
		Return(testAccount(), nil)
	s.env.OnActivity("CreateAncillaryResources", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(completedValidation(), nil)
	s.env.OnActivity("SyncDirectoryGroups", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("CheckGroupSync", mock.Anything, mock.Anything).
		Return(activity.CheckGroupSyncResult{Synced: false, Missing: []string{"aws-finance-admins"}}, nil)
	s.env.OnActivity("PublishFailure", mock.Anything, mock.MatchedBy(func(f notify.Failure) bool {
		return f.Step == "directory-sync"
	})).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{
		Request: req,
		Options: RunOptions{DirectorySyncWaitLimit: 3, DirectorySyncInterval: time.Second},
	})
	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "not synced after 3 checks")
}

func (s *CreateAccountWorkflowTestSuite) TestValidationRetriesWhilePropagating() {
	req := testRequest()
	req.BypassCreation = true

	s.env.OnActivity("ResolveProvisionedAccount", mock.Anything, mock.Anything).
		Return(testAccount(), nil)
	s.env.OnActivity("CreateAncillaryResources", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(activity.ValidateAccountResourcesResult{
			Status: model.ValidationInProgress,
			Results: []model.ValidationResult{
				{Check: "tags", Status: model.CheckInProgress, Message: "tags support-dl not visible yet"},
			},
		}, nil).Once()
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(completedValidation(), nil).Once()
	s.env.OnActivity("SendCompletionEmail", mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{Request: req})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var output model.RunOutput
	s.NoError(s.env.GetWorkflowResult(&output))
	s.Equal(model.ValidationCompleted, output.ValidationStatus)
}

func (s *CreateAccountWorkflowTestSuite) TestFailedChecksDoNotFailRun() {
	req := testRequest()
	req.BypassCreation = true

	s.env.OnActivity("ResolveProvisionedAccount", mock.Anything, mock.Anything).
		Return(testAccount(), nil)
	s.env.OnActivity("CreateAncillaryResources", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("ValidateAccountResources", mock.Anything, mock.Anything).
		Return(activity.ValidateAccountResourcesResult{
			Status: model.ValidationCompleted,
			Results: []model.ValidationResult{
				{Check: "alias", Status: model.CheckFailed, Message: "alias finance still missing after propagation window"},
			},
		}, nil)
	s.env.OnActivity("SendCompletionEmail", mock.Anything, mock.Anything).Return(nil)

	s.env.ExecuteWorkflow(CreateAccountWorkflow, CreateAccountInput{Request: req})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var output model.RunOutput
	s.NoError(s.env.GetWorkflowResult(&output))
	s.Equal(model.ValidationCompleted, output.ValidationStatus)
	s.Equal(model.CheckFailed, output.ValidationResults[0].Status)
}

func TestCreateAccountWorkflowTestSuite(t *testing.T) {
	suite.Run(t, new(CreateAccountWorkflowTestSuite))
}
