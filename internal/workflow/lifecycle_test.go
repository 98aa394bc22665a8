package workflow

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/cloud"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/versions"
)

// ---------- RebuildClientWorkflow ----------

type RebuildClientWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *RebuildClientWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
	s.env.RegisterWorkflow(DeployClientWorkflow)
}

func (s *RebuildClientWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *RebuildClientWorkflowTestSuite) expectDeploy() {
	s.env.OnActivity("PlanClient", mock.Anything, "acme").Return(&activity.PlanResult{Changes: true, Declaration: testDeclaration()}, nil)
	s.env.OnActivity("ApplyClient", mock.Anything, "acme").Return(nil)
	s.env.OnActivity("WaitForSSH", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("RunPlaybook", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("WireSSO", mock.Anything, mock.Anything).Return(&activity.WireSSOResult{Issuer: "https://zitadel.acme.vrije.cloud"}, nil)
	s.env.OnActivity("ConfigureNextcloudOIDC", mock.Anything, mock.Anything).Return(nil)
	s.env.OnActivity("RecordDeployment", mock.Anything, mock.Anything).Return(&model.Client{Name: "acme", Status: model.StatusDeployed}, nil)
	s.env.OnActivity("CollectVersions", mock.Anything, "acme").Return(&versions.Report{Client: "acme", Reachable: true}, nil)
}

func (s *RebuildClientWorkflowTestSuite) TestDestroysThenDeploys() {
	s.env.OnActivity("ClientInstances", mock.Anything, "acme").Return([]provision.Instance{testInstance()}, nil)
	s.env.OnActivity("DestroyClient", mock.Anything, "acme").Return(nil).Once()
	s.expectDeploy()

	s.env.ExecuteWorkflow(RebuildClientWorkflow, DeployParams{Client: "acme", IDP: "zitadel", BaseDomain: "vrije.cloud"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(model.FlowRebuild, res.Flow)
	statuses := stepStatuses(&res)
	s.Equal(model.StepOK, statuses["provision-destroy"])
	s.Equal(model.StepOK, statuses["deploy/provision-apply"])
	s.Equal(model.StepOK, statuses["deploy/registry"])
}

func (s *RebuildClientWorkflowTestSuite) TestDeployFailureFailsRebuild() {
	s.env.OnActivity("ClientInstances", mock.Anything, "acme").Return([]provision.Instance{}, nil)
	s.env.OnActivity("PlanClient", mock.Anything, "acme").Return(nil, finalErr("acme has no declaration", activity.ErrTypePrecondition))

	s.env.ExecuteWorkflow(RebuildClientWorkflow, DeployParams{Client: "acme", IDP: "zitadel", BaseDomain: "vrije.cloud"})
	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestRebuildClientWorkflow(t *testing.T) {
	suite.Run(t, new(RebuildClientWorkflowTestSuite))
}

// ---------- DestroyClientWorkflow ----------

type DestroyClientWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *DestroyClientWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *DestroyClientWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *DestroyClientWorkflowTestSuite) TestSuccess() {
	rec := model.NewClient("acme")
	rec.Status = model.StatusDeployed
	rec.Server.IP = "203.0.113.10"
	host := activity.HostParams{Client: "acme", IP: "203.0.113.10"}

	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(rec, nil)
	s.env.OnActivity("CleanupHost", mock.Anything, host).Return(&activity.CleanupResult{
		Warnings: []string{"docker volume prune: exit status 1"},
	}, nil)
	s.env.OnActivity("DestroyClient", mock.Anything, "acme").Return(nil)
	s.env.OnActivity("RemoveLocalArtifacts", mock.Anything, "acme").Return(&activity.CleanupResult{
		Removed: []string{"ssh key", "secrets", "declaration"},
	}, nil)
	s.env.OnActivity("MarkClientDestroyed", mock.Anything, "acme").Return(nil)

	s.env.ExecuteWorkflow(DestroyClientWorkflow, DestroyParams{Client: "acme"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	statuses := stepStatuses(&res)
	s.Equal(model.StepWarning, statuses["live-cleanup"])
	s.Equal(model.StepOK, statuses["local-cleanup"])
	s.Equal(model.StepOK, statuses["registry"])
}

func (s *DestroyClientWorkflowTestSuite) TestUnreachableHostIsWarning() {
	rec := model.NewClient("acme")
	rec.Server.IP = "203.0.113.10"

	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(rec, nil)
	s.env.OnActivity("CleanupHost", mock.Anything, mock.Anything).Return(nil, finalErr("dial: timeout", activity.ErrTypePrecondition))
	s.env.OnActivity("DestroyClient", mock.Anything, "acme").Return(nil)
	s.env.OnActivity("RemoveLocalArtifacts", mock.Anything, "acme").Return(&activity.CleanupResult{}, nil)
	s.env.OnActivity("MarkClientDestroyed", mock.Anything, "acme").Return(nil)

	s.env.ExecuteWorkflow(DestroyClientWorkflow, DestroyParams{Client: "acme"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(model.StepWarning, stepStatuses(&res)["live-cleanup"])
	s.NotEmpty(res.Warnings)
}

func (s *DestroyClientWorkflowTestSuite) TestNotInRegistrySkipsLiveCleanup() {
	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(nil, nil)
	s.env.OnActivity("DestroyClient", mock.Anything, "acme").Return(nil)
	s.env.OnActivity("RemoveLocalArtifacts", mock.Anything, "acme").Return(&activity.CleanupResult{}, nil)
	s.env.OnActivity("MarkClientDestroyed", mock.Anything, "acme").Return(nil)

	s.env.ExecuteWorkflow(DestroyClientWorkflow, DestroyParams{Client: "acme"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(model.StepSkipped, stepStatuses(&res)["live-cleanup"])
}

func (s *DestroyClientWorkflowTestSuite) TestDestroyFailureKeepsRegistry() {
	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(nil, nil)
	s.env.OnActivity("DestroyClient", mock.Anything, "acme").Return(finalErr("tofu destroy exited 1", activity.ErrTypeTool))

	s.env.ExecuteWorkflow(DestroyClientWorkflow, DestroyParams{Client: "acme"})
	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "provision-destroy")
}

func (s *DestroyClientWorkflowTestSuite) TestMalformedClientRunsNothing() {
	s.env.ExecuteWorkflow(DestroyClientWorkflow, DestroyParams{Client: "../shared"})
	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), string(model.InvalidClientName))
}

func TestDestroyClientWorkflow(t *testing.T) {
	suite.Run(t, new(DestroyClientWorkflowTestSuite))
}

// ---------- CollectVersionsWorkflow ----------

type CollectVersionsWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *CollectVersionsWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *CollectVersionsWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *CollectVersionsWorkflowTestSuite) TestFleetWithUnreachableClient() {
	s.env.OnActivity("CollectFleetVersions", mock.Anything, activity.CollectFleetParams{
		Status: model.StatusDeployed, Parallelism: 4,
	}).Return([]versions.Report{
		{Client: "acme", Reachable: true, OS: "Ubuntu 24.04", Versions: map[string]string{"nextcloud": "29.0.1"}},
		{Client: "globex", Warning: "ssh: no route to host"},
	}, nil)

	s.env.ExecuteWorkflow(CollectVersionsWorkflow, CollectVersionsParams{Parallelism: 4})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	statuses := stepStatuses(&res)
	s.Equal(model.StepOK, statuses["versions/acme"])
	s.Equal(model.StepWarning, statuses["versions/globex"])
	s.Equal([]string{"versions/globex: ssh: no route to host"}, res.Warnings)
}

func (s *CollectVersionsWorkflowTestSuite) TestSingleClient() {
	s.env.OnActivity("CollectVersions", mock.Anything, "acme").Return(&versions.Report{Client: "acme", Reachable: true, OS: "Debian 12"}, nil)

	s.env.ExecuteWorkflow(CollectVersionsWorkflow, CollectVersionsParams{Client: "acme"})
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal("acme", res.Client)
	s.Len(res.Steps, 2)
}

func TestCollectVersionsWorkflow(t *testing.T) {
	suite.Run(t, new(CollectVersionsWorkflowTestSuite))
}

// ---------- ResizeVolumeWorkflow ----------

type ResizeVolumeWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *ResizeVolumeWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *ResizeVolumeWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *ResizeVolumeWorkflowTestSuite) TestGrow() {
	rec := model.NewClient("acme")
	rec.Server.IP = "203.0.113.10"
	params := activity.ResizeVolumeParams{Client: "acme", SizeGB: 200}

	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(rec, nil)
	s.env.OnActivity("ResizeVolume", mock.Anything, params).Return(&cloud.Resize{VolumeID: 99, FromGB: 100, ToGB: 200}, nil)
	s.env.OnActivity("SetVolumeSize", mock.Anything, params).Return(nil)
	s.env.OnActivity("GrowFilesystem", mock.Anything, activity.GrowFilesystemParams{
		Client: "acme", IP: "203.0.113.10", VolumeID: 99,
	}).Return(nil)

	s.env.ExecuteWorkflow(ResizeVolumeWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(model.StepOK, stepStatuses(&res)["filesystem-grow"])
}

func (s *ResizeVolumeWorkflowTestSuite) TestUnchangedSkipsGrow() {
	rec := model.NewClient("acme")
	rec.Server.IP = "203.0.113.10"
	params := activity.ResizeVolumeParams{Client: "acme", SizeGB: 100}

	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(rec, nil)
	s.env.OnActivity("ResizeVolume", mock.Anything, params).Return(&cloud.Resize{VolumeID: 99, FromGB: 100, ToGB: 100}, nil)
	s.env.OnActivity("SetVolumeSize", mock.Anything, params).Return(nil)

	s.env.ExecuteWorkflow(ResizeVolumeWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(model.StepSkipped, stepStatuses(&res)["filesystem-grow"])
}

func (s *ResizeVolumeWorkflowTestSuite) TestShrinkRefused() {
	params := activity.ResizeVolumeParams{Client: "acme", SizeGB: 50}

	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(model.NewClient("acme"), nil)
	s.env.OnActivity("ResizeVolume", mock.Anything, params).Return(nil, finalErr("volume cannot shrink", "VolumeShrink"))

	s.env.ExecuteWorkflow(ResizeVolumeWorkflow, params)
	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "volume-resize")
}

func (s *ResizeVolumeWorkflowTestSuite) TestUnknownClient() {
	s.env.OnActivity("GetClient", mock.Anything, "acme").Return(nil, nil)

	s.env.ExecuteWorkflow(ResizeVolumeWorkflow, activity.ResizeVolumeParams{Client: "acme", SizeGB: 200})
	s.True(s.env.IsWorkflowCompleted())
	err := s.env.GetWorkflowError()
	s.Error(err)
	s.Contains(err.Error(), "not in the registry")
}

func TestResizeVolumeWorkflow(t *testing.T) {
	suite.Run(t, new(ResizeVolumeWorkflowTestSuite))
}

// ---------- RegistryBackupWorkflow ----------

type RegistryBackupWorkflowTestSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *RegistryBackupWorkflowTestSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	registerActivities(s.env)
}

func (s *RegistryBackupWorkflowTestSuite) AfterTest(suiteName, testName string) {
	s.env.AssertExpectations(s.T())
}

func (s *RegistryBackupWorkflowTestSuite) TestUploads() {
	s.env.OnActivity("BackupRegistry", mock.Anything).Return("registry/2026-10-14T03-00-00Z.yml", nil)

	s.env.ExecuteWorkflow(RegistryBackupWorkflow)
	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())

	var res model.FlowResult
	s.NoError(s.env.GetWorkflowResult(&res))
	s.Equal(FlowBackup, res.Flow)
	s.Contains(res.Steps[0].Message, "registry/2026-10-14")
}

func TestRegistryBackupWorkflow(t *testing.T) {
	suite.Run(t, new(RegistryBackupWorkflowTestSuite))
}
