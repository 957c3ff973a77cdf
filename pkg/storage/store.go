package storage

import (
	"github.com/gotempsh/temps/pkg/types"
)

// Store defines the interface for deployment-core state storage.
// BoltStore is the only implementation.
type Store interface {
	// Projects
	CreateProject(project *types.Project) error
	GetProject(id string) (*types.Project, error)
	GetProjectBySlug(slug string) (*types.Project, error)
	ListProjects() ([]*types.Project, error)
	UpdateProject(project *types.Project) error
	DeleteProject(id string) error

	// Environments
	CreateEnvironment(env *types.Environment) error
	GetEnvironment(id string) (*types.Environment, error)
	GetEnvironmentBySlug(projectID, slug string) (*types.Environment, error)
	GetEnvironmentByHost(host string) (*types.Environment, error)
	ListEnvironments() ([]*types.Environment, error)
	ListEnvironmentsByProject(projectID string) ([]*types.Environment, error)
	UpdateEnvironment(env *types.Environment) error
	DeleteEnvironment(id string) error

	// Deployments
	CreateDeployment(dep *types.Deployment) error
	GetDeployment(id string) (*types.Deployment, error)
	ListDeployments() ([]*types.Deployment, error)
	ListDeploymentsByEnvironment(environmentID string) ([]*types.Deployment, error)
	UpdateDeployment(dep *types.Deployment) error
	DeleteDeployment(id string) error

	// Deployment jobs
	CreateDeploymentJob(job *types.DeploymentJob) error
	GetDeploymentJob(id string) (*types.DeploymentJob, error)
	ListDeploymentJobs(deploymentID string) ([]*types.DeploymentJob, error)
	UpdateDeploymentJob(job *types.DeploymentJob) error

	// ACME / certificates
	CreateCertificate(cert *types.Certificate) error
	GetCertificate(id string) (*types.Certificate, error)
	GetCertificateByDomain(domain string) (*types.Certificate, error)
	GetCertificatesByHost(host string) ([]*types.Certificate, error)
	ListCertificates() ([]*types.Certificate, error)
	UpdateCertificate(cert *types.Certificate) error
	DeleteCertificate(id string) error

	CreateAcmeAccount(account *types.AcmeAccount) error
	GetAcmeAccount(email string, env types.AcmeEnvironment) (*types.AcmeAccount, error)
	ListAcmeAccounts() ([]*types.AcmeAccount, error)

	// CAPTCHA challenge sessions
	CreateChallengeSession(session *types.ChallengeSession) error
	GetChallengeSession(environmentID, identifier string, identifierType types.IdentifierType) (*types.ChallengeSession, error)
	DeleteExpiredChallengeSessions() error

	// Status monitors and checks
	CreateStatusMonitor(monitor *types.StatusMonitor) error
	GetStatusMonitor(id string) (*types.StatusMonitor, error)
	ListStatusMonitors() ([]*types.StatusMonitor, error)
	ListActiveStatusMonitors() ([]*types.StatusMonitor, error)
	UpdateStatusMonitor(monitor *types.StatusMonitor) error
	DeleteStatusMonitor(id string) error

	CreateStatusCheck(check *types.StatusCheck) error
	ListStatusChecksByMonitor(monitorID string, limit int) ([]*types.StatusCheck, error)

	// Job logs
	AppendLogEntry(entry *types.LogEntry) error
	ListLogEntries(logID string) ([]*types.LogEntry, error)

	// IP access control
	CreateIPAccessControl(rule *types.IpAccessControl) error
	GetIPAccessControl(id string) (*types.IpAccessControl, error)
	GetIPAccessControlByCIDR(cidr string) (*types.IpAccessControl, error)
	ListIPAccessControl() ([]*types.IpAccessControl, error)
	UpdateIPAccessControl(rule *types.IpAccessControl) error
	DeleteIPAccessControl(id string) error

	// Utility
	Close() error
}
