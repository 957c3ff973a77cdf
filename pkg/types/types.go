// Package types defines the domain entities shared across the deployment
// core: projects, environments, deployments and their jobs, certificates,
// challenge sessions, health monitors, and IP access control rules.
package types

import "time"

// Project is a user-defined application: a git repository or image source,
// its build preset, and the deploy-time flags that apply to every
// environment underneath it.
type Project struct {
	ID                        string
	Slug                      string // unique
	MainBranch                string
	RepoOwner                 string
	RepoName                  string
	GitURL                    string
	Preset                    string // build strategy, e.g. "node", "static", "docker"
	AutomaticDeploy           bool
	AttackMode                bool // gate all traffic behind a PoW challenge
	EnablePreviewEnvironments bool
	DefaultPort               int // fallback container port when nothing else resolves one; 0 means unset
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// Upstream is a single backend the proxy may route to.
type Upstream struct {
	Host   string
	Port   int
	Weight int
}

// Environment is a named deploy target (production, staging, a preview
// branch) mapping one project to one set of upstreams and one subdomain.
//
// Exactly one environment per project must be named "Production"; callers
// enforce non-deletion of that row, this package only models the shape.
type Environment struct {
	ID                  string
	ProjectID           string
	Name                string
	Slug                string
	Subdomain           string
	Host                string // custom domain, if any
	Upstreams           []Upstream
	CurrentDeploymentID string // nullable weak reference; resolved via the deployment store, never dereferenced directly
	Branch              string
	PortOverride        int // explicit container port for this environment; 0 means unset, falls through to Project.DefaultPort
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DeploymentState is the lifecycle state of a Deployment. Transitions are
// forward-only except cancelled, which is terminal from any non-terminal
// state.
type DeploymentState string

const (
	DeploymentPending   DeploymentState = "pending"
	DeploymentRunning   DeploymentState = "running"
	DeploymentCompleted DeploymentState = "completed"
	DeploymentFailed    DeploymentState = "failed"
	DeploymentCancelled DeploymentState = "cancelled"
)

// SourceType identifies where a deployment's artifact comes from.
type SourceType string

const (
	SourceGit          SourceType = "git"
	SourceDockerImage  SourceType = "docker_image"
	SourceStaticBundle SourceType = "static_bundle"
)

// Deployment is one attempt to bring an environment to a new artifact.
type Deployment struct {
	ID            string
	ProjectID     string
	EnvironmentID string
	Slug          string
	State         DeploymentState
	SourceType    SourceType
	Metadata      map[string]string
	StartedAt     time.Time
	FinishedAt    time.Time
	// CancelRequested is set by an operator-initiated cancel; the running
	// workflow engine polls it (via a CancellationChecker) before and
	// after each job, per the cooperative cancellation model.
	CancelRequested bool
}

// JobStatus is the lifecycle state of a DeploymentJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobWaiting   JobStatus = "waiting"
	JobRunning   JobStatus = "running"
	JobSuccess   JobStatus = "success"
	JobFailure   JobStatus = "failure"
	JobCancelled JobStatus = "cancelled"
	JobSkipped   JobStatus = "skipped"
)

// JobConfig carries planner-assigned metadata for a DeploymentJob, separate
// from its runtime status.
type JobConfig struct {
	RequiredForCompletion bool
	ContinueOnFailure     bool
}

// LogLevel is the level a LogEntry was detected at, inferred from markers
// in the message text rather than carried by the caller explicitly.
type LogLevel string

const (
	LogLevelInfo    LogLevel = "info"
	LogLevelSuccess LogLevel = "success"
	LogLevelError   LogLevel = "error"
)

// LogEntry is one append-only line of a job's persisted log stream,
// referenced by its LogID. Entries are returned in insertion (Sequence)
// order.
type LogEntry struct {
	LogID     string
	Sequence  int
	Level     LogLevel
	Message   string
	CreatedAt time.Time
}

// DeploymentJob is one materialized node of a deployment's workflow DAG.
// Rows are pre-created by the planner and mutated by the engine as the job
// runs; JobID is the stable identifier within the workflow (not the row's
// storage ID).
type DeploymentJob struct {
	ID             string
	DeploymentID   string
	JobID          string
	ExecutionOrder int
	Status         JobStatus
	StartedAt      time.Time
	FinishedAt     time.Time
	ErrorMessage   string
	Outputs        map[string][]byte // name -> JSON-encoded value
	LogID          string
	JobConfig      JobConfig
}

// CertificateStatus is the lifecycle state of a Certificate.
type CertificateStatus string

const (
	CertificatePending CertificateStatus = "pending"
	CertificateActive  CertificateStatus = "active"
	CertificateFailed  CertificateStatus = "failed"
	CertificateRevoked CertificateStatus = "revoked"
)

// Certificate is an issued (or in-flight) TLS certificate for one or more
// domains. Wildcard certificates must have been obtained via DNS-01.
type Certificate struct {
	ID             string
	Domain         string
	SANs           []string
	PEMCert        []byte
	PEMKey         []byte
	ExpirationTime time.Time
	LastRenewed    time.Time
	IsWildcard     bool
	Status         CertificateStatus
}

// AcmeEnvironment distinguishes Let's Encrypt's production and staging
// directories.
type AcmeEnvironment string

const (
	AcmeProduction AcmeEnvironment = "production"
	AcmeStaging    AcmeEnvironment = "staging"
)

// AcmeAccount is a registered ACME account, keyed by (Email, Environment).
// Credentials (the account private key and registration resource) are
// stored encrypted; exactly one row exists per key pair.
type AcmeAccount struct {
	ID                  string
	Email               string
	Environment         AcmeEnvironment
	EncryptedPrivateKey []byte
	RegistrationURI     string
	CreatedAt           time.Time
}

// ChallengeType is the ACME challenge mechanism used for a domain.
type ChallengeType string

const (
	ChallengeHTTP01 ChallengeType = "http-01"
	ChallengeDNS01  ChallengeType = "dns-01"
)

// DNSTxtRecord is a single DNS-01 TXT record the caller must place before
// calling CompleteChallenge.
type DNSTxtRecord struct {
	Name          string
	Value         string
	ValidationURL string
}

// ChallengeData describes an in-flight ACME authorization.
type ChallengeData struct {
	ChallengeType    ChallengeType
	Domain           string
	Token            string
	KeyAuthorization string
	ValidationURL    string
	DNSTxtRecords    []DNSTxtRecord
	OrderURL         string
}

// IdentifierType distinguishes how a ChallengeSession client is identified.
type IdentifierType string

const (
	IdentifierJA4 IdentifierType = "ja4"
	IdentifierIP  IdentifierType = "ip"
)

// ChallengeSession is a short-lived PoW CAPTCHA bypass, keyed by
// (EnvironmentID, Identifier, IdentifierType). A lookup must treat
// IdentifierType as part of the key: an IPv4 literal and a JA4 string with
// identical bytes must never collide.
type ChallengeSession struct {
	EnvironmentID  string
	Identifier     string
	IdentifierType IdentifierType
	UserAgent      string
	ExpiresAt      time.Time
}

// MonitorType distinguishes a bare reachability probe from one that
// targets a dedicated /health endpoint.
type MonitorType string

const (
	MonitorTypePlain  MonitorType = "plain"
	MonitorTypeHealth MonitorType = "health"
)

// StatusMonitor is the per-environment probe configuration.
type StatusMonitor struct {
	ID            string
	EnvironmentID string
	MonitorType   MonitorType
	IsActive      bool
	CreatedAt     time.Time
}

// CheckStatus is the outcome of a single StatusCheck sample.
type CheckStatus string

const (
	CheckOperational   CheckStatus = "operational"
	CheckDegraded      CheckStatus = "degraded"
	CheckMajorOutage   CheckStatus = "major_outage"
	CheckPartialOutage CheckStatus = "partial_outage"
)

// StatusCheck is one recorded probe sample against a StatusMonitor.
type StatusCheck struct {
	ID              string
	MonitorID       string
	Status          CheckStatus
	ResponseTimeMs  int
	CheckedAt       time.Time
	ErrorMessage    string
}

// AccessAction is the decision an IpAccessControl rule applies.
type AccessAction string

const (
	AccessBlock AccessAction = "block"
	AccessAllow AccessAction = "allow"
)

// IpAccessControl is a single CIDR-range block/allow rule.
type IpAccessControl struct {
	ID        string
	CIDR      string
	Action    AccessAction
	Reason    string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}
