package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gotempsh/temps/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketProjects          = []byte("projects")
	bucketEnvironments      = []byte("environments")
	bucketDeployments       = []byte("deployments")
	bucketDeploymentJobs    = []byte("deployment_jobs")
	bucketCertificates      = []byte("certificates")
	bucketAcmeAccounts      = []byte("acme_accounts")
	bucketChallengeSessions = []byte("challenge_sessions")
	bucketStatusMonitors    = []byte("status_monitors")
	bucketStatusChecks      = []byte("status_checks")
	bucketIPAccessControl   = []byte("ip_access_control")
	bucketJobLogs           = []byte("job_logs")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "temps.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketProjects,
			bucketEnvironments,
			bucketDeployments,
			bucketDeploymentJobs,
			bucketCertificates,
			bucketAcmeAccounts,
			bucketChallengeSessions,
			bucketStatusMonitors,
			bucketStatusChecks,
			bucketIPAccessControl,
			bucketJobLogs,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Projects ---

func (s *BoltStore) CreateProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return b.Put([]byte(project.ID), data)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("project not found: %s", id)
		}
		return json.Unmarshal(data, &project)
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *BoltStore) GetProjectBySlug(slug string) (*types.Project, error) {
	var found *types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			if project.Slug == slug {
				found = &project
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("project not found: %s", slug)
	}
	return found, nil
}

func (s *BoltStore) ListProjects() ([]*types.Project, error) {
	var projects []*types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketProjects)
		return b.ForEach(func(k, v []byte) error {
			var project types.Project
			if err := json.Unmarshal(v, &project); err != nil {
				return err
			}
			projects = append(projects, &project)
			return nil
		})
	})
	return projects, err
}

func (s *BoltStore) UpdateProject(project *types.Project) error {
	project.UpdatedAt = time.Now()
	return s.CreateProject(project)
}

func (s *BoltStore) DeleteProject(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketProjects).Delete([]byte(id))
	})
}

// --- Environments ---

func (s *BoltStore) CreateEnvironment(env *types.Environment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return b.Put([]byte(env.ID), data)
	})
}

func (s *BoltStore) GetEnvironment(id string) (*types.Environment, error) {
	var env types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("environment not found: %s", id)
		}
		return json.Unmarshal(data, &env)
	})
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *BoltStore) GetEnvironmentBySlug(projectID, slug string) (*types.Environment, error) {
	var found *types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		return b.ForEach(func(k, v []byte) error {
			var env types.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			if env.ProjectID == projectID && env.Slug == slug {
				found = &env
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("environment not found: %s/%s", projectID, slug)
	}
	return found, nil
}

func (s *BoltStore) GetEnvironmentByHost(host string) (*types.Environment, error) {
	var found *types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		return b.ForEach(func(k, v []byte) error {
			var env types.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			if env.Host == host || env.Subdomain == host {
				found = &env
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("environment not found for host: %s", host)
	}
	return found, nil
}

func (s *BoltStore) ListEnvironments() ([]*types.Environment, error) {
	var envs []*types.Environment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEnvironments)
		return b.ForEach(func(k, v []byte) error {
			var env types.Environment
			if err := json.Unmarshal(v, &env); err != nil {
				return err
			}
			envs = append(envs, &env)
			return nil
		})
	})
	return envs, err
}

func (s *BoltStore) ListEnvironmentsByProject(projectID string) ([]*types.Environment, error) {
	all, err := s.ListEnvironments()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Environment
	for _, env := range all {
		if env.ProjectID == projectID {
			filtered = append(filtered, env)
		}
	}
	return filtered, nil
}

func (s *BoltStore) UpdateEnvironment(env *types.Environment) error {
	env.UpdatedAt = time.Now()
	return s.CreateEnvironment(env)
}

func (s *BoltStore) DeleteEnvironment(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEnvironments).Delete([]byte(id))
	})
}

// --- Deployments ---

func (s *BoltStore) CreateDeployment(dep *types.Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(dep)
		if err != nil {
			return err
		}
		return b.Put([]byte(dep.ID), data)
	})
}

func (s *BoltStore) GetDeployment(id string) (*types.Deployment, error) {
	var dep types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment not found: %s", id)
		}
		return json.Unmarshal(data, &dep)
	})
	if err != nil {
		return nil, err
	}
	return &dep, nil
}

func (s *BoltStore) ListDeployments() ([]*types.Deployment, error) {
	var deps []*types.Deployment
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeployments)
		return b.ForEach(func(k, v []byte) error {
			var dep types.Deployment
			if err := json.Unmarshal(v, &dep); err != nil {
				return err
			}
			deps = append(deps, &dep)
			return nil
		})
	})
	return deps, err
}

func (s *BoltStore) ListDeploymentsByEnvironment(environmentID string) ([]*types.Deployment, error) {
	all, err := s.ListDeployments()
	if err != nil {
		return nil, err
	}
	var filtered []*types.Deployment
	for _, dep := range all {
		if dep.EnvironmentID == environmentID {
			filtered = append(filtered, dep)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})
	return filtered, nil
}

func (s *BoltStore) UpdateDeployment(dep *types.Deployment) error {
	return s.CreateDeployment(dep)
}

func (s *BoltStore) DeleteDeployment(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDeployments).Delete([]byte(id))
	})
}

// --- Deployment jobs ---

func (s *BoltStore) CreateDeploymentJob(job *types.DeploymentJob) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeploymentJobs)
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.ID), data)
	})
}

func (s *BoltStore) GetDeploymentJob(id string) (*types.DeploymentJob, error) {
	var job types.DeploymentJob
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeploymentJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("deployment job not found: %s", id)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListDeploymentJobs(deploymentID string) ([]*types.DeploymentJob, error) {
	var jobs []*types.DeploymentJob
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDeploymentJobs)
		return b.ForEach(func(k, v []byte) error {
			var job types.DeploymentJob
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.DeploymentID == deploymentID {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].ExecutionOrder < jobs[j].ExecutionOrder
	})
	return jobs, err
}

func (s *BoltStore) UpdateDeploymentJob(job *types.DeploymentJob) error {
	return s.CreateDeploymentJob(job)
}

// --- Certificates ---

func (s *BoltStore) CreateCertificate(cert *types.Certificate) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		data, err := json.Marshal(cert)
		if err != nil {
			return err
		}
		return b.Put([]byte(cert.ID), data)
	})
}

func (s *BoltStore) GetCertificate(id string) (*types.Certificate, error) {
	var cert types.Certificate
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("certificate not found: %s", id)
		}
		return json.Unmarshal(data, &cert)
	})
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (s *BoltStore) GetCertificateByDomain(domain string) (*types.Certificate, error) {
	var found *types.Certificate
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		return b.ForEach(func(k, v []byte) error {
			var cert types.Certificate
			if err := json.Unmarshal(v, &cert); err != nil {
				return err
			}
			if cert.Domain == domain {
				found = &cert
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("certificate not found for domain: %s", domain)
	}
	return found, nil
}

func (s *BoltStore) GetCertificatesByHost(host string) ([]*types.Certificate, error) {
	var certs []*types.Certificate
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		return b.ForEach(func(k, v []byte) error {
			var cert types.Certificate
			if err := json.Unmarshal(v, &cert); err != nil {
				return err
			}
			if cert.Domain == host || matchWildcard(cert.Domain, host) {
				certs = append(certs, &cert)
				return nil
			}
			for _, san := range cert.SANs {
				if san == host || matchWildcard(san, host) {
					certs = append(certs, &cert)
					return nil
				}
			}
			return nil
		})
	})
	return certs, err
}

// matchWildcard reports whether a wildcard domain pattern (e.g. "*.example.com")
// matches host.
func matchWildcard(pattern, host string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	suffix := pattern[1:] // ".example.com"
	return strings.HasSuffix(host, suffix) && host != suffix[1:]
}

func (s *BoltStore) ListCertificates() ([]*types.Certificate, error) {
	var certs []*types.Certificate
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCertificates)
		return b.ForEach(func(k, v []byte) error {
			var cert types.Certificate
			if err := json.Unmarshal(v, &cert); err != nil {
				return err
			}
			certs = append(certs, &cert)
			return nil
		})
	})
	return certs, err
}

func (s *BoltStore) UpdateCertificate(cert *types.Certificate) error {
	return s.CreateCertificate(cert)
}

func (s *BoltStore) DeleteCertificate(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCertificates).Delete([]byte(id))
	})
}

// --- ACME accounts ---

func (s *BoltStore) CreateAcmeAccount(account *types.AcmeAccount) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAcmeAccounts)
		data, err := json.Marshal(account)
		if err != nil {
			return err
		}
		return b.Put([]byte(account.ID), data)
	})
}

func (s *BoltStore) GetAcmeAccount(email string, env types.AcmeEnvironment) (*types.AcmeAccount, error) {
	var found *types.AcmeAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAcmeAccounts)
		return b.ForEach(func(k, v []byte) error {
			var account types.AcmeAccount
			if err := json.Unmarshal(v, &account); err != nil {
				return err
			}
			if account.Email == email && account.Environment == env {
				found = &account
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("acme account not found: %s (%s)", email, env)
	}
	return found, nil
}

func (s *BoltStore) ListAcmeAccounts() ([]*types.AcmeAccount, error) {
	var accounts []*types.AcmeAccount
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAcmeAccounts)
		return b.ForEach(func(k, v []byte) error {
			var account types.AcmeAccount
			if err := json.Unmarshal(v, &account); err != nil {
				return err
			}
			accounts = append(accounts, &account)
			return nil
		})
	})
	return accounts, err
}

// --- CAPTCHA challenge sessions ---

func challengeSessionKey(environmentID, identifier string, identifierType types.IdentifierType) []byte {
	return []byte(environmentID + "|" + string(identifierType) + "|" + identifier)
}

func (s *BoltStore) CreateChallengeSession(session *types.ChallengeSession) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallengeSessions)
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		key := challengeSessionKey(session.EnvironmentID, session.Identifier, session.IdentifierType)
		return b.Put(key, data)
	})
}

func (s *BoltStore) GetChallengeSession(environmentID, identifier string, identifierType types.IdentifierType) (*types.ChallengeSession, error) {
	var session types.ChallengeSession
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallengeSessions)
		data := b.Get(challengeSessionKey(environmentID, identifier, identifierType))
		if data == nil {
			return fmt.Errorf("challenge session not found")
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltStore) DeleteExpiredChallengeSessions() error {
	now := time.Now()
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChallengeSessions)
		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var session types.ChallengeSession
			if err := json.Unmarshal(v, &session); err != nil {
				return err
			}
			if now.After(session.ExpiresAt) {
				key := make([]byte, len(k))
				copy(key, k)
				expired = append(expired, key)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range expired {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- Status monitors and checks ---

func (s *BoltStore) CreateStatusMonitor(monitor *types.StatusMonitor) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatusMonitors)
		data, err := json.Marshal(monitor)
		if err != nil {
			return err
		}
		return b.Put([]byte(monitor.ID), data)
	})
}

func (s *BoltStore) GetStatusMonitor(id string) (*types.StatusMonitor, error) {
	var monitor types.StatusMonitor
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatusMonitors)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("status monitor not found: %s", id)
		}
		return json.Unmarshal(data, &monitor)
	})
	if err != nil {
		return nil, err
	}
	return &monitor, nil
}

func (s *BoltStore) ListStatusMonitors() ([]*types.StatusMonitor, error) {
	var monitors []*types.StatusMonitor
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatusMonitors)
		return b.ForEach(func(k, v []byte) error {
			var monitor types.StatusMonitor
			if err := json.Unmarshal(v, &monitor); err != nil {
				return err
			}
			monitors = append(monitors, &monitor)
			return nil
		})
	})
	return monitors, err
}

func (s *BoltStore) ListActiveStatusMonitors() ([]*types.StatusMonitor, error) {
	all, err := s.ListStatusMonitors()
	if err != nil {
		return nil, err
	}
	var active []*types.StatusMonitor
	for _, monitor := range all {
		if monitor.IsActive {
			active = append(active, monitor)
		}
	}
	return active, nil
}

func (s *BoltStore) UpdateStatusMonitor(monitor *types.StatusMonitor) error {
	return s.CreateStatusMonitor(monitor)
}

func (s *BoltStore) DeleteStatusMonitor(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketStatusMonitors).Delete([]byte(id))
	})
}

func (s *BoltStore) CreateStatusCheck(check *types.StatusCheck) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatusChecks)
		data, err := json.Marshal(check)
		if err != nil {
			return err
		}
		// Key on monitor + check ID so a monitor's checks share a key prefix
		// and can be range-scanned without a secondary index. Check IDs are
		// not time-ordered, so key order is not insertion order.
		key := []byte(check.MonitorID + "|" + check.ID)
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListStatusChecksByMonitor(monitorID string, limit int) ([]*types.StatusCheck, error) {
	var checks []*types.StatusCheck
	prefix := []byte(monitorID + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStatusChecks)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var check types.StatusCheck
			if err := json.Unmarshal(v, &check); err != nil {
				return err
			}
			checks = append(checks, &check)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(checks, func(i, j int) bool {
		return checks[i].CheckedAt.After(checks[j].CheckedAt)
	})
	if limit > 0 && len(checks) > limit {
		checks = checks[:limit]
	}
	return checks, nil
}

// --- IP access control ---

func (s *BoltStore) CreateIPAccessControl(rule *types.IpAccessControl) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIPAccessControl)
		data, err := json.Marshal(rule)
		if err != nil {
			return err
		}
		return b.Put([]byte(rule.ID), data)
	})
}

func (s *BoltStore) GetIPAccessControl(id string) (*types.IpAccessControl, error) {
	var rule types.IpAccessControl
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIPAccessControl)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("ip access control rule not found: %s", id)
		}
		return json.Unmarshal(data, &rule)
	})
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (s *BoltStore) GetIPAccessControlByCIDR(cidr string) (*types.IpAccessControl, error) {
	var found *types.IpAccessControl
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIPAccessControl)
		return b.ForEach(func(k, v []byte) error {
			var rule types.IpAccessControl
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			if rule.CIDR == cidr {
				found = &rule
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("ip access control rule not found: %s", cidr)
	}
	return found, nil
}

func (s *BoltStore) ListIPAccessControl() ([]*types.IpAccessControl, error) {
	var rules []*types.IpAccessControl
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIPAccessControl)
		return b.ForEach(func(k, v []byte) error {
			var rule types.IpAccessControl
			if err := json.Unmarshal(v, &rule); err != nil {
				return err
			}
			rules = append(rules, &rule)
			return nil
		})
	})
	return rules, err
}

func (s *BoltStore) UpdateIPAccessControl(rule *types.IpAccessControl) error {
	rule.UpdatedAt = time.Now()
	return s.CreateIPAccessControl(rule)
}

func (s *BoltStore) DeleteIPAccessControl(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketIPAccessControl).Delete([]byte(id))
	})
}

// --- Job logs ---

// AppendLogEntry implements Store. It assigns entry the next Sequence
// number for its LogID by scanning the existing prefix, then writes it
// under a zero-padded key so a prefix cursor scan returns entries in
// insertion order without a secondary index.
func (s *BoltStore) AppendLogEntry(entry *types.LogEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobLogs)
		prefix := entry.LogID + "|"
		seq := 0
		c := b.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			seq++
		}
		entry.Sequence = seq
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s%08d", prefix, seq)
		return b.Put([]byte(key), data)
	})
}

// ListLogEntries implements Store, returning entries for logID in
// insertion order.
func (s *BoltStore) ListLogEntries(logID string) ([]*types.LogEntry, error) {
	var entries []*types.LogEntry
	prefix := []byte(logID + "|")
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobLogs)
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var entry types.LogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
		}
		return nil
	})
	return entries, err
}
