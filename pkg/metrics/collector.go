package metrics

import (
	"time"

	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/types"
)

// Collector periodically samples storage.Store into the package's
// Prometheus gauges.
type Collector struct {
	store  storage.Store
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector backed by store.
func NewCollector(store storage.Store) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second tick, and once
// immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectProjectMetrics()
	c.collectEnvironmentMetrics()
	c.collectDeploymentMetrics()
	c.collectCertificateMetrics()
	c.collectStatusCheckMetrics()
}

func (c *Collector) collectProjectMetrics() {
	projects, err := c.store.ListProjects()
	if err != nil {
		return
	}
	ProjectsTotal.Set(float64(len(projects)))
}

func (c *Collector) collectEnvironmentMetrics() {
	envs, err := c.store.ListEnvironments()
	if err != nil {
		return
	}
	EnvironmentsTotal.Set(float64(len(envs)))
}

func (c *Collector) collectDeploymentMetrics() {
	deployments, err := c.store.ListDeployments()
	if err != nil {
		return
	}

	counts := make(map[types.DeploymentState]int)
	jobCounts := make(map[types.JobStatus]int)

	for _, dep := range deployments {
		counts[dep.State]++

		jobs, err := c.store.ListDeploymentJobs(dep.ID)
		if err != nil {
			continue
		}
		for _, job := range jobs {
			jobCounts[job.Status]++
		}
	}

	for state, count := range counts {
		DeploymentsTotal.WithLabelValues(string(state)).Set(float64(count))
	}
	for status, count := range jobCounts {
		DeploymentJobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectCertificateMetrics() {
	certs, err := c.store.ListCertificates()
	if err != nil {
		return
	}

	counts := make(map[types.CertificateStatus]int)
	for _, cert := range certs {
		counts[cert.Status]++
	}
	for status, count := range counts {
		CertificatesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectStatusCheckMetrics() {
	monitors, err := c.store.ListStatusMonitors()
	if err != nil {
		return
	}

	counts := make(map[types.CheckStatus]int)
	for _, mon := range monitors {
		checks, err := c.store.ListStatusChecksByMonitor(mon.ID, 1)
		if err != nil || len(checks) == 0 {
			continue
		}
		counts[checks[0].Status]++
	}
	for status, count := range counts {
		StatusChecksTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
