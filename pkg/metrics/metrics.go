package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Deployment core metrics
	ProjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "temps_projects_total",
			Help: "Total number of projects",
		},
	)

	EnvironmentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "temps_environments_total",
			Help: "Total number of environments",
		},
	)

	DeploymentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "temps_deployments_total",
			Help: "Total number of deployments by state",
		},
		[]string{"state"},
	)

	DeploymentJobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "temps_deployment_jobs_total",
			Help: "Total number of deployment jobs by status",
		},
		[]string{"status"},
	)

	CertificatesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "temps_certificates_total",
			Help: "Total number of certificates by status",
		},
		[]string{"status"},
	)

	StatusChecksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "temps_status_checks_total",
			Help: "Total number of recent status checks by status",
		},
		[]string{"status"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Workflow engine metrics
	JobExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_job_execution_duration_seconds",
			Help:    "Time taken to execute a workflow job in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_id"},
	)

	DeploymentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "temps_deployment_duration_seconds",
			Help:    "Time from deployment creation to completion in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	DeploymentsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_deployments_failed_total",
			Help: "Total number of deployments that failed",
		},
		[]string{"source_type"},
	)

	// ACME / certificate provider metrics
	CertificateRenewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_certificate_renewals_total",
			Help: "Total number of certificate renewal attempts by result",
		},
		[]string{"result"},
	)

	// Ingress metrics
	IngressRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_ingress_requests_total",
			Help: "Total number of proxied requests by host and status code",
		},
		[]string{"host", "status"},
	)

	IngressRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_ingress_request_duration_seconds",
			Help:    "Ingress request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host"},
	)

	CaptchaChallengesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "temps_captcha_challenges_total",
			Help: "Total number of PoW CAPTCHA verify attempts by result",
		},
		[]string{"result"},
	)

	// Health monitor metrics
	HealthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "temps_health_check_duration_seconds",
			Help:    "Time taken to probe an environment's public URL in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(ProjectsTotal)
	prometheus.MustRegister(EnvironmentsTotal)
	prometheus.MustRegister(DeploymentsTotal)
	prometheus.MustRegister(DeploymentJobsTotal)
	prometheus.MustRegister(CertificatesTotal)
	prometheus.MustRegister(StatusChecksTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(JobExecutionDuration)
	prometheus.MustRegister(DeploymentDuration)
	prometheus.MustRegister(DeploymentsFailedTotal)
	prometheus.MustRegister(CertificateRenewalsTotal)
	prometheus.MustRegister(IngressRequestsTotal)
	prometheus.MustRegister(IngressRequestDuration)
	prometheus.MustRegister(CaptchaChallengesTotal)
	prometheus.MustRegister(HealthCheckDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
