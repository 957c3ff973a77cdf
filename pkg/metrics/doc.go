/*
Package metrics defines and registers the deployment core's Prometheus
metrics and exposes them over HTTP for scraping.

Metric groups:

  - Core state gauges (ProjectsTotal, EnvironmentsTotal, DeploymentsTotal,
    DeploymentJobsTotal, CertificatesTotal, StatusChecksTotal) — sampled
    periodically by Collector from storage.Store.
  - API metrics (APIRequestsTotal, APIRequestDuration).
  - Workflow engine metrics (JobExecutionDuration, DeploymentDuration,
    DeploymentsFailedTotal).
  - Certificate provider metrics (CertificateRenewalsTotal).
  - Ingress metrics (IngressRequestsTotal, IngressRequestDuration,
    CaptchaChallengesTotal).
  - Health monitor metrics (HealthCheckDuration).

Only the core state gauges are populated: Collector re-derives them by
listing current storage state every 15 seconds. The other groups are
registered and exported, but no package in this repository records to
them, so they stay at their zero values.

HealthChecker (health.go) is a separate, in-memory component registry:
RegisterComponent/UpdateComponent record a component's state, and
GetHealth/GetReadiness aggregate it into a liveness/readiness verdict
served by HealthHandler, ReadyHandler and LivenessHandler. pkg/api's
/health and /ready endpoints use their own handlers and do not consult
this registry.

Handler returns the standard promhttp handler for mounting at /metrics.
*/
package metrics
