/*
Package types defines the domain model shared by every other package in
the deployment core: projects and their environments, deployments and
the jobs that make them up, ACME certificates and accounts, CAPTCHA
challenge sessions, status monitors and their checks, and IP access
control rules.

All enums are typed strings so they serialize to readable JSON in
storage and in the REST API without a translation layer. Optional
relationships are carried as ID strings (never as embedded pointers)
so that the storage layer owns the only copy of each entity and
callers always look relations up through the Store.

# Core types

Project and Environment describe what to deploy and where; Deployment
and DeploymentJob describe one run of the workflow engine against an
Environment. Certificate, AcmeAccount, and ChallengeData describe the
ACME lifecycle; ChallengeSession is the proxy's CAPTCHA bypass record.
StatusMonitor and StatusCheck back the health scheduler, and
IpAccessControl backs the proxy's CIDR allow/block list.
*/
package types
