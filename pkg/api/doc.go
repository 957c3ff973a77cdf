// Package api implements the deployment core's HTTP surface: the
// bearer-authenticated deployment-trigger endpoints the CLI and webhooks
// call, GitHub push-webhook signature verification, the CAPTCHA verify
// endpoint and its static solver assets, and the process's health/ready/
// metrics handlers.
//
// Project/environment/user CRUD, env vars, custom domains, Sentry-style
// error ingestion, and full webhook business logic live outside this
// core; Server only implements the slice of the HTTP API the deployment
// core itself must answer.
package api
