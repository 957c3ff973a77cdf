/*
Package log provides structured logging for the deployment core using
zerolog.

A single global Logger is initialized once via Init and read from
everywhere else; component- and entity-scoped child loggers are created
with WithComponent, WithDeploymentID, WithJobID, WithEnvironmentID, and
WithMonitorID so that related log lines can be grepped or aggregated by
the entity they concern.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	jobLog := log.WithJobID(job.ID)
	jobLog.Info().Str("deployment_id", dep.ID).Msg("job started")
*/
package log
