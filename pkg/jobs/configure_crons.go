package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gotempsh/temps/pkg/log"
	"github.com/gotempsh/temps/pkg/storage"
	"github.com/gotempsh/temps/pkg/workflow"
)

// CronEntry is one scheduled task declared under .temps.yaml's cron key.
type CronEntry struct {
	Path     string `yaml:"path"`
	Schedule string `yaml:"schedule"`
	Name     string `yaml:"name,omitempty"`
}

// temposYAML is the subset of .temps.yaml this job consumes.
type temposYAML struct {
	Cron []CronEntry `yaml:"cron"`
}

// CronRegistrar registers a repo's declared cron entries against an
// external cron service. The core never implements scheduling itself.
type CronRegistrar interface {
	Register(environmentID string, entries []CronEntry) error
}

// NoOpCronRegistrar is the default CronRegistrar: it logs what it would
// have registered and reports success, matching the reference
// implementation's "no cron service configured" fallback.
type NoOpCronRegistrar struct{}

// Register implements CronRegistrar.
func (NoOpCronRegistrar) Register(environmentID string, entries []CronEntry) error {
	if len(entries) == 0 {
		return nil
	}
	log.Warn(fmt.Sprintf("jobs: configure_crons: no cron service configured, skipping %d entries for environment %s", len(entries), environmentID))
	return nil
}

// ConfigureCronsJob reads .temps.yaml from the downloaded repository and
// registers its cron entries. A missing file, or one with no cron key, is
// not an error.
type ConfigureCronsJob struct {
	Store     storage.Store
	Registrar CronRegistrar
	// Deps lists the jobs this run's graph actually contains that crons
	// must wait on (download, plus whichever deploy job ran); the builder
	// sets this per deployment source type since not every graph includes
	// a download or a container deploy.
	Deps []string
}

// JobID implements workflow.Job.
func (j *ConfigureCronsJob) JobID() string { return IDConfigCrons }

// Name implements workflow.Job.
func (j *ConfigureCronsJob) Name() string { return "Configure crons" }

// DependsOn implements workflow.Job.
func (j *ConfigureCronsJob) DependsOn() []string { return j.Deps }

// Execute implements workflow.Job.
func (j *ConfigureCronsJob) Execute(ctx context.Context, wc *workflow.Context) (workflow.Result, error) {
	repoDir, ok, err := workflow.GetOutput[string](wc, IDDownload, outRepoDir)
	if err != nil {
		return workflow.Failure(err.Error()), err
	}
	if !ok {
		return workflow.Skipped("no repository checkout available"), nil
	}

	cfg, err := readTempsYAML(repoDir)
	if err != nil {
		return workflow.Failure(err.Error()), err
	}
	if len(cfg.Cron) == 0 {
		_ = wc.Log.WriteLog("no cron entries declared in .temps.yaml")
		return workflow.Success("no cron entries to configure"), nil
	}

	registrar := j.Registrar
	if registrar == nil {
		registrar = NoOpCronRegistrar{}
	}
	if err := registrar.Register(wc.EnvironmentID, cfg.Cron); err != nil {
		_ = wc.Log.WriteLog("error: " + err.Error())
		return workflow.Failure(err.Error()), err
	}

	_ = wc.Log.WriteLog(fmt.Sprintf("success: registered %d cron entries", len(cfg.Cron)))
	return workflow.Success(fmt.Sprintf("configured %d cron entries", len(cfg.Cron))), nil
}

func readTempsYAML(repoDir string) (temposYAML, error) {
	path := filepath.Join(repoDir, ".temps.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return temposYAML{}, nil
	}
	if err != nil {
		return temposYAML{}, fmt.Errorf("jobs: configure_crons: read .temps.yaml: %w", err)
	}

	var cfg temposYAML
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return temposYAML{}, fmt.Errorf("jobs: configure_crons: parse .temps.yaml: %w", err)
	}
	return cfg, nil
}
