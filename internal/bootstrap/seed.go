// Package bootstrap seeds a fresh embedded database with starter jobs so a
// first run has something to tick. It never touches an existing or external
// database.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nextlevelbuilder/mcptick/internal/config"
	"github.com/nextlevelbuilder/mcptick/internal/store"
)

// seedIntervalSeconds is the interval for the built-in health jobs.
const seedIntervalSeconds = 60

// SchedulerBackend is the backend name under which the service registers
// itself for self-dispatch.
const SchedulerBackend = "scheduler"

type seedFile struct {
	Jobs []seedJob `yaml:"jobs"`
}

type seedJob struct {
	Label           string         `yaml:"label"`
	Server          string         `yaml:"server"`
	Tool            string         `yaml:"tool"`
	Args            map[string]any `yaml:"args"`
	IntervalSeconds int            `yaml:"interval_seconds"`
	Enabled         *bool          `yaml:"enabled"`
}

// Seed inserts starter jobs into a brand-new default database. The gate is
// deliberately narrow: bootstrap enabled, embedded engine, the default path,
// and zero existing jobs. A database that ever held a job is never reseeded.
func Seed(ctx context.Context, cfg *config.Config, st store.Store) error {
	if !cfg.BootstrapJobs {
		return nil
	}
	if st.Kind() != "sqlite" || cfg.DatabaseURL != config.DefaultDatabasePath() {
		return nil
	}

	existing, err := st.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list jobs: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	jobs, err := seedJobs(cfg)
	if err != nil {
		return err
	}

	// First run immediately, so a fresh install shows activity on the
	// first tick instead of one interval later.
	now := time.Now().UTC()

	created := 0
	for _, fields := range jobs {
		if fields.NextRunAt == nil {
			fields.NextRunAt = &now
		}
		if _, err := st.UpsertJob(ctx, fields); err != nil {
			slog.Warn("bootstrap: seed job failed", "label", fields.Label, "error", err)
			continue
		}
		created++
	}
	slog.Info("bootstrap: seeded jobs", "count", created)
	return nil
}

func seedJobs(cfg *config.Config) ([]store.JobFields, error) {
	if cfg.SeedFile != "" {
		return loadSeedFile(cfg.SeedFile)
	}
	return builtinJobs(cfg), nil
}

// builtinJobs is one health check per reachable backend, plus the
// scheduler's own, each on a minute cadence.
func builtinJobs(cfg *config.Config) []store.JobFields {
	jobs := []store.JobFields{{
		Label:           "scheduler self-check",
		Server:          SchedulerBackend,
		Tool:            "scheduler_health",
		IntervalSeconds: seedIntervalSeconds,
	}}

	for name, spec := range cfg.Backends {
		if !spec.Configured() {
			continue
		}
		jobs = append(jobs, store.JobFields{
			Label:           name + " health check",
			Server:          name,
			Tool:            "health",
			IntervalSeconds: seedIntervalSeconds,
		})
	}
	return jobs
}

func loadSeedFile(path string) ([]store.JobFields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: read seed file: %w", err)
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("bootstrap: parse seed file: %w", err)
	}

	jobs := make([]store.JobFields, 0, len(f.Jobs))
	for _, j := range f.Jobs {
		jobs = append(jobs, store.JobFields{
			Label:           j.Label,
			Server:          j.Server,
			Tool:            j.Tool,
			Args:            j.Args,
			IntervalSeconds: j.IntervalSeconds,
			Enabled:         j.Enabled,
		})
	}
	return jobs, nil
}
