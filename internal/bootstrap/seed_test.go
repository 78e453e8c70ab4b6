package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/mcptick/internal/config"
	"github.com/nextlevelbuilder/mcptick/internal/store"
	"github.com/nextlevelbuilder/mcptick/internal/store/sqlite"
)

func newTestStore(t *testing.T, kind string) store.Store {
	t.Helper()
	db, err := sqlite.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	st, err := store.NewWithDB(db, kind)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func defaultCfg() *config.Config {
	return &config.Config{
		BootstrapJobs: true,
		DatabaseURL:   config.DefaultDatabasePath(),
		Backends: map[string]config.BackendSpec{
			"docker": {Name: "docker", Transport: config.TransportHTTP, URL: "http://localhost:9000"},
		},
	}
}

func TestSeedBuiltinJobs(t *testing.T) {
	st := newTestStore(t, "sqlite")
	ctx := context.Background()

	if err := Seed(ctx, defaultCfg(), st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected scheduler + docker jobs, got %d", len(jobs))
	}

	byServer := map[string]store.Job{}
	for _, j := range jobs {
		byServer[j.Server] = j
	}
	if byServer[SchedulerBackend].Tool != "scheduler_health" {
		t.Errorf("expected scheduler self-check, got %+v", byServer[SchedulerBackend])
	}
	if byServer["docker"].Tool != "health" {
		t.Errorf("expected docker health job, got %+v", byServer["docker"])
	}
	for _, j := range jobs {
		if j.IntervalSeconds != seedIntervalSeconds {
			t.Errorf("expected %ds interval, got %d", seedIntervalSeconds, j.IntervalSeconds)
		}
		// Due immediately, not one interval out.
		if j.NextRunAt == nil || j.NextRunAt.After(time.Now().UTC().Add(5*time.Second)) {
			t.Errorf("expected job %s due now, got %v", j.Label, j.NextRunAt)
		}
	}
}

func TestSeedSkipsNonEmptyStore(t *testing.T) {
	st := newTestStore(t, "sqlite")
	ctx := context.Background()

	if _, err := st.UpsertJob(ctx, store.JobFields{
		Label: "existing", Server: "s", Tool: "t", IntervalSeconds: 60,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := Seed(ctx, defaultCfg(), st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("expected no additional seeding, got %d jobs", len(jobs))
	}
}

func TestSeedSkipsPostgres(t *testing.T) {
	st := newTestStore(t, "postgres")
	ctx := context.Background()

	if err := Seed(ctx, defaultCfg(), st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected postgres never seeded, got %d jobs", len(jobs))
	}
}

func TestSeedSkipsNonDefaultPath(t *testing.T) {
	st := newTestStore(t, "sqlite")
	cfg := defaultCfg()
	cfg.DatabaseURL = "/var/lib/other.db"

	if err := Seed(context.Background(), cfg, st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobs, err := st.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no seeding off the default path, got %d jobs", len(jobs))
	}
}

func TestSeedDisabled(t *testing.T) {
	st := newTestStore(t, "sqlite")
	cfg := defaultCfg()
	cfg.BootstrapJobs = false

	if err := Seed(context.Background(), cfg, st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobs, err := st.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("expected no seeding when disabled, got %d jobs", len(jobs))
	}
}

func TestSeedFromYAMLFile(t *testing.T) {
	st := newTestStore(t, "sqlite")
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	content := `jobs:
  - label: nightly cleanup
    server: docker
    tool: prune
    args:
      force: true
    interval_seconds: 3600
  - label: disabled probe
    server: jenkins
    tool: ping
    interval_seconds: 60
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	cfg := defaultCfg()
	cfg.SeedFile = path

	if err := Seed(ctx, cfg, st); err != nil {
		t.Fatalf("seed: %v", err)
	}

	jobs, err := st.ListJobs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 seeded jobs, got %d", len(jobs))
	}

	byLabel := map[string]store.Job{}
	for _, j := range jobs {
		byLabel[j.Label] = j
	}
	cleanup := byLabel["nightly cleanup"]
	if cleanup.IntervalSeconds != 3600 || cleanup.ArgsJSON != `{"force":true}` {
		t.Errorf("unexpected cleanup job: %+v", cleanup)
	}
	if byLabel["disabled probe"].Enabled {
		t.Error("expected disabled probe to be seeded disabled")
	}
}
