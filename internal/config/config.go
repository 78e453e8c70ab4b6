// Package config resolves scheduler and backend configuration from the
// environment, with an optional JSON5 backends file underneath it.
// Environment variables always win over file values.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Defaults for the scheduler's own control plane.
const (
	DefaultTickSeconds        = 5
	DefaultMaxJobsPerTick     = 20
	DefaultCallTimeoutSeconds = 15
	DefaultRetentionDays      = 30
	DefaultHost               = "127.0.0.1"
	DefaultPort               = 8787
	DefaultParallelism        = 4
)

// Config holds all startup configuration for the scheduler service.
type Config struct {
	Transport      string // control plane transport: "stdio" or "http"
	Host           string
	Port           int
	DatabaseURL    string
	TickSeconds    int
	MaxJobsPerTick int
	Parallelism    int // concurrent dispatches within one tick
	CallTimeoutSec int // default per-call dispatch timeout
	BootstrapJobs  bool
	ClientToken    string // control-plane shared secret; empty = open (local dev)
	RetentionDays  int    // audit retention horizon
	BackendsFile   string
	SeedFile       string

	Backends map[string]BackendSpec
}

// Load resolves configuration once at startup.
func Load() (*Config, error) {
	cfg := &Config{
		Transport:      NormalizeTransport(envStr("SCHEDULER_MCP_TRANSPORT", "http")),
		Host:           envStr("SCHEDULER_MCP_HOST", DefaultHost),
		Port:           envInt("SCHEDULER_MCP_PORT", DefaultPort, 1),
		DatabaseURL:    databaseURL(),
		TickSeconds:    envInt("SCHEDULER_TICK_SECONDS", DefaultTickSeconds, 1),
		MaxJobsPerTick: envInt("SCHEDULER_MAX_JOBS_PER_TICK", DefaultMaxJobsPerTick, 1),
		Parallelism:    envInt("SCHEDULER_TICK_PARALLELISM", DefaultParallelism, 1),
		CallTimeoutSec: envInt("SCHEDULER_CALL_TIMEOUT_SECONDS", DefaultCallTimeoutSeconds, 1),
		BootstrapJobs:  envBool("SCHEDULER_BOOTSTRAP_JOBS", true),
		ClientToken:    os.Getenv("SCHEDULER_MCP_CLIENT_TOKEN"),
		RetentionDays:  envInt("SCHEDULER_AUDIT_RETENTION_DAYS", DefaultRetentionDays, 1),
		BackendsFile:   envStr("MCPTICK_BACKENDS_FILE", ExpandHome("~/.mcptick/backends.json5")),
		SeedFile:       os.Getenv("MCPTICK_SEED_FILE"),
	}

	backends, err := LoadBackends(cfg.BackendsFile)
	if err != nil {
		return nil, err
	}
	cfg.Backends = backends
	return cfg, nil
}

// DefaultDatabasePath is the repo-default embedded store location.
// Bootstrap seeding only ever happens against this path.
func DefaultDatabasePath() string {
	return ExpandHome("~/.mcptick/scheduler.db")
}

func databaseURL() string {
	if v := os.Getenv("SCHEDULER_DATABASE_URL"); v != "" {
		return v
	}
	if v := os.Getenv("PLATFORM_DATABASE_URL"); v != "" {
		return v
	}
	return DefaultDatabasePath()
}

// ListenAddr returns the control-plane HTTP listen address.
func (c *Config) ListenAddr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// ExpandHome expands a leading ~/ to the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") && path != "~" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// --- env helpers ---

func envStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def, floor int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	if n < floor {
		return floor
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
