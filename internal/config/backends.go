package config

import (
	"fmt"
	"os"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/titanous/json5"
)

// Transport values for backends and the control plane. "sse" is accepted as
// a legacy synonym for "http" and normalized on load.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Built-in backend names. These get env-pattern resolution even without a
// backends file, and drive default bootstrap seeding.
var BuiltinBackends = []string{"docker", "jenkins", "nexus", "browser", "search"}

// BackendSpec describes one MCP tool server the scheduler can dispatch to.
type BackendSpec struct {
	Name        string
	Transport   string            // "stdio" or "http"
	URL         string            // base URL for http transport
	Command     []string          // argv for stdio transport
	Env         map[string]string // extra child environment for stdio
	Root        string            // code root injected as PYTHONPATH for stdio children
	ClientToken string            // injected as _client_token on every call
	TimeoutSec  int               // per-call timeout override; 0 = scheduler default
}

// Configured reports whether the spec is complete enough to dispatch to.
func (b BackendSpec) Configured() bool {
	switch b.Transport {
	case TransportHTTP:
		return b.URL != ""
	case TransportStdio:
		return len(b.Command) > 0
	default:
		return false
	}
}

// NormalizeTransport lowercases a transport name and maps the "sse" synonym
// to "http". Unknown values pass through for the caller to reject.
func NormalizeTransport(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "sse" {
		return TransportHTTP
	}
	return t
}

// backendsFile is the JSON5 shape of the optional backends file.
type backendsFile struct {
	Backends map[string]backendFileEntry `json:"backends"`
}

type backendFileEntry struct {
	Transport   string            `json:"transport"`
	URL         string            `json:"url"`
	Command     string            `json:"command"`
	Env         map[string]string `json:"env"`
	Root        string            `json:"root"`
	ClientToken string            `json:"client_token"`
	TimeoutSec  int               `json:"timeout_seconds"`
}

// LoadBackends resolves backend specs from the optional JSON5 file plus the
// per-backend environment pattern (X_MCP_TRANSPORT, X_MCP_URL, X_MCP_COMMAND,
// X_MCP_CLIENT_TOKEN, X_MCP_ENV, X_MCP_ROOT). Environment wins over file.
// Only specs that end up Configured() are returned.
func LoadBackends(path string) (map[string]BackendSpec, error) {
	specs := make(map[string]BackendSpec)

	if path != "" {
		fromFile, err := loadBackendsFile(path)
		if err != nil {
			return nil, err
		}
		for name, spec := range fromFile {
			specs[name] = spec
		}
	}

	// Built-in names plus any name mentioned by a *_MCP_* env variable.
	names := make(map[string]bool)
	for _, n := range BuiltinBackends {
		names[n] = true
	}
	for n := range specs {
		names[n] = true
	}
	for _, n := range envBackendNames() {
		names[n] = true
	}

	for name := range names {
		spec := specs[name]
		spec.Name = name
		if err := applyEnvOverrides(&spec); err != nil {
			return nil, err
		}
		if spec.Transport == "" {
			// Infer: URL implies http, command implies stdio.
			if spec.URL != "" {
				spec.Transport = TransportHTTP
			} else if len(spec.Command) > 0 {
				spec.Transport = TransportStdio
			}
		}
		if spec.Configured() {
			specs[name] = spec
		} else {
			delete(specs, name)
		}
	}

	return specs, nil
}

func loadBackendsFile(path string) (map[string]BackendSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backends file: %w", err)
	}

	var file backendsFile
	if err := json5.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse backends file %s: %w", path, err)
	}

	specs := make(map[string]BackendSpec, len(file.Backends))
	for name, e := range file.Backends {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		spec := BackendSpec{
			Name:        name,
			Transport:   NormalizeTransport(e.Transport),
			URL:         e.URL,
			Env:         e.Env,
			Root:        e.Root,
			ClientToken: e.ClientToken,
			TimeoutSec:  e.TimeoutSec,
		}
		if e.Command != "" {
			argv, err := shellwords.Parse(e.Command)
			if err != nil {
				return nil, fmt.Errorf("parse command for backend %s: %w", name, err)
			}
			spec.Command = argv
		}
		specs[name] = spec
	}
	return specs, nil
}

// envBackendNames scans the process environment for the X_MCP_* pattern and
// returns the backend names it implies (lowercased).
func envBackendNames() []string {
	suffixes := []string{"_MCP_TRANSPORT", "_MCP_URL", "_MCP_COMMAND"}
	var names []string
	for _, kv := range os.Environ() {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, suffix := range suffixes {
			prefix, found := strings.CutSuffix(key, suffix)
			if !found || prefix == "" {
				continue
			}
			// SCHEDULER_MCP_* configures the control plane, not a backend.
			if prefix == "SCHEDULER" {
				continue
			}
			names = append(names, strings.ToLower(prefix))
		}
	}
	return names
}

func applyEnvOverrides(spec *BackendSpec) error {
	prefix := strings.ToUpper(spec.Name) + "_MCP_"

	if v := os.Getenv(prefix + "TRANSPORT"); v != "" {
		spec.Transport = NormalizeTransport(v)
	}
	if v := os.Getenv(prefix + "URL"); v != "" {
		spec.URL = v
	}
	if v := os.Getenv(prefix + "CLIENT_TOKEN"); v != "" {
		spec.ClientToken = v
	}
	if v := os.Getenv(prefix + "ROOT"); v != "" {
		spec.Root = v
	}
	if v := os.Getenv(prefix + "COMMAND"); v != "" {
		argv, err := shellwords.Parse(v)
		if err != nil {
			return fmt.Errorf("parse %sCOMMAND: %w", prefix, err)
		}
		spec.Command = argv
	}
	if v := os.Getenv(prefix + "ENV"); v != "" {
		if spec.Env == nil {
			spec.Env = make(map[string]string)
		}
		for _, pair := range strings.Split(v, ",") {
			k, val, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && k != "" {
				spec.Env[k] = val
			}
		}
	}
	return nil
}
