package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/mcptick/internal/config"
)

const (
	connectTimeout    = 30 * time.Second
	resolvedCacheSize = 256
)

// session is one live MCP connection to a backend, with its advertised tool
// catalog and a cache of resolved tool names. callMu serializes calls that
// share the session and guards the tool catalog.
type session struct {
	name     string
	client   *mcpclient.Client
	tools    map[string]string // normalized name -> original name
	resolved *lru.Cache[string, string]
	id       string // audit session id
	callMu   sync.Mutex
}

// connect builds and initializes a client for the backend spec. The returned
// session owns the client; the caller closes it via session.close.
func connect(ctx context.Context, spec config.BackendSpec) (*session, error) {
	var (
		c   *mcpclient.Client
		err error
	)

	switch spec.Transport {
	case config.TransportStdio:
		c, err = connectStdio(spec)
	case config.TransportHTTP:
		c, err = connectHTTP(ctx, spec)
	default:
		return nil, fmt.Errorf("backend %s: unsupported transport %q", spec.Name, spec.Transport)
	}
	if err != nil {
		return nil, err
	}

	s, err := finishConnect(ctx, spec.Name, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func connectStdio(spec config.BackendSpec) (*mcpclient.Client, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("backend %s: stdio transport requires a command", spec.Name)
	}

	env := make([]string, 0, len(spec.Env)+1)
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	if spec.Root != "" {
		env = append(env, "PYTHONPATH="+spec.Root)
	}

	c, err := mcpclient.NewStdioMCPClient(spec.Command[0], env, spec.Command[1:]...)
	if err != nil {
		return nil, fmt.Errorf("backend %s: spawn %s: %w", spec.Name, spec.Command[0], err)
	}

	if stderr, ok := mcpclient.GetStderr(c); ok && stderr != nil {
		go pumpStderr(spec.Name, stderr)
	}
	return c, nil
}

func connectHTTP(ctx context.Context, spec config.BackendSpec) (*mcpclient.Client, error) {
	url := mcpEndpoint(spec.URL)

	timeout := connectTimeout
	if spec.TimeoutSec > 0 {
		timeout = time.Duration(spec.TimeoutSec) * time.Second
	}

	c, err := mcpclient.NewStreamableHttpClient(url, transport.WithHTTPTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("backend %s: http client: %w", spec.Name, err)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("backend %s: start transport: %w", spec.Name, err)
	}
	return c, nil
}

// mcpEndpoint appends /mcp to a base URL unless the path already ends
// there. Trailing slashes and path prefixes are both handled.
func mcpEndpoint(base string) string {
	url := strings.TrimSuffix(base, "/")
	if !strings.HasSuffix(url, "/mcp") {
		url += "/mcp"
	}
	return url
}

// connectInProcess wires a client directly to an in-process MCP server,
// bypassing any transport. Used to expose this service to itself as a
// schedulable backend.
func connectInProcess(ctx context.Context, name string, srv *mcpserver.MCPServer) (*session, error) {
	c, err := mcpclient.NewInProcessClient(srv)
	if err != nil {
		return nil, fmt.Errorf("backend %s: in-process client: %w", name, err)
	}
	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("backend %s: start in-process client: %w", name, err)
	}

	s, err := finishConnect(ctx, name, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

func finishConnect(ctx context.Context, name string, c *mcpclient.Client) (*session, error) {
	initCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "mcptick", Version: "1.0.0"}
	if _, err := c.Initialize(initCtx, initReq); err != nil {
		return nil, fmt.Errorf("backend %s: initialize: %w", name, err)
	}

	listed, err := c.ListTools(initCtx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("backend %s: list tools: %w", name, err)
	}

	tools := make(map[string]string, len(listed.Tools))
	for _, t := range listed.Tools {
		tools[normalizeToolName(t.Name)] = t.Name
	}

	cache, err := lru.New[string, string](resolvedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("backend %s: resolve cache: %w", name, err)
	}

	slog.Info("backend connected", "backend", name, "tools", len(tools))
	return &session{
		name:     name,
		client:   c,
		tools:    tools,
		resolved: cache,
		id:       fmt.Sprintf("%s-%d", name, time.Now().UnixNano()),
	}, nil
}

// resolve maps a requested tool name to the backend's advertised name,
// memoizing the answer per session. When the name misses the cached catalog
// entirely, the catalog is re-listed once in case the backend changed it
// after connect.
func (s *session) resolve(ctx context.Context, requested string) string {
	if hit, ok := s.resolved.Get(requested); ok {
		return hit
	}

	s.callMu.Lock()
	name := resolveToolName(requested, s.tools)
	if _, known := s.tools[normalizeToolName(name)]; !known {
		if tools, err := s.listTools(ctx); err == nil {
			s.tools = tools
			name = resolveToolName(requested, s.tools)
		}
	}
	s.callMu.Unlock()

	s.resolved.Add(requested, name)
	return name
}

func (s *session) listTools(ctx context.Context) (map[string]string, error) {
	listCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	listed, err := s.client.ListTools(listCtx, mcpgo.ListToolsRequest{})
	if err != nil {
		slog.Debug("tool list refresh", "backend", s.name, "error", err)
		return nil, err
	}
	tools := make(map[string]string, len(listed.Tools))
	for _, t := range listed.Tools {
		tools[normalizeToolName(t.Name)] = t.Name
	}
	return tools, nil
}

func (s *session) close() {
	if err := s.client.Close(); err != nil {
		slog.Debug("backend close", "backend", s.name, "error", err)
	}
}

func pumpStderr(name string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			fmt.Fprintf(os.Stderr, "[%s] %s\n", name, line)
		}
	}
}
