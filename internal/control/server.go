// Package control exposes the scheduler's management surface as MCP tools
// over stdio or streamable HTTP, with token auth and per-caller rate limits.
package control

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/mcptick/internal/config"
	"github.com/nextlevelbuilder/mcptick/internal/scheduler"
	"github.com/nextlevelbuilder/mcptick/internal/store"
)

// defaultRPM is the per-caller control-plane rate limit.
const defaultRPM = 120

type callerKeyType struct{}

var callerKey callerKeyType

// Server is the control plane. All state lives in the store and the ticker;
// this layer only authenticates, rate-limits, and translates.
type Server struct {
	cfg     *config.Config
	store   store.Store
	ticker  *scheduler.Ticker
	mcp     *server.MCPServer
	limiter *RateLimiter

	httpSrv *server.StreamableHTTPServer
}

func New(cfg *config.Config, st store.Store, ticker *scheduler.Ticker) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		ticker:  ticker,
		limiter: NewRateLimiter(defaultRPM, 20),
	}

	s.mcp = server.NewMCPServer(
		"mcptick",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCPServer exposes the underlying server so the dispatcher can register it
// as an in-process backend.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving the control plane on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeHTTP blocks serving the control plane over streamable HTTP on the
// configured address.
func (s *Server) ServeHTTP() error {
	s.httpSrv = server.NewStreamableHTTPServer(s.mcp,
		server.WithHTTPContextFunc(func(ctx context.Context, r *http.Request) context.Context {
			return context.WithValue(ctx, callerKey, r.RemoteAddr)
		}),
	)
	addr := s.cfg.ListenAddr()
	slog.Info("control plane listening", "addr", addr)
	if err := s.httpSrv.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("control plane: %w", err)
	}
	return nil
}

// Shutdown stops the rate limiter and the HTTP listener, if one is running.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// authorize checks the shared token and the caller's rate budget. It returns
// the arguments with the token stripped, or a ready-to-return error result.
func (s *Server) authorize(ctx context.Context, req mcp.CallToolRequest) (map[string]any, *mcp.CallToolResult) {
	args := req.GetArguments()
	if args == nil {
		args = map[string]any{}
	}

	provided, _ := args["_client_token"].(string)
	delete(args, "_client_token")

	if s.cfg.ClientToken != "" &&
		subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.ClientToken)) != 1 {
		return nil, errResult("unauthorized")
	}

	caller, _ := ctx.Value(callerKey).(string)
	if caller == "" {
		caller = "local"
	}
	if !s.limiter.Allow(caller) {
		return nil, errResult("rate limited")
	}

	return args, nil
}

// jsonResult marshals a payload into a text tool result. Every control tool
// answers with a single JSON object.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(fmt.Sprintf("encode response: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

func errResult(msg string) *mcp.CallToolResult {
	data, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	return mcp.NewToolResultText(string(data))
}
