package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// normalizeCallResult collapses an MCP tool result into a Result map.
//
//   - IsError: failure with the joined text as the message.
//   - StructuredContent object: returned as the body, with ok:true injected
//     when the backend did not set one.
//   - Text that parses as a JSON object: returned verbatim. If it carries no
//     "ok" key the Result's OK stays nil.
//   - Any other text: wrapped as {ok:true, text:...}.
func normalizeCallResult(result *mcpgo.CallToolResult) Result {
	if result == nil {
		return errResult("empty response from backend")
	}

	text := extractText(result)

	if result.IsError {
		msg := text
		if msg == "" {
			msg = "tool reported an error"
		}
		return errResult(msg)
	}

	if sc, ok := result.StructuredContent.(map[string]any); ok && sc != nil {
		body := make(map[string]any, len(sc)+1)
		for k, v := range sc {
			body[k] = v
		}
		if _, has := body["ok"]; !has {
			body["ok"] = true
		}
		return Result{OK: bodyOK(body), Body: body}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		var body map[string]any
		if err := json.Unmarshal([]byte(trimmed), &body); err == nil && body != nil {
			return Result{OK: bodyOK(body), Body: body}
		}
	}

	return okResult(map[string]any{"ok": true, "text": text})
}

// bodyOK reads the tri-state "ok" flag out of a payload. Missing or
// non-boolean means nil.
func bodyOK(body map[string]any) *bool {
	v, has := body["ok"]
	if !has {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return boolPtr(b)
}

// extractText concatenates all text content from a tool result.
func extractText(result *mcpgo.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}

	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcpgo.TextContent:
			parts = append(parts, v.Text)
		case *mcpgo.TextContent:
			parts = append(parts, v.Text)
		default:
			parts = append(parts, fmt.Sprintf("[non-text content: %T]", c))
		}
	}
	return strings.Join(parts, "\n")
}
