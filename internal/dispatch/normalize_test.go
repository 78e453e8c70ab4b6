package dispatch

import (
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

func textResult(text string, isError bool) *mcpgo.CallToolResult {
	return &mcpgo.CallToolResult{
		Content: []mcpgo.Content{mcpgo.TextContent{Type: "text", Text: text}},
		IsError: isError,
	}
}

func TestNormalizeStructuredContent(t *testing.T) {
	raw := &mcpgo.CallToolResult{
		StructuredContent: map[string]any{"count": float64(3)},
	}

	res := normalizeCallResult(raw)
	if res.OK == nil || !*res.OK {
		t.Fatalf("expected ok=true injected, got %+v", res.OK)
	}
	if res.Body["count"] != float64(3) {
		t.Errorf("expected payload passed through, got %v", res.Body)
	}
	if res.Body["ok"] != true {
		t.Errorf("expected ok:true in body, got %v", res.Body["ok"])
	}
}

func TestNormalizeStructuredContentKeepsExplicitOK(t *testing.T) {
	raw := &mcpgo.CallToolResult{
		StructuredContent: map[string]any{"ok": false, "error": "nope"},
	}

	res := normalizeCallResult(raw)
	if res.OK == nil || *res.OK {
		t.Fatalf("expected ok=false preserved, got %+v", res.OK)
	}
	if !res.Failed() {
		t.Error("expected Failed()")
	}
}

func TestNormalizeJSONText(t *testing.T) {
	res := normalizeCallResult(textResult(`{"status":"green","count":2}`, false))

	// Payload without an "ok" key stays tri-state.
	if res.OK != nil {
		t.Errorf("expected nil ok for payload without ok key, got %v", *res.OK)
	}
	if res.Failed() {
		t.Error("nil ok must not count as failure")
	}
	if res.Body["status"] != "green" {
		t.Errorf("expected verbatim payload, got %v", res.Body)
	}
	if _, has := res.Body["ok"]; has {
		t.Error("expected no ok injection into text-parsed payload")
	}
}

func TestNormalizeJSONTextWithOK(t *testing.T) {
	res := normalizeCallResult(textResult(`{"ok":false,"error":"bad"}`, false))
	if res.OK == nil || *res.OK {
		t.Fatalf("expected ok=false from payload, got %+v", res.OK)
	}
}

func TestNormalizePlainText(t *testing.T) {
	res := normalizeCallResult(textResult("all good", false))
	if res.OK == nil || !*res.OK {
		t.Fatalf("expected ok=true for plain text, got %+v", res.OK)
	}
	if res.Body["text"] != "all good" {
		t.Errorf("expected text wrapped, got %v", res.Body)
	}
}

func TestNormalizeToolError(t *testing.T) {
	res := normalizeCallResult(textResult("disk on fire", true))
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Err != "disk on fire" {
		t.Errorf("expected error message, got %q", res.Err)
	}
	if res.Body["ok"] != false {
		t.Errorf("expected ok:false in body, got %v", res.Body["ok"])
	}
}

func TestNormalizeNil(t *testing.T) {
	res := normalizeCallResult(nil)
	if !res.Failed() {
		t.Error("expected failure for nil result")
	}
}

func TestNormalizeInvalidJSONText(t *testing.T) {
	// Looks like JSON but isn't: falls back to text wrapping.
	res := normalizeCallResult(textResult("{not json", false))
	if res.OK == nil || !*res.OK {
		t.Fatalf("expected ok=true fallback, got %+v", res.OK)
	}
	if res.Body["text"] != "{not json" {
		t.Errorf("expected raw text preserved, got %v", res.Body)
	}
}
