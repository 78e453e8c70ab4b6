package audit

import "testing"

func TestRedactArgs(t *testing.T) {
	args := map[string]any{
		"query":         "containers",
		"password":      "hunter2",
		"API_TOKEN":     "abc",
		"_client_token": "secret-token",
	}

	got := RedactArgs(args)

	if got["query"] != "containers" {
		t.Errorf("expected plain value to survive, got %v", got["query"])
	}
	for _, key := range []string{"password", "API_TOKEN", "_client_token"} {
		if got[key] != Redacted {
			t.Errorf("expected %s redacted, got %v", key, got[key])
		}
	}

	// Input untouched.
	if args["password"] != "hunter2" {
		t.Error("expected input map to be unmodified")
	}
}

func TestRedactArgsNested(t *testing.T) {
	args := map[string]any{
		"config": map[string]any{
			"secret": "deep",
			"nested": map[string]any{"token": "deeper"},
		},
		"list": []any{
			map[string]any{"password": "inside-array"},
			"plain",
		},
	}

	got := RedactArgs(args)

	cfg := got["config"].(map[string]any)
	if cfg["secret"] != Redacted {
		t.Errorf("expected nested secret redacted, got %v", cfg["secret"])
	}
	if cfg["nested"].(map[string]any)["token"] != Redacted {
		t.Error("expected doubly nested token redacted")
	}

	list := got["list"].([]any)
	if list[0].(map[string]any)["password"] != Redacted {
		t.Error("expected password inside array redacted")
	}
	if list[1] != "plain" {
		t.Errorf("expected plain array element to survive, got %v", list[1])
	}
}

func TestRedactArgsNil(t *testing.T) {
	if got := RedactArgs(nil); got != nil {
		t.Errorf("expected nil for nil input, got %v", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected unchanged, got %q", got)
	}
	got := truncate("aaaaaaaaaa", 7)
	if got != "aaaa..." {
		t.Errorf("expected truncated with ellipsis, got %q", got)
	}
	// Rune-safe: multibyte input must not be split mid-rune.
	got = truncate("éééééééé", 6)
	if got != "ééé..." {
		t.Errorf("expected rune-safe truncation, got %q", got)
	}
	// Tiny limits drop the ellipsis rather than exceed the cap.
	if got := truncate("aaaaa", 2); got != "aa" {
		t.Errorf("expected hard cut at tiny limit, got %q", got)
	}
	// The cap bounds the output, ellipsis included.
	for _, limit := range []int{2, 6, 7, 10} {
		if got := truncate("aaaaaaaaaaaaaaaa", limit); len([]rune(got)) > limit {
			t.Errorf("limit %d exceeded: %q", limit, got)
		}
	}
}
