package dispatch

import "testing"

func TestMCPEndpoint(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:8000", "http://127.0.0.1:8000/mcp"},
		{"http://127.0.0.1:8000/", "http://127.0.0.1:8000/mcp"},
		{"http://host/api", "http://host/api/mcp"},
		{"http://host/api/", "http://host/api/mcp"},
		{"http://host/mcp", "http://host/mcp"},
		{"http://host/mcp/", "http://host/mcp"},
		{"https://host", "https://host/mcp"},
	}

	for _, c := range cases {
		if got := mcpEndpoint(c.base); got != c.want {
			t.Errorf("mcpEndpoint(%q) = %q, want %q", c.base, got, c.want)
		}
	}
}
