package dispatch

import "testing"

func TestResolveToolName(t *testing.T) {
	tools := map[string]string{
		"list_containers":   "List-Containers",
		"docker_restart":    "docker_restart",
		"jenkins_build_job": "jenkins_build_job",
	}

	cases := []struct {
		requested string
		want      string
	}{
		{"docker_restart", "docker_restart"},      // exact
		{"List-Containers", "List-Containers"},    // normalized match to original
		{"list-containers", "List-Containers"},    // case/dash folding
		{"build_job", "jenkins_build_job"},        // unique suffix
		{"jenkins_build", "jenkins_build_job"},    // unique prefix
		{"no_such_tool", "no_such_tool"},          // miss: pass through
	}
	for _, tc := range cases {
		if got := resolveToolName(tc.requested, tools); got != tc.want {
			t.Errorf("resolve(%q): expected %q, got %q", tc.requested, tc.want, got)
		}
	}
}

func TestResolveToolNameAmbiguous(t *testing.T) {
	tools := map[string]string{
		"docker_restart":  "docker_restart",
		"service_restart": "service_restart",
	}

	// Two candidates share the suffix: no unique match, pass through.
	if got := resolveToolName("restart", tools); got != "restart" {
		t.Errorf("expected ambiguous name passed through, got %q", got)
	}
}

func TestNormalizeToolName(t *testing.T) {
	if got := normalizeToolName("My-Tool-Name"); got != "my_tool_name" {
		t.Errorf("expected my_tool_name, got %q", got)
	}
}
