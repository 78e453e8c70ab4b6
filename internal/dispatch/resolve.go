package dispatch

import "strings"

// normalizeToolName lowercases a tool name and folds dashes to underscores,
// so "List-Containers" and "list_containers" resolve to the same tool.
func normalizeToolName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// resolveToolName maps a requested tool name to the backend's advertised
// name. Resolution order: exact match, normalized match, then a unique
// normalized suffix or prefix. When nothing matches, the original name is
// returned and the backend reports the miss itself.
func resolveToolName(requested string, tools map[string]string) string {
	if _, ok := tools[requested]; ok {
		return requested
	}

	norm := normalizeToolName(requested)
	if original, ok := tools[norm]; ok {
		return original
	}

	var match string
	count := 0
	for key, original := range tools {
		if strings.HasSuffix(key, norm) || strings.HasPrefix(key, norm) {
			match = original
			count++
		}
	}
	if count == 1 {
		return match
	}

	return requested
}
