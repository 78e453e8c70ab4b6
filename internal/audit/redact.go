// Package audit records every tool invocation to the store with sensitive
// argument values scrubbed, and prunes old entries on a retention schedule.
package audit

import "strings"

// Redacted replaces the value of any sensitive key in stored arguments.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched case-insensitively against argument keys at any
// nesting depth.
var sensitiveKeys = map[string]bool{
	"_client_token": true,
	"password":      true,
	"token":         true,
	"api_token":     true,
	"secret":        true,
}

// RedactArgs returns a deep copy of args with every sensitive value replaced
// by the redaction sentinel. The input map is never modified.
func RedactArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = Redacted
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return RedactArgs(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
