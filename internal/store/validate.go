package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// normalizedJob is the result of applying the write-time invariants to
// caller-supplied job fields.
type normalizedJob struct {
	Label           string
	Server          string
	Tool            string
	ArgsJSON        string
	IntervalSeconds int
}

// normalizeJobFields applies the job invariants: label/server/tool trimmed
// and non-empty, interval clamped to the floor, args coerced to a JSON
// object. Returns an error only for unrecoverably invalid input.
func normalizeJobFields(f JobFields) (*normalizedJob, error) {
	label := strings.TrimSpace(f.Label)
	server := strings.TrimSpace(f.Server)
	tool := strings.TrimSpace(f.Tool)

	if label == "" {
		return nil, fmt.Errorf("job label must be non-empty")
	}
	if server == "" {
		return nil, fmt.Errorf("job server must be non-empty")
	}
	if tool == "" {
		return nil, fmt.Errorf("job tool must be non-empty")
	}

	interval := f.IntervalSeconds
	if interval < MinIntervalSeconds {
		interval = MinIntervalSeconds
	}

	return &normalizedJob{
		Label:           label,
		Server:          server,
		Tool:            tool,
		ArgsJSON:        coerceArgsJSON(f.Args),
		IntervalSeconds: interval,
	}, nil
}

// coerceArgsJSON serializes args as a JSON object. Arrays, scalars, and
// unparseable input all become the empty object.
func coerceArgsJSON(args any) string {
	switch v := args.(type) {
	case nil:
		return "{}"
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return string(data)
	case string:
		return coerceArgsText([]byte(v))
	case []byte:
		return coerceArgsText(v)
	case json.RawMessage:
		return coerceArgsText(v)
	default:
		// Anything that round-trips through JSON into an object is accepted.
		data, err := json.Marshal(v)
		if err != nil {
			return "{}"
		}
		return coerceArgsText(data)
	}
}

func coerceArgsText(data []byte) string {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return "{}"
	}
	out, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(out)
}
