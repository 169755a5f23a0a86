package cli

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// renderJSON marshals v as indented JSON, then if filter is non-empty
// pipes the decoded value through it (mirroring how `jq` filters a
// command's JSON output, minus the subprocess).
func renderJSON(v any, filter string) (string, error) {
	if filter == "" {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	// Round-trip through JSON so gojq sees plain map[string]any/[]any
	// values rather than record.Record or other named types it doesn't
	// know how to walk.
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return "", err
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return "", fmt.Errorf("invalid --jq filter: %w", err)
	}

	var out []string
	iter := query.Run(generic)
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := result.(error); ok {
			return "", err
		}
		line, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		out = append(out, string(line))
	}
	if len(out) == 0 {
		return "", nil
	}
	joined := out[0]
	for _, line := range out[1:] {
		joined += "\n" + line
	}
	return joined, nil
}
