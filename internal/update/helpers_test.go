package update_test

import (
	"encoding/json"
	"strings"
)

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func jsonUnmarshal(line string, v any) error {
	return json.Unmarshal([]byte(line), v)
}
