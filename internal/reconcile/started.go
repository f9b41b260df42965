package reconcile

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// IsStartedPayload reports whether a payload is the backend's acknowledgement of a
// start command ({"started": true}). Such records are control-plane noise.
func IsStartedPayload(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		started, ok := obj["started"].(bool)
		return ok && started
	}

	// Python reprs and truncated bodies aren't valid JSON
	return strings.Contains(s, `"started": true`) || strings.Contains(s, `'started': True`) ||
		strings.Contains(s, `'started': true`)
}
