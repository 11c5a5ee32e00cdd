// Package logbuf implements the agent's in-memory log ring buffer, optional
// rotating file sink, and WebSocket broadcast hub (spec.md §4.6).
package logbuf

import "time"

// Record is one log entry. Category distinguishes ordinary command/request
// log lines from security-relevant ones (e.g. "security" for a blacklist
// rejection), per spec.md §4.4 step 2 and invariant 6.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Category  string         `json:"category"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}
