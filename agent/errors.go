package agent

import (
	"fmt"
	"strings"
)

// CompletionError wraps a failure of the completion boundary.
type CompletionError struct {
	Agent string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s: completion failed: %v", e.Agent, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// ParseError reports a completion that lacks required tagged fields or
// carries invalid values.
type ParseError struct {
	Agent   string
	Missing []string
	Invalid []string
}

func (e *ParseError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Agent, strings.Join(parts, "; "))
}
