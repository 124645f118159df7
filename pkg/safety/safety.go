// Package safety screens model output that looks like a leaked tool call.
package safety

import "strings"

// Policy decides whether plain model content should be withheld.
// Implementations must be deterministic and free of hidden state.
type Policy interface {
	Suspicious(content string) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(content string) bool

func (f PolicyFunc) Suspicious(content string) bool { return f(content) }

// DefaultMarkers are the substrings that mark a tool-call fragment.
var DefaultMarkers = []string{"parameters"}

// Brace flags content that opens with a JSON brace and mentions one of the
// markers. Models that fail to emit a structured call often print the call
// as text instead; that text is not meant for the user.
type Brace struct {
	Markers []string
}

// NewBrace returns a Brace policy. No markers means DefaultMarkers.
func NewBrace(markers ...string) Brace {
	var m []string
	for _, s := range markers {
		if s = strings.TrimSpace(s); s != "" {
			m = append(m, s)
		}
	}
	if len(m) == 0 {
		m = append(m, DefaultMarkers...)
	}
	return Brace{Markers: m}
}

// Suspicious implements Policy.
func (b Brace) Suspicious(content string) bool {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	markers := b.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// Any combines policies; content is suspicious if any of them says so.
func Any(policies ...Policy) Policy {
	return PolicyFunc(func(content string) bool {
		for _, p := range policies {
			if p != nil && p.Suspicious(content) {
				return true
			}
		}
		return false
	})
}

// Allow never flags anything.
var Allow Policy = PolicyFunc(func(string) bool { return false })
