package mailbox

import "regexp"

// DefaultTokenPattern matches "#" followed by digits and captures the
// digits, e.g. "Re: Order #482 shipped" yields "482".
const DefaultTokenPattern = `#(\d+)`

// extractToken applies the correlation pattern to a decoded subject and
// returns the first capture group's text. A structural match where group
// one did not participate is a caller-pattern issue, not an error: it
// yields an empty token and a sink note. A pattern that fails to evaluate
// behaves the same way.
func extractToken(subject string, pattern *regexp.Regexp, sink Sink) string {
	if pattern == nil || subject == "" {
		return ""
	}

	m := pattern.FindStringSubmatch(subject)
	if m == nil {
		return ""
	}
	if len(m) < 2 || m[1] == "" {
		sink.Notef("mailbox: token pattern %q matched subject without capturing group 1", pattern.String())
		return ""
	}
	return m[1]
}

// ValidateTokenPattern reports whether pattern would be accepted by
// WithTokenPattern, without constructing anything. Useful for form
// validation.
func ValidateTokenPattern(pattern string) error {
	_, err := compileTokenPattern(pattern)
	return err
}

// compileTokenPattern validates a caller-supplied correlation pattern:
// it must be non-empty, compile, and contain at least one capture group.
func compileTokenPattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, &InvalidInputError{Field: "token pattern", Reason: "must not be empty"}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidInputError{Field: "token pattern", Reason: err.Error()}
	}
	if re.NumSubexp() < 1 {
		return nil, &InvalidInputError{Field: "token pattern", Reason: "must contain a capture group"}
	}
	return re, nil
}
