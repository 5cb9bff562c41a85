package logging

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials embedded in URLs, headers and error text.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret|access[_-]?token|password)=([^&\s"']+)`),
	regexp.MustCompile(`(?i)(bearer)\s+([^\s"']+)`),
}

// MaskCredential keeps the first and last four characters of long values.
func MaskCredential(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// Redact masks credentials found in s.
func Redact(s string) string {
	for _, pattern := range sensitivePatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			if len(sub) < 3 {
				return match
			}
			return strings.Replace(match, sub[2], MaskCredential(sub[2]), 1)
		})
	}
	return s
}

// redactedError hides credentials in a wrapped error's message.
type redactedError struct{ err error }

func (e redactedError) Error() string { return Redact(e.err.Error()) }
func (e redactedError) Unwrap() error { return e.err }

// RedactError wraps err so its message is masked when logged.
func RedactError(err error) error {
	if err == nil {
		return nil
	}
	return redactedError{err: err}
}
