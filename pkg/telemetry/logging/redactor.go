package logging

import (
	"fmt"
	"regexp"
	"strings"
)

// Redactor scrubs credentials from log fields and messages.
type Redactor struct {
	secrets  []string
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

var defaultPatterns = []struct {
	regex       string
	replacement string
}{
	// The -P token of an ipmitool command line.
	{`(-P)\s+\S+`, "$1 ***"},
	// Generic password fields embedded in strings.
	{`(?i)(password|passwd|pwd)[:=]\s*\S+`, "$1=***"},
	// Bearer tokens.
	{`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
}

// NewRedactor creates a Redactor. The secrets are literal values that
// are replaced wherever they appear, in addition to the built-in
// pattern matching.
func NewRedactor(secrets []string) *Redactor {
	r := &Redactor{}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	return r
}

// RedactString scrubs credentials from a string value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, s := range r.secrets {
		value = strings.ReplaceAll(value, s, "***")
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactArgs scrubs credentials from variadic log arguments.
// Args are in the form: key1, value1, key2, value2, ...
func (r *Redactor) RedactArgs(args ...any) []any {
	if len(args) == 0 {
		return args
	}

	redacted := make([]any, len(args))
	copy(redacted, args)

	for i := 1; i < len(redacted); i += 2 {
		if key, ok := redacted[i-1].(string); ok && isSensitiveKey(key) {
			redacted[i] = redactValue(redacted[i])
			continue
		}
		if str, ok := redacted[i].(string); ok {
			redacted[i] = r.RedactString(str)
		}
	}

	return redacted
}

// isSensitiveKey checks if a key name indicates credential data.
func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)

	sensitiveKeys := []string{
		"password", "passwd", "pwd",
		"secret", "token",
		"auth", "authorization",
		"credential",
	}

	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}

	return false
}

// redactValue replaces a sensitive value completely. The value's
// length is not hinted at; the backend password may be short.
func redactValue(value any) any {
	switch v := value.(type) {
	case string:
		if v == "" {
			return ""
		}
		return "***"
	case fmt.Stringer:
		return "***"
	default:
		return "***"
	}
}
