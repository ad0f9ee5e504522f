// Package redact strips credentials, tokens, file system paths and SQL from
// error text before it reaches logs or HTTP responses.
package redact

import "regexp"

// Placeholders substituted for redacted fragments.
const (
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
	RedactedJWTPlaceholder        = "[REDACTED_JWT]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedSQLPlaceholder        = "[REDACTED_SQL]"
	RedactedHostPlaceholder       = "[REDACTED_HOST]"
	RedactedStackPlaceholder      = "[STACK_TRACE_REDACTED]"
)

type rule struct {
	re          *regexp.Regexp
	placeholder string
}

// rules run in order; JWTs go before generic keys so a bearer token is
// reported as a JWT.
var rules = []rule{
	{regexp.MustCompile(`(?i)(postgres|postgresql|db|database)://[^@\s]+@`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), RedactedJWTPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|access[_-]?key)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), RedactedStackPlaceholder},
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(
		`(?i)(SELECT|INSERT|UPDATE|DELETE|CREATE|ALTER|DROP)[\s\w,*()]+(?:FROM|INTO|SET|TABLE)(?:[\s\w,*()='"]+)?`,
	), RedactedSQLPlaceholder},
	{regexp.MustCompile(
		`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}(?::\d{1,5})?\b`,
	), RedactedHostPlaceholder},
}

// String redacts sensitive information from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.placeholder)
	}
	return s
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
