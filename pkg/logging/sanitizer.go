// Package logging redacts credentials from strings before they reach logs,
// error envelopes or the query history.
package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

type redactor struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter. Covers libpq
	// keyword strings and SQL Server ADO strings.
	passwordRedactor = redactor{regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`), "${1}=" + RedactedText}

	// user:pass@host in URL-style DSNs (postgres://, sqlserver://, redis://).
	connStringRedactor = redactor{regexp.MustCompile(`://[^:/\s]*:[^@]+@[^/?\s]+`), "://" + RedactedText + "@" + RedactedText}

	apiKeyRedactor = redactor{regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`), "${1}=" + RedactedText}

	// Bearer tokens and provider key formats that show up in LLM client errors.
	bearerRedactor      = redactor{regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`), "Bearer " + RedactedText}
	providerKeyRedactor = redactor{regexp.MustCompile(`\b(sk-(?:ant-|proj-)?[A-Za-z0-9-_]{16,}|AIza[0-9A-Za-z-_]{30,})`), RedactedText}

	// Dial errors name the peer: "dial tcp 10.0.0.5:5432", "read tcp [::1]:5432->...".
	netAddrRedactor = redactor{regexp.MustCompile(`(?i)\b(tcp|udp)(4|6)?\s+(\[[0-9a-f:.]+\]|[a-z0-9.-]+):\d+`), "${1}${2} " + RedactedText}
	ipv6Redactor    = redactor{regexp.MustCompile(`\[[0-9a-fA-F:.]*:[0-9a-fA-F:.]*\](:\d+)?`), RedactedText}
	ipv4Redactor    = redactor{regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`), RedactedText}

	connStringRedactors = []redactor{passwordRedactor, connStringRedactor}
	errorRedactors      = []redactor{passwordRedactor, bearerRedactor, providerKeyRedactor, apiKeyRedactor, connStringRedactor, netAddrRedactor, ipv6Redactor, ipv4Redactor}
	queryRedactors      = []redactor{passwordRedactor, apiKeyRedactor}
)

func redact(s string, redactors []redactor) string {
	for _, r := range redactors {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from a DSN. Use it before
// logging any backend or redis connection string.
func SanitizeConnectionString(connStr string) string {
	return redact(connStr, connStringRedactors)
}

// SanitizeError renders err with credentials removed. Driver and provider
// errors often echo the DSN or the API key they were given.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), errorRedactors)
}

// SanitizeQuery truncates a SQL statement to MaxQueryLogLength and removes
// credential-like patterns.
func SanitizeQuery(query string) string {
	return redact(TruncateString(query, MaxQueryLogLength), queryRedactors)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// sensitiveKeys mark a field whose value is dropped entirely.
var sensitiveKeys = []string{"password", "secret", "token", "key", "credential"}

// SanitizeFields copies a decoded JSON object for logging. Values under
// sensitive keys are replaced, strings are redacted and truncated to maxLen,
// nested objects are handled the same way.
func SanitizeFields(fields map[string]any, maxLen int) map[string]any {
	if fields == nil {
		return nil
	}

	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isSensitiveKey(k) {
			out[k] = RedactedText
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = redact(TruncateString(val, maxLen), errorRedactors)
		case map[string]any:
			out[k] = SanitizeFields(val, maxLen)
		default:
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
