// Package logging scrubs credentials out of text before it reaches logs or
// API responses.
package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data
const RedactedText = "[REDACTED]"

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens, JWT or opaque
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-_.~+/]+=*`)

	// api_key=..., token=..., access_token=... in query strings and DSNs
	secretParamPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|access_token|token)=[A-Za-z0-9\-_.]{8,}`)

	// user:pass@host in URLs (postgres://, sqlserver://, redis://)
	userInfoPattern = regexp.MustCompile(`://[^:/\s]*:[^@\s]+@[^/\s?]+`)
)

// SanitizeConnectionString removes credentials from a DSN or URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return userInfoPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeMessage removes passwords, tokens and URL credentials from free text.
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(msg, "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = secretParamPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return userInfoPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError sanitizes an error message that might contain sensitive data.
// Use this before logging a fetch error or returning it to a caller.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeMessage(err.Error())
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
