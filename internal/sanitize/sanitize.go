// Package sanitize redacts credentials from text destined for logs,
// persisted error messages, and API responses. Redaction is applied
// unconditionally at those boundaries; provider errors routinely echo
// request headers back, so no path is trusted to be clean.
package sanitize

import "regexp"

const marker = "[REDACTED]"

var (
	// Provider keys: sk- prefix plus key body, 32+ chars total.
	reSecretKey = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{29,}`)

	// Full authorization headers, scheme and value included.
	reAuthHeader = regexp.MustCompile(`(?i)\bauthorization\s*:\s*\S+(?:\s+\S+)?`)

	// Bare bearer tokens outside header context.
	reBearer = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)
)

// Message replaces any embedded credentials with a redaction marker.
// Surrounding text is preserved.
func Message(s string) string {
	s = reAuthHeader.ReplaceAllString(s, "Authorization: "+marker)
	s = reBearer.ReplaceAllString(s, "Bearer "+marker)
	s = reSecretKey.ReplaceAllString(s, marker)
	return s
}

// Error sanitizes an error's message. Nil-safe.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Message(err.Error())
}
