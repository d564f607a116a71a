// Package redact scrubs secrets and PII from text before it reaches the
// audit log. Blocked reasons are recorded for operators but must never leak
// the sensitive material that triggered the block.
package redact

import (
	"fmt"
	"regexp"
)

var sensitivePatterns = []*regexp.Regexp{
	// Identity numbers
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),

	// Credential key-value phrasing
	regexp.MustCompile(`(?i)(password|passwd|pwd|secret)\s*[=:]\s*['"]?[^\s'"]{4,}['"]?`),
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|access[_-]?token|auth[_-]?token|token)\s*[=:]\s*['"]?[A-Za-z0-9_\-./+=]{8,}['"]?`),

	// Cloud and VCS tokens
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)aws_secret_access_key\s*[=:]\s*\S+`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{20,}`),

	// Private key material
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),

	// Basic auth embedded in URLs
	regexp.MustCompile(`https?://[^:/\s]+:[^@\s]+@`),
}

const placeholder = "[REDACTED]"

// Redact replaces any recognized secret or PII in the input with a
// placeholder.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, placeholder)
	}
	return result
}

// RedactArgs scrubs a tool-call argument map into a loggable copy. Values
// are stringified; nested structures are flattened with %v before scrubbing.
func RedactArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		out[k] = Redact(fmt.Sprintf("%v", v))
	}
	return out
}
