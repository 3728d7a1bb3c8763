package logging

import (
	"regexp"
)

// RedactedText is the replacement text for sensitive data.
const RedactedText = "[REDACTED]"

var (
	// Pattern to match potential passwords in connection strings
	// Matches: password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Pattern to match JWT tokens (three base64 segments separated by dots)
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// Pattern to match connection string credentials (user:pass@host format)
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)

	// Pattern to match email addresses; patient and clinician emails are PHI
	// and never belong in logs.
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	// Pattern to match medical record numbers as they appear in our messages
	// (mrn=XXXX or mrn: XXXX).
	mrnPattern = regexp.MustCompile(`(?i)(mrn)[=:]\s*[A-Za-z0-9-]+`)

	// Pattern to match the MRN value Postgres echoes in a unique-violation
	// message: Key (medical_record_number)=(MRN-...).
	mrnKeyPattern = regexp.MustCompile(`(?i)\(medical_record_number\)=\([^)]*\)`)
)

// SanitizeConnectionString removes sensitive data from connection strings.
// Use this before logging any connection string.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizePHI scrubs patient-identifying values (emails, medical record
// numbers) from a message before it reaches the logs.
func SanitizePHI(s string) string {
	if s == "" {
		return ""
	}

	sanitized := emailPattern.ReplaceAllString(s, RedactedText)
	sanitized = mrnPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = mrnKeyPattern.ReplaceAllString(sanitized, "(medical_record_number)=("+RedactedText+")")

	return sanitized
}

// SanitizeError sanitizes error messages that might contain sensitive data.
// Use this before logging any error from database or upstream operations.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	sanitized := passwordPattern.ReplaceAllString(errStr, "${1}="+RedactedText)
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	sanitized = emailPattern.ReplaceAllString(sanitized, RedactedText)

	return sanitized
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
