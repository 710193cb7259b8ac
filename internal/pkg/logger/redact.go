package logger

import "strings"

// RedactClientID masks a client identifier for safe logging, keeping just
// enough prefix to correlate log lines.
// "9f8b2c41-77aa-4f5e-9d01-0c6e2a9b1f33" → "9f8b2c41-***"
// Short identifiers (≤8 chars) are fully masked.
func RedactClientID(id string) string {
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "-***"
}

// RedactEmail masks an email address for safe logging.
// "john.doe@example.com" → "jo***@example.com"
// Short local parts (≤2 chars) are fully masked: "ab@example.com" → "***@example.com"
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	name := parts[0]
	if len(name) > 2 {
		return name[:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}
