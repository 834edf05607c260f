package cliutil

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	// KEY=value or KEY: value where KEY names a credential.
	secretAssignPattern = regexp.MustCompile(`(?i)\b([A-Z0-9_]*(?:PASSWORD|PASSWD|SECRET|TOKEN|API_KEY|ACCESS_KEY|PRIVATE_KEY)[A-Z0-9_]*)(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)
	bearerPattern       = regexp.MustCompile(`(?i)\b(bearer\s+)[A-Za-z0-9._~+/=-]+`)
	secretNamePattern   = regexp.MustCompile(`(?i)(PASSWORD|PASSWD|SECRET|TOKEN|API_KEY|ACCESS_KEY|PRIVATE_KEY|CREDENTIAL)`)
)

// RedactSecrets masks credential assignments and bearer tokens in a line of
// child output.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	redacted := secretAssignPattern.ReplaceAllString(message, "$1$2$3"+redactedPlaceholder+"$5")
	return bearerPattern.ReplaceAllString(redacted, "$1"+redactedPlaceholder)
}

// IsSecretName reports whether an environment variable name looks like it
// holds a credential.
func IsSecretName(name string) bool {
	return secretNamePattern.MatchString(strings.TrimSpace(name))
}

// RedactEnv returns a copy of env with credential values masked.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSecretName(k) && v != "" {
			v = redactedPlaceholder
		}
		out[k] = v
	}
	return out
}
