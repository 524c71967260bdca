package util

import "strings"

// SanitizePostgresText drops invalid UTF-8 and NUL bytes, which text and
// jsonb columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizeJSON strips escaped NUL characters from encoded JSON before it is
// stored as jsonb.
func SanitizeJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return raw
	}
	s := strings.ReplaceAll(string(raw), `\u0000`, "")
	return []byte(s)
}
