package util

import "strings"

// SanitizePostgresText drops NUL bytes and invalid UTF-8, which Postgres text
// columns reject.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}
	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizeJSONB prepares JSON text for a jsonb column: invalid UTF-8 is
// dropped and \u0000 escapes, which jsonb cannot store, are removed. Escaped
// backslashes are honoured so `\\u0000` stays intact.
func SanitizeJSONB(data []byte) []byte {
	s := SanitizePostgresText(string(data))
	const nul = `\u0000`
	if !strings.Contains(s, nul) {
		return []byte(s)
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if strings.HasPrefix(s[i:], nul) {
			i += len(nul) - 1
			continue
		}
		// Copy the escape pair verbatim.
		b.WriteByte(s[i])
		if i+1 < len(s) {
			i++
			b.WriteByte(s[i])
		}
	}
	return []byte(b.String())
}
