package logger

import "strings"

// RedactEmail masks the local part of an address for safe logging.
// "jane.doe@example.com" → "ja***@example.com". Short local parts are fully
// masked; anything that doesn't look like an address becomes "***".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***"
	}
	local, host := email[:at], email[at+1:]
	if len(local) <= 2 {
		return "***@" + host
	}
	return local[:2] + "***@" + host
}
