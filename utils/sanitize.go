package utils

import "strings"

const maxIDLength = 128

// SanitizeHeaderFilename removes characters that can break headers.
func SanitizeHeaderFilename(name string) string {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return "recording.webm"
	}
	clean = strings.ReplaceAll(clean, "\r", "")
	clean = strings.ReplaceAll(clean, "\n", "")
	clean = strings.ReplaceAll(clean, "\"", "")
	return clean
}

// ValidUploadID reports whether id may be embedded in an object key:
// 1-128 characters from [A-Za-z0-9_-].
func ValidUploadID(id string) bool {
	return isKeySafe(id, maxIDLength)
}

// ValidSessionID applies the same rule to a session id, which is longer by
// the "session-" prefix and the millisecond suffix.
func ValidSessionID(id string) bool {
	return strings.HasPrefix(id, "session-") && isKeySafe(id, maxIDLength+32)
}

func isKeySafe(s string, maxLen int) bool {
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9', ch == '-', ch == '_':
		default:
			return false
		}
	}
	return true
}
