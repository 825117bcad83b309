package validators

import "strings"

// SanitizeString trims surrounding whitespace and caps the byte
// length. Zero maxLen means no cap.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if maxLen > 0 && len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
