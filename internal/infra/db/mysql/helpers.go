package mysql

import "strings"

func escapeLikePattern(s string) string {
	// Escape backslash first, then other LIKE special characters
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
