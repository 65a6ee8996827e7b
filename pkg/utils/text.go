package utils

const Ellipsis = "..."

// Truncate cuts s to at most limit characters (runes, not bytes) and appends
// an ellipsis when anything was dropped.
func Truncate(s string, limit int) string {
	if limit < 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + Ellipsis
}

// Clip cuts s to at most limit runes without a marker.
func Clip(s string, limit int) string {
	runes := []rune(s)
	if limit < 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
