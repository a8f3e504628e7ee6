package utils

// Truncate shortens s to at most maxLen runes, marking the cut with "...".
func Truncate(s string, maxLen int) string {
	if head := HeadRunes(s, maxLen); len(head) < len(s) {
		return head + "..."
	}
	return s
}

// HeadRunes returns the first n runes of s.
func HeadRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
