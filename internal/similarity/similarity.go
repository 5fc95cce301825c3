// Package similarity provides normalized edit-distance comparison for
// free-text names. Callers are responsible for any case or whitespace
// normalization; strings are compared exactly as given.
package similarity

// Ratio returns (maxLen - levenshtein(a, b)) / maxLen in [0, 1].
// Identical strings yield 1.0; two empty strings yield 1.0 by convention.
func Ratio(a, b string) float64 {
	if a == b {
		return 1.0
	}

	ra := []rune(a)
	rb := []rune(b)

	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1.0
	}

	dist := levenshtein(ra, rb)
	return float64(maxLen-dist) / float64(maxLen)
}

// levenshtein computes the edit distance with a two-row matrix.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}
