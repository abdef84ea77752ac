package archive

import "strings"

// Key is a natural sort key: alternating text and digit runs, always
// starting with a (possibly empty) text run. Even positions hold text,
// odd positions hold digits, so two keys never compare a number to text.
type Key []string

// NaturalKey splits s into its natural sort key.
func NaturalKey(s string) Key {
	key := Key{}
	start := 0
	digits := false
	for i := 0; i < len(s); i++ {
		d := isDigit(s[i])
		if d != digits {
			key = append(key, s[start:i])
			start = i
			digits = d
		}
	}
	key = append(key, s[start:])
	if digits {
		// keep the text/digit alternation closed with a trailing text run
		key = append(key, "")
	}
	return key
}

// Compare returns -1, 0 or 1 ordering k before, equal to or after other.
func (k Key) Compare(other Key) int {
	n := min(len(k), len(other))
	for i := 0; i < n; i++ {
		var c int
		if i%2 == 1 {
			c = compareDigits(k[i], other[i])
		} else {
			c = strings.Compare(k[i], other[i])
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(k) < len(other):
		return -1
	case len(k) > len(other):
		return 1
	}
	return 0
}

// compareDigits compares two digit runs as integers of arbitrary size.
func compareDigits(a, b string) int {
	ta := strings.TrimLeft(a, "0")
	tb := strings.TrimLeft(b, "0")
	if len(ta) != len(tb) {
		if len(ta) < len(tb) {
			return -1
		}
		return 1
	}
	return strings.Compare(ta, tb)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
