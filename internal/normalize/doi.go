package normalize

import "strings"

// DOI lowercases and trims a raw DOI string so that "10.1/ABC" and
// "10.1/abc" collapse to the same match key. Returns "", false for blank
// input.
func DOI(raw string) (string, bool) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "" {
		return "", false
	}
	return d, true
}
