package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// yearRe matches a plausible publication year: 18xx, 19xx or 20xx.
var yearRe = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

// ExtractYear returns the first 4-digit year between 1800 and 2099 found
// anywhere in s, or false if none is present. Accepts free-form input
// such as "2019 Jun;45(2)" from a MEDLINE DP field.
func ExtractYear(s string) (int, bool) {
	m := yearRe.FindString(s)
	if m == "" {
		return 0, false
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return y, true
}

var volPrefixRe = regexp.MustCompile(`(?i)^vol(?:ume)?\.?\s*`)

// Volume lowercases s and strips a leading "vol"/"volume" prefix, for
// comparing volume fields across sources that format them differently
// ("Vol. 12" vs "12"). Returns "", false for blank input or a result
// that normalizes to empty.
func Volume(s string) (string, bool) {
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	v := volPrefixRe.ReplaceAllString(strings.ToLower(s), "")
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}
