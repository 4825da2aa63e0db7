package normalize

import (
	"strings"
	"unicode"
)

// FirstAuthor extracts a normalized last-name string from the first
// element of authors, for dedup-mode match keys. An entry containing a
// comma is split on it ("Smith, Jane" → "Smith"); otherwise the last
// whitespace-delimited token is taken ("Jane Smith" → "Smith"). The
// result is lowercased with every rune other than ASCII a–z and
// whitespace removed (accented letters are dropped, not kept).
// Returns "", false when authors is empty or yields nothing.
func FirstAuthor(authors []string) (string, bool) {
	if len(authors) == 0 {
		return "", false
	}
	first := strings.TrimSpace(authors[0])
	if first == "" {
		return "", false
	}

	var lastPart string
	if idx := strings.Index(first, ","); idx >= 0 {
		lastPart = first[:idx]
	} else {
		tokens := strings.Fields(first)
		if len(tokens) == 0 {
			lastPart = first
		} else {
			lastPart = tokens[len(tokens)-1]
		}
	}

	lastPart = strings.ToLower(lastPart)
	lastPart = keepLettersAndSpaces(lastPart)
	lastPart = strings.Join(strings.Fields(lastPart), " ")
	if lastPart == "" {
		return "", false
	}
	return lastPart, true
}

// Authors splits a raw author field into last-name surnames for overlap
// detection. It accepts either a pre-split slice (each element treated
// as one author) or a single semicolon-delimited string — commas inside
// one entry are interpreted as "Last, First", so a string input is split
// on semicolons only, never commas.
func Authors(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		for _, a := range strings.Split(v, ";") {
			a = strings.TrimSpace(a)
			if a != "" {
				parts = append(parts, a)
			}
		}
	case []string:
		for _, a := range v {
			if a != "" {
				parts = append(parts, a)
			}
		}
	default:
		return nil
	}

	lasts := make([]string, 0, len(parts))
	for _, p := range parts {
		var last string
		if idx := strings.Index(p, ","); idx >= 0 {
			last = strings.TrimSpace(p[:idx])
		} else {
			tokens := strings.Fields(strings.TrimSpace(p))
			if len(tokens) > 0 {
				last = tokens[len(tokens)-1]
			}
		}
		last = strings.ToLower(last)
		last = keepLettersAndSpaces(last)
		last = strings.TrimSpace(last)
		if last != "" {
			lasts = append(lasts, last)
		}
	}
	return lasts
}

// FirstAuthorLast returns the first surname from Authors(raw), or "",
// false if there are none.
func FirstAuthorLast(raw any) (string, bool) {
	lasts := Authors(raw)
	if len(lasts) == 0 {
		return "", false
	}
	return lasts[0], true
}

// keepLettersAndSpaces drops every rune that is not an ASCII letter or
// whitespace, matching Python's `[^a-z\s]` author-cleaning pattern.
func keepLettersAndSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
