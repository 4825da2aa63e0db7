// Package normalize implements the pure string-normalization routines
// shared by the match-key builder and the tiered cluster engine. Every
// function here is side-effect free and safe to call from any goroutine;
// none of them perform I/O, so they are exercised directly by unit tests
// rather than through fakes.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped from a dedup-mode title so that minor wording
// differences ("A Study of X" vs "Study of X") still collapse to the same
// key. The overlap-mode normalizer intentionally does NOT apply this
// list — see TitleForOverlap.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true,
	"on": true, "at": true, "for": true, "by": true, "and": true,
	"or": true, "with": true, "to": true, "from": true, "is": true,
	"are": true, "was": true, "were": true,
}

const maxTitleLen = 200

// Title normalizes a title for dedup-mode match-key construction: NFC,
// lowercase, strip punctuation, drop stop words, collapse whitespace,
// truncate to 200 runes. Returns "", false for an empty or blank input,
// or if every token is a stop word.
func Title(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	text := norm.NFC.String(raw)
	text = strings.ToLower(text)
	text = stripPunctuation(text)

	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if !stopWords[f] {
			kept = append(kept, f)
		}
	}
	result := strings.Join(kept, " ")
	if r := []rune(result); len(r) > maxTitleLen {
		result = string(r[:maxTitleLen])
	}
	result = strings.TrimSpace(result)
	if result == "" {
		return "", false
	}
	return result, true
}

// TitleForOverlap normalizes a title for overlap detection: NFKD,
// lowercase, strip bracketed annotations like "[Review]", strip
// punctuation, collapse whitespace, strip a trailing period. Unlike
// Title it keeps stop words — the overlap engine blocks on a title
// prefix and dropping stop words would shift that prefix inconsistently
// across near-duplicate titles from different source formats.
func TitleForOverlap(raw string) string {
	if raw == "" {
		return ""
	}
	text := norm.NFKD.String(raw)
	text = strings.ToLower(text)
	text = stripBracketed(text)
	text = stripPunctuation(text)
	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimRight(text, ".")
	return text
}

// stripBracketed removes [bracketed] spans such as "[Review]" or
// "[erratum]", replacing each with a single space.
func stripBracketed(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
			b.WriteRune(' ')
		case r == ']':
			if depth > 0 {
				depth--
			}
			b.WriteRune(' ')
		case depth > 0:
			// inside brackets, drop
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripPunctuation replaces every rune that is not a letter, digit or
// whitespace with a space, matching Python's `[^\w\s]` under re.UNICODE.
func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return b.String()
}
