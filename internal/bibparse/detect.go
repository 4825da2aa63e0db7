package bibparse

import (
	"regexp"
	"strings"
)

// Format names returned by DetectFormat and carried in ParseResult.
const (
	FormatRIS     = "ris"
	FormatMEDLINE = "medline"
	FormatCSV     = "csv"
	FormatUnknown = "unknown"
)

// risTagRe matches the RIS record-type tag line "TY  - ..." that opens
// every RIS record. Spec rule 1 is "^TY\s+-": real exports vary
// between one, two, and occasionally more spaces before the dash, so
// this tolerates any run of whitespace rather than requiring exactly
// two.
var risTagRe = regexp.MustCompile(`(?m)^TY\s+-`)

// medlineTagRe matches the "PMID- " line that opens a genuine PubMed
// MEDLINE export.
var medlineTagRe = regexp.MustCompile(`(?m)^PMID-\s`)

// medlineSecondaryTagsRe matches the handful of standard MEDLINE tags
// used as a fallback heuristic for files with a preamble before PMID.
var medlineSecondaryTagsRe = regexp.MustCompile(`(?m)^(AU  -|TI  -|AB  -|DP  -|MH  -|FAU -|PT  -)`)

// DetectFormat inspects file content (never its extension) and returns
// the most likely format. Detection order matters: RIS is checked first
// because some RIS exports open with a BOM followed directly by
// "TY  - JOUR"; MEDLINE is checked second because every genuine PubMed
// .txt export opens with "PMID-".
func DetectFormat(fileBytes []byte) string {
	if len(fileBytes) == 0 {
		return FormatUnknown
	}

	text := decodeProbe(fileBytes)

	if risTagRe.MatchString(text) {
		return FormatRIS
	}
	if medlineTagRe.MatchString(text) {
		return FormatMEDLINE
	}
	if len(medlineSecondaryTagsRe.FindAllString(text, -1)) >= 3 {
		return FormatMEDLINE
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.Count(trimmed, ",") >= 3 {
			return FormatCSV
		}
		break // only the first non-blank line is checked
	}

	// Last resort: a full RIS parse attempt catches RIS files whose
	// probe window happened to land inside a long abstract before the
	// first "TY  -" tag reappeared (rare, but seen in multi-record
	// exports with very long notes fields).
	if full := decodeBytes(fileBytes); len(parseRISEntries(full)) > 0 {
		return FormatRIS
	}

	return FormatUnknown
}
