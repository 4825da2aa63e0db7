package bibparse

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cleanText NFC-normalizes value, collapses internal whitespace, and
// trims. Returns "" for blank input — callers treat "" as "no value"
// throughout this package, converting to *string only at the boundary
// with ParsedRecord.
func cleanText(value string) string {
	if value == "" {
		return ""
	}
	value = norm.NFC.String(value)
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// isUsefulRecord reports whether rec carries enough information to be
// worth keeping: a title, a DOI, or some form of stable source
// identifier. A record with none of these is almost always a stray
// preamble line or a parser misfire, not a real citation.
func isUsefulRecord(rec ParsedRecord) bool {
	if rec.Title != nil && *rec.Title != "" {
		return true
	}
	if rec.DOI != nil && *rec.DOI != "" {
		return true
	}
	if rec.SourceRecordID != nil && *rec.SourceRecordID != "" {
		return true
	}
	if rec.PMID != nil && *rec.PMID != "" {
		return true
	}
	return false
}

// normalizeDOI lowercases a DOI and strips common prefixes so that
// "https://doi.org/10.1/X", "doi:10.1/X" and "10.1/x" all collapse to
// the same value.
func normalizeDOI(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "doi:", "doi.org/"} {
		if strings.HasPrefix(d, prefix) {
			d = strings.TrimPrefix(d, prefix)
			break
		}
	}
	return strings.TrimSpace(d)
}
