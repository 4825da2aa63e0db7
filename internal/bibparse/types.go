// Package bibparse converts raw bibliographic export files — RIS and
// MEDLINE/PubMed tagged text — into normalized records ready for
// insertion as record_sources. CSV is detected but deliberately rejected:
// it carries no agreed field mapping across the exporting databases this
// system targets, so accepting it would silently produce garbage titles.
//
// Every parser returns a ParseResult rather than failing outright on the
// first bad record: one malformed entry in a 500-record export must never
// sink the other 499.
package bibparse

import (
	"strconv"
	"strings"
)

// ParsedRecord is the normalized shape every parser produces, regardless
// of source format. RawData preserves the original tag/field values
// verbatim so nothing is lost on the way into record_sources.raw_data.
type ParsedRecord struct {
	Title          *string
	Abstract       *string
	Authors        []string
	Year           *int
	Journal        *string
	DOI            *string
	ISSN           *string
	Volume         *string
	Issue          *string
	Pages          *string
	Keywords       []string
	SourceFormat   string
	SourceRecordID *string
	PMID           *string
	RawData        map[string]any
}

// RecordError is a single per-record parse failure. It is never fatal —
// the remaining records in the file are still processed.
type RecordError struct {
	Index      int    // 0-based position in the file, in order of appearance
	Reason     string // human-readable description of the failure
	RawSnippet string // for debugging: MEDLINE gives the first 200 runes of the raw record block; RIS gives the entry's title (or a placeholder), cut to 200 runes
}

// ParseResult is the single return type from every parser. It carries
// both successfully parsed records and per-record errors so a corrupt
// entry never aborts the whole import.
type ParseResult struct {
	Records        []ParsedRecord
	Errors         []RecordError
	FormatDetected string // "ris" | "medline" | "csv" | "unknown"
	TotalAttempted int
	ValidCount     int
	FailedCount    int
	Warnings       []string // file-level issues
}

// HasWarnings reports whether anything about this parse deserves a
// reviewer's attention: per-record errors or file-level warnings.
func (r ParseResult) HasWarnings() bool {
	return len(r.Errors) > 0 || len(r.Warnings) > 0
}

const maxErrorsInSummary = 10
const snippetLen = 200

// ErrorSummary renders a short human-readable report, written to
// import_jobs.summary on a completed-with-warnings or failed job.
func (r ParseResult) ErrorSummary() string {
	var b []string

	if r.ValidCount == 0 {
		b = append(b, quoteFormat(r.FormatDetected))
	} else {
		line := strconv.Itoa(r.ValidCount) + " record(s) imported"
		if r.FormatDetected != "unknown" {
			line += " from " + strings.ToUpper(r.FormatDetected) + " format"
		}
		line += "."
		b = append(b, line)
	}

	if r.FailedCount > 0 {
		lines := []string{strconv.Itoa(r.FailedCount) + " record(s) skipped:"}
		limit := r.Errors
		if len(limit) > maxErrorsInSummary {
			limit = limit[:maxErrorsInSummary]
		}
		for _, e := range limit {
			lines = append(lines, "  ["+strconv.Itoa(e.Index)+"] "+e.Reason)
		}
		if len(r.Errors) > maxErrorsInSummary {
			lines = append(lines, "  … and "+strconv.Itoa(len(r.Errors)-maxErrorsInSummary)+" more")
		}
		b = append(b, strings.Join(lines, "\n"))
	}

	if len(r.Warnings) > 0 {
		b = append(b, "Warnings: "+strings.Join(r.Warnings, "; "))
	}

	return strings.Join(b, "\n")
}

func quoteFormat(format string) string {
	return "No valid records found in \"" + format + "\" file."
}
