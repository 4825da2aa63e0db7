package bibparse

import (
	"regexp"
	"strconv"
	"strings"
)

// risTagLineRe matches one RIS tag line: a two-letter (occasionally
// alphanumeric) tag, two spaces, a dash, then the value. "ER" (end of
// record) carries no value but still matches.
var risTagLineRe = regexp.MustCompile(`^([A-Z][A-Z0-9])  - ?(.*)$`)

// risMultiValueTags accumulate one entry per occurrence (authors,
// keywords) instead of being overwritten by the last occurrence.
var risMultiValueTags = map[string]bool{
	"AU": true, "A1": true, "A2": true, "A3": true, "KW": true,
}

// risEntry is one raw parsed RIS record: tag → accumulated values, in
// the order first seen.
type risEntry map[string][]string

// parseRISEntries splits decoded RIS text into tag/value entries, one
// per "TY" .. "ER" block. A record with no terminating "ER" line is
// still flushed at end of input so a truncated export is not silently
// dropped.
func parseRISEntries(text string) []risEntry {
	var entries []risEntry
	current := risEntry{}
	hasContent := false

	flush := func() {
		if hasContent {
			entries = append(entries, current)
		}
		current = risEntry{}
		hasContent = false
	}

	var lastTag string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		m := risTagLineRe.FindStringSubmatch(line)
		if m == nil {
			// Continuation of the previous tag's value (no tag prefix).
			if lastTag != "" && len(current[lastTag]) > 0 {
				idx := len(current[lastTag]) - 1
				current[lastTag][idx] = strings.TrimSpace(current[lastTag][idx] + " " + strings.TrimSpace(line))
			}
			continue
		}
		tag, value := m[1], strings.TrimSpace(m[2])

		if tag == "TY" {
			flush()
		}
		hasContent = true

		if !risMultiValueTags[tag] {
			current[tag] = []string{value}
		} else {
			current[tag] = append(current[tag], value)
		}
		lastTag = tag

		if tag == "ER" {
			flush()
			lastTag = ""
		}
	}
	flush()
	return entries
}

// ParseRIS parses raw RIS file bytes into ParsedRecords. Every entry is
// processed independently; a malformed entry is reported as a
// RecordError rather than aborting the file.
func ParseRIS(fileBytes []byte) ParseResult {
	text := decodeBytes(fileBytes)
	entries := parseRISEntries(text)

	result := ParseResult{FormatDetected: FormatRIS, TotalAttempted: len(entries)}
	for i, e := range entries {
		rec := normalizeRISEntry(e)
		if !isUsefulRecord(rec) {
			result.Errors = append(result.Errors, RecordError{
				Index:      i,
				Reason:     "record has no title, DOI, or source identifier",
				RawSnippet: risSnippet(e),
			})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	result.ValidCount = len(result.Records)
	result.FailedCount = len(result.Errors)
	return result
}

func first(e risEntry, tags ...string) string {
	for _, t := range tags {
		if vs, ok := e[t]; ok && len(vs) > 0 && strings.TrimSpace(vs[0]) != "" {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}

func normalizeRISEntry(e risEntry) ParsedRecord {
	raw := make(map[string]any, len(e))
	for k, v := range e {
		if risMultiValueTags[k] {
			raw[k] = append([]string(nil), v...)
		} else if len(v) > 0 {
			raw[k] = v[0]
		}
	}

	sourceRecordID := cleanText(first(e, "AN"))
	raw["source_record_id"] = nilIfEmpty(sourceRecordID)

	title := cleanText(first(e, "TI", "T1", "T2"))
	abstract := cleanText(first(e, "AB", "N2"))
	authors := cleanAll(e["AU"])
	if len(authors) == 0 {
		authors = cleanAll(e["A1"])
	}
	year := extractRISYear(first(e, "PY", "Y1"))
	journal := cleanText(first(e, "JO", "JF", "T2", "SO"))
	doi := cleanText(first(e, "DO"))
	issn := cleanText(first(e, "SN"))
	volume := cleanText(first(e, "VL"))
	issue := cleanText(first(e, "IS"))
	pages := extractRISPages(e)
	keywords := cleanAll(e["KW"])

	rec := ParsedRecord{
		Abstract:     strPtr(abstract),
		Year:         year,
		Journal:      strPtr(journal),
		ISSN:         strPtr(issn),
		Volume:       strPtr(volume),
		Issue:        strPtr(issue),
		Pages:        strPtr(pages),
		SourceFormat: FormatRIS,
		RawData:      raw,
	}
	rec.Title = strPtr(title)
	if len(authors) > 0 {
		rec.Authors = authors
	}
	if len(keywords) > 0 {
		rec.Keywords = keywords
	}
	if doi != "" {
		rec.DOI = strPtr(strings.ToLower(doi))
	}
	if sourceRecordID != "" {
		rec.SourceRecordID = strPtr(sourceRecordID)
	}
	return rec
}

func extractRISYear(raw string) *int {
	if raw == "" {
		return nil
	}
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
			if digits.Len() == 4 {
				break
			}
		}
	}
	if digits.Len() < 4 {
		return nil
	}
	y, err := strconv.Atoi(digits.String())
	if err != nil || y < 1000 || y > 2100 {
		return nil
	}
	return &y
}

func extractRISPages(e risEntry) string {
	start := cleanText(first(e, "SP"))
	end := cleanText(first(e, "EP"))
	if start != "" && end != "" {
		return start + "-" + end
	}
	if start != "" {
		return start
	}
	return end
}

func risSnippet(e risEntry) string {
	title := first(e, "TI", "T1")
	if title == "" {
		title = "(untitled RIS entry)"
	}
	return truncate(title, snippetLen)
}

func cleanAll(values []string) []string {
	var out []string
	for _, v := range values {
		if c := cleanText(v); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
