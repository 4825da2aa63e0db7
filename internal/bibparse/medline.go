package bibparse

import (
	"regexp"
	"strconv"
	"strings"
)

// medlineTagLineRe matches one MEDLINE tag line: 2-4 uppercase letters,
// optional padding spaces, a dash, then the value. The value may start
// immediately after the dash ("PMID-12345") or be separated by spaces
// ("TI  - Title").
var medlineTagLineRe = regexp.MustCompile(`^([A-Z]{2,4})\s*-\s*(.*)$`)

var medlineDOISuffixRe = regexp.MustCompile(`(?i)\s*\[doi\]\s*$`)
var medlineYearRe = regexp.MustCompile(`(\d{4})`)
var medlineISSNLabelRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// medlineMultiValueTags accumulate one entry per occurrence.
var medlineMultiValueTags = map[string]bool{
	"AU": true, "FAU": true, "MH": true, "OT": true,
}

// ParseMEDLINE parses a MEDLINE/PubMed-tagged text export into
// ParsedRecords. Records are separated by one or more blank lines; a
// failure in one block never prevents the rest from being processed.
func ParseMEDLINE(fileBytes []byte) ParseResult {
	text := decodeBytes(fileBytes)
	blocks := splitMedlineBlocks(text)

	result := ParseResult{FormatDetected: FormatMEDLINE, TotalAttempted: len(blocks)}
	for i, block := range blocks {
		fields := parseMedlineFields(block)
		if len(fields) == 0 {
			continue
		}
		rec := normalizeMedlineBlock(fields)
		if !isUsefulRecord(rec) {
			result.Errors = append(result.Errors, RecordError{
				Index:      i,
				Reason:     "record has no title, DOI, or source identifier",
				RawSnippet: truncate(block, snippetLen),
			})
			continue
		}
		result.Records = append(result.Records, rec)
	}
	result.ValidCount = len(result.Records)
	result.FailedCount = len(result.Errors)
	return result
}

var blankLineSplitRe = regexp.MustCompile(`\n{2,}`)

func splitMedlineBlocks(text string) []string {
	raw := blankLineSplitRe.Split(strings.TrimSpace(text), -1)
	var blocks []string
	for _, b := range raw {
		if t := strings.TrimSpace(b); t != "" {
			blocks = append(blocks, t)
		}
	}
	return blocks
}

// parseMedlineFields parses one block into tag → accumulated values,
// handling continuation lines (any non-blank line that isn't itself a
// recognizable tag line is appended to the currently open tag's value).
func parseMedlineFields(block string) map[string][]string {
	fields := map[string][]string{}
	var currentTag string
	var currentValue []string

	flush := func() {
		if currentTag != "" {
			fields[currentTag] = append(fields[currentTag], strings.Join(currentValue, " "))
		}
	}

	for _, line := range strings.Split(block, "\n") {
		if m := medlineTagLineRe.FindStringSubmatch(line); m != nil {
			flush()
			currentTag = strings.TrimSpace(m[1])
			currentValue = []string{strings.TrimSpace(m[2])}
		} else if currentTag != "" && strings.TrimSpace(line) != "" {
			currentValue = append(currentValue, strings.TrimSpace(line))
		}
	}
	flush()
	return fields
}

func medlineFirst(fields map[string][]string, tags ...string) string {
	for _, t := range tags {
		if vs, ok := fields[t]; ok && len(vs) > 0 {
			return cleanText(vs[0])
		}
	}
	return ""
}

func normalizeMedlineBlock(fields map[string][]string) ParsedRecord {
	raw := make(map[string]any, len(fields))
	for k, vs := range fields {
		if medlineMultiValueTags[k] {
			raw[k] = append([]string(nil), vs...)
		} else if len(vs) > 0 {
			raw[k] = vs[0]
		}
	}

	pmid := medlineFirst(fields, "PMID")
	raw["source_record_id"] = nilIfEmpty(pmid)
	raw["pmid"] = nilIfEmpty(pmid)

	title := medlineFirst(fields, "TI")
	abstract := medlineFirst(fields, "AB")

	authorTags := fields["FAU"]
	if len(authorTags) == 0 {
		authorTags = fields["AU"]
	}
	authors := cleanAll(authorTags)

	year := extractMedlineYear(medlineFirst(fields, "DP"))
	journal := medlineFirst(fields, "JT")
	if journal == "" {
		journal = medlineFirst(fields, "TA")
	}
	volume := medlineFirst(fields, "VI")
	issue := medlineFirst(fields, "IP")
	pages := medlineFirst(fields, "PG")

	doiSources := append(append([]string{}, fields["LID"]...), fields["AID"]...)
	doi := extractMedlineDOI(doiSources)

	issn := extractMedlineISSN(fields["IS"])

	kwSources := append(append([]string{}, fields["MH"]...), fields["OT"]...)
	keywords := cleanAll(kwSources)

	rec := ParsedRecord{
		Title:        strPtr(title),
		Abstract:     strPtr(abstract),
		Year:         year,
		Journal:      strPtr(journal),
		Volume:       strPtr(volume),
		Issue:        strPtr(issue),
		Pages:        strPtr(pages),
		ISSN:         strPtr(issn),
		SourceFormat: FormatMEDLINE,
		RawData:      raw,
	}
	if len(authors) > 0 {
		rec.Authors = authors
	}
	if len(keywords) > 0 {
		rec.Keywords = keywords
	}
	if doi != "" {
		rec.DOI = strPtr(normalizeDOI(doi))
	}
	if pmid != "" {
		rec.PMID = strPtr(pmid)
		rec.SourceRecordID = strPtr(pmid)
	}
	return rec
}

func extractMedlineYear(dp string) *int {
	m := medlineYearRe.FindString(dp)
	if m == "" {
		return nil
	}
	y, err := strconv.Atoi(m)
	if err != nil || y < 1000 || y > 2100 {
		return nil
	}
	return &y
}

// extractMedlineDOI returns the first LID/AID entry tagged "[doi]",
// e.g. "10.1234/example [doi]" → "10.1234/example".
func extractMedlineDOI(entries []string) string {
	for _, entry := range entries {
		if entry != "" && strings.Contains(strings.ToLower(entry), "[doi]") {
			return strings.TrimSpace(medlineDOISuffixRe.ReplaceAllString(entry, ""))
		}
	}
	return ""
}

// extractMedlineISSN returns the first ISSN, stripping a trailing
// "(Print)"/"(Electronic)" label.
func extractMedlineISSN(entries []string) string {
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		if issn := strings.TrimSpace(medlineISSNLabelRe.ReplaceAllString(entry, "")); issn != "" {
			return issn
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
