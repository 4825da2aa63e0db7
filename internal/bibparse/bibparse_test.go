package bibparse

import (
	"strings"
	"testing"
)

const sampleRIS = `TY  - JOUR
TI  - Deep Learning for Genomic Sequence Analysis
AU  - Smith, Jane
AU  - Doe, John
PY  - 2020
JO  - Journal of Bioinformatics
VL  - 12
IS  - 3
SP  - 100
EP  - 110
DO  - 10.1000/ABC123
SN  - 1234-5678
AN  - 98765
KW  - genomics
KW  - deep learning
ER  -

TY  - JOUR
TI  - A Second Paper
AU  - Jones, Amy
PY  - 2021
ER  -
`

const sampleMEDLINE = `PMID- 12345678
TI  - A Study of Things
AU  - Smith J
FAU - Smith, Jane
AB  - This is the abstract of the study, continuing across
      a second line of text.
DP  - 2019 Jun
JT  - Journal of Examples
VI  - 5
IP  - 2
PG  - 45-50
LID - 10.1000/xyz456 [doi]
IS  - 1234-5678 (Print)
MH  - keyword one

PMID- 87654321
TI  - Another Study
DP  - 2020
`

func TestDetectFormatRIS(t *testing.T) {
	if got := DetectFormat([]byte(sampleRIS)); got != FormatRIS {
		t.Fatalf("expected ris, got %s", got)
	}
}

func TestDetectFormatMEDLINE(t *testing.T) {
	if got := DetectFormat([]byte(sampleMEDLINE)); got != FormatMEDLINE {
		t.Fatalf("expected medline, got %s", got)
	}
}

func TestDetectFormatCSV(t *testing.T) {
	csv := "title,author,year,journal\nA title,Smith,2020,Journal\n"
	if got := DetectFormat([]byte(csv)); got != FormatCSV {
		t.Fatalf("expected csv, got %s", got)
	}
}

func TestDetectFormatUnknown(t *testing.T) {
	if got := DetectFormat([]byte("this is just some free text\nwith nothing recognizable\n")); got != FormatUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestParseRISExtractsFields(t *testing.T) {
	result := ParseRIS([]byte(sampleRIS))
	if result.ValidCount != 2 {
		t.Fatalf("expected 2 valid records, got %d (%d errors)", result.ValidCount, result.FailedCount)
	}
	first := result.Records[0]
	if first.Title == nil || *first.Title != "Deep Learning for Genomic Sequence Analysis" {
		t.Fatalf("unexpected title: %+v", first.Title)
	}
	if first.DOI == nil || *first.DOI != "10.1000/abc123" {
		t.Fatalf("expected lowercased doi, got %+v", first.DOI)
	}
	if first.Year == nil || *first.Year != 2020 {
		t.Fatalf("unexpected year: %+v", first.Year)
	}
	if len(first.Authors) != 2 {
		t.Fatalf("expected 2 authors, got %v", first.Authors)
	}
	if first.Pages == nil || *first.Pages != "100-110" {
		t.Fatalf("unexpected pages: %+v", first.Pages)
	}
	if first.SourceRecordID == nil || *first.SourceRecordID != "98765" {
		t.Fatalf("unexpected source record id: %+v", first.SourceRecordID)
	}
}

func TestParseMEDLINEExtractsFields(t *testing.T) {
	result := ParseMEDLINE([]byte(sampleMEDLINE))
	if result.ValidCount != 2 {
		t.Fatalf("expected 2 valid records, got %d (%d errors)", result.ValidCount, result.FailedCount)
	}
	first := result.Records[0]
	if first.Title == nil || *first.Title != "A Study of Things" {
		t.Fatalf("unexpected title: %+v", first.Title)
	}
	if first.PMID == nil || *first.PMID != "12345678" {
		t.Fatalf("unexpected pmid: %+v", first.PMID)
	}
	if first.DOI == nil || *first.DOI != "10.1000/xyz456" {
		t.Fatalf("expected doi stripped of [doi] suffix, got %+v", first.DOI)
	}
	if first.ISSN == nil || *first.ISSN != "1234-5678" {
		t.Fatalf("expected issn stripped of (Print), got %+v", first.ISSN)
	}
	if first.Year == nil || *first.Year != 2019 {
		t.Fatalf("unexpected year: %+v", first.Year)
	}
	if first.Abstract == nil || !strings.Contains(*first.Abstract, "continuing across a second line") {
		t.Fatalf("expected continuation line merged into abstract: %+v", first.Abstract)
	}
}

func TestParseBytesRejectsCSV(t *testing.T) {
	csv := "title,author,year,journal\nA title,Smith,2020,Journal\n"
	result := ParseBytes([]byte(csv))
	if result.FormatDetected != FormatCSV {
		t.Fatalf("expected csv detected, got %s", result.FormatDetected)
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected a rejection warning for csv")
	}
}

func TestParseRISSkipsUselessEntries(t *testing.T) {
	ris := `TY  - JOUR
AU  - Nobody
ER  -
`
	result := ParseRIS([]byte(ris))
	if result.ValidCount != 0 || result.FailedCount != 1 {
		t.Fatalf("expected entry without title/doi/id to be dropped, got %+v", result)
	}
}
