package bibparse

// ParseBytes detects the format of fileBytes and dispatches to the
// matching parser. CSV is detected but rejected: the exporting databases
// this system targets use wildly different column layouts, and guessing
// one would silently corrupt titles and authors rather than fail loudly.
func ParseBytes(fileBytes []byte) ParseResult {
	format := DetectFormat(fileBytes)

	switch format {
	case FormatRIS:
		return ParseRIS(fileBytes)
	case FormatMEDLINE:
		return ParseMEDLINE(fileBytes)
	case FormatCSV:
		return ParseResult{
			FormatDetected: FormatCSV,
			Warnings:       []string{"CSV import is not supported; please export as RIS or MEDLINE"},
		}
	default:
		return ParseResult{
			FormatDetected: FormatUnknown,
			Warnings:       []string{"could not determine file format"},
		}
	}
}
