package bibparse

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeBytes decodes raw file bytes to text, falling back from UTF-8 to
// Latin-1 when the bytes are not valid UTF-8 — vendor exports (older
// Scopus/Web of Science dumps especially) still show up Windows-1252 /
// Latin-1 encoded. CRLF and lone CR are normalized to LF throughout.
func decodeBytes(b []byte) string {
	b = stripBOM(b)

	var text string
	if utf8.Valid(b) {
		text = string(b)
	} else {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
		if err != nil {
			text = string(b) // last resort: treat as raw bytes
		} else {
			text = string(decoded)
		}
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text
}

func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == utf8BOM[0] && b[1] == utf8BOM[1] && b[2] == utf8BOM[2] {
		return b[3:]
	}
	return b
}

const probeBytes = 4096

// decodeProbe decodes only the first probeBytes of the file — enough for
// format detection without paying for a full decode of a huge file.
func decodeProbe(b []byte) string {
	if len(b) > probeBytes {
		b = b[:probeBytes]
	}
	return decodeBytes(b)
}
