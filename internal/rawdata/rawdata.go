// Package rawdata reads the bibliographic fields an orchestrator needs
// back out of a record_source's opaque RawData blob. Convention: keys
// are the lowercase names of the matching domain.Record field
// ("title", "abstract", "authors", "year", "journal", "volume",
// "issue", "pages", "doi", "issn", "keywords", "source_format",
// "pmid") — the shape bibparse.ParsedRecord is flattened into at
// import time.
package rawdata

// String returns raw[key] as a non-empty *string, or nil.
func String(raw map[string]any, key string) *string {
	if raw == nil {
		return nil
	}
	if v, ok := raw[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

// StringValue is String with the zero value instead of nil.
func StringValue(raw map[string]any, key string) string {
	if s := String(raw, key); s != nil {
		return *s
	}
	return ""
}

// StringSlice returns raw[key] as a []string, tolerating both a
// native []string (set by importer) and a []any of strings (the shape
// a round trip through JSON/YAML would produce).
func StringSlice(raw map[string]any, key string) []string {
	if raw == nil {
		return nil
	}
	switch v := raw[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Authors is StringSlice("authors") by another name, kept distinct so
// call sites read as intent rather than a raw map lookup.
func Authors(raw map[string]any) []string {
	return StringSlice(raw, "authors")
}

// Int returns raw[key] as an *int, tolerating both a native int (set
// by importer) and a float64 (the shape a JSON round trip produces).
func Int(raw map[string]any, key string) *int {
	if raw == nil {
		return nil
	}
	switch v := raw[key].(type) {
	case int:
		return &v
	case float64:
		n := int(v)
		return &n
	default:
		return nil
	}
}
