package smartsheet

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	longIDRegex  = regexp.MustCompile(`\d{19}`)
	shortIDRegex = regexp.MustCompile(`\d{10,}`)
)

// ExtractSheetID pulls a sheet identifier out of the URL a user copies
// from their browser. Handles app links (/sheets/{id}), published links
// (?EQBCT={id}), and raw numeric IDs pasted directly.
func ExtractSheetID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("sheet URL is empty")
	}

	if _, after, found := strings.Cut(raw, "/sheets/"); found {
		id := after
		if i := strings.IndexAny(id, "?/"); i >= 0 {
			id = id[:i]
		}
		if id != "" {
			return id, nil
		}
	}

	if _, after, found := strings.Cut(raw, "EQBCT="); found {
		id := after
		if i := strings.IndexByte(id, '&'); i >= 0 {
			id = id[:i]
		}
		if id != "" {
			return id, nil
		}
	}

	if m := longIDRegex.FindString(raw); m != "" {
		return m, nil
	}
	if m := shortIDRegex.FindString(raw); m != "" {
		return m, nil
	}

	return "", fmt.Errorf("could not extract sheet ID from %q", raw)
}
