package clean

import (
	"net/url"
	"strings"

	"github.com/savid/m3uclean/internal/m3u"
)

// ReasonDuplicatePrefix prefixes the reason code for dropped duplicates.
const ReasonDuplicatePrefix = "duplicate-of="

// Duplicate records an entry removed because an earlier entry shares its key.
type Duplicate struct {
	Entry m3u.Entry
	// Of is the URL of the first-seen entry with the same key.
	Of string
}

// Reason returns the action log reason code.
func (d Duplicate) Reason() string {
	return ReasonDuplicatePrefix + d.Of
}

// Deduplicate removes entries whose normalized URL was already seen.
// The first occurrence wins and input order is preserved.
func Deduplicate(entries []m3u.Entry) ([]m3u.Entry, []Duplicate) {
	kept := make([]m3u.Entry, 0, len(entries))
	seen := make(map[string]string, len(entries))

	var duplicates []Duplicate

	for _, entry := range entries {
		key := NormalizeURL(entry.URL)

		if first, ok := seen[key]; ok {
			duplicates = append(duplicates, Duplicate{Entry: entry, Of: first})

			continue
		}

		seen[key] = entry.URL
		kept = append(kept, entry)
	}

	return kept, duplicates
}

// NormalizeURL returns the equivalence key for a stream URL: lower-cased
// scheme and host plus the path without a trailing slash. Query strings
// and fragments are ignored.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + strings.TrimSuffix(u.EscapedPath(), "/")
}
