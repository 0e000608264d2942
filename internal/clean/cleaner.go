// Package clean normalizes playlist entries and removes duplicates.
package clean

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode"

	"github.com/savid/m3uclean/internal/m3u"
	"golang.org/x/text/unicode/norm"
)

// Reason codes for dropped entries.
const (
	ReasonInvalidURL = "invalid-url"
)

// Field names reported in Result.Changed.
const (
	FieldName     = "name"
	FieldURL      = "url"
	FieldDuration = "duration"
	attrFieldPfx  = "attr:"
)

// Schemes accepted for stream URLs.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"rtmp":  true,
	"rtsp":  true,
	"udp":   true,
}

// Attributes whose values are URLs and must survive aggressive stripping.
var urlAttributes = map[string]bool{
	"tvg-logo": true,
	"tvg-url":  true,
	"url-tvg":  true,
	"url-logo": true,
}

const safePunctuation = "-_.,:;()+/|!?@#'"

// Text passes repeat until the value stops changing; decoding an entity or
// dropping a character can expose another entity.
const maxTextPasses = 8

var tagRegex = regexp.MustCompile(`<[^>]*>`)

// Result is the outcome of cleaning one entry.
type Result struct {
	Entry   m3u.Entry
	Drop    bool
	Reason  string
	Changed []string
	// Repaired is set when a parser-invalid entry was salvaged.
	Repaired bool
}

// Cleaner normalizes entry fields.
type Cleaner struct {
	aggressive bool
}

// NewCleaner creates a cleaner. Aggressive mode strips everything outside
// a small allow-list from names and attribute values.
func NewCleaner(aggressive bool) *Cleaner {
	return &Cleaner{aggressive: aggressive}
}

// Clean normalizes a copy of entry or reports that it must be dropped.
func (c *Cleaner) Clean(entry m3u.Entry) Result {
	e := entry.Clone()
	res := Result{}

	cleanedURL, ok := CleanURL(e.URL)
	if !ok {
		res.Entry = e
		res.Drop = true
		res.Reason = ReasonInvalidURL

		return res
	}

	if cleanedURL != e.URL {
		e.URL = cleanedURL
		res.Changed = append(res.Changed, FieldURL)
	}

	if name := c.CleanText(e.Name); name != e.Name {
		e.Name = name
		res.Changed = append(res.Changed, FieldName)
	}

	for i, attr := range e.Attributes {
		value := c.cleanAttribute(attr.Key, attr.Value)
		if value != attr.Value {
			e.Attributes[i].Value = value
			res.Changed = append(res.Changed, attrFieldPfx+attr.Key)
		}
	}

	if e.Invalid {
		res.Repaired = true

		if e.Problem == m3u.ProblemBadDuration || e.Duration == "" {
			e.Duration = m3u.UnknownDuration
			res.Changed = append(res.Changed, FieldDuration)
		}

		e.Invalid = false
		e.Problem = ""
	}

	if e.Name == "" {
		e.Name = c.CleanText(NameFromURL(e.URL))
		if e.Name == "" {
			e.Name = c.CleanText(hostname(e.URL))
		}

		res.Changed = append(res.Changed, FieldName)
	}

	if len(res.Changed) > 0 || res.Repaired {
		e.Modified = true
	}

	res.Entry = e

	return res
}

// CleanText applies the configured character policy to a text field.
func (c *Cleaner) CleanText(s string) string {
	s = StandardText(s)

	if c.aggressive {
		// Re-normalize: stripping can leave combining marks next to new bases.
		s = StandardText(AggressiveText(s))
	}

	return s
}

func (c *Cleaner) cleanAttribute(key, value string) string {
	isURL := urlAttributes[strings.ToLower(key)]

	// URL values keep their entities: "&region=" must not become "®ion=".
	text := StandardText
	if isURL {
		text = sanitize
	}

	// Quotes are illegal inside a quoted value, including decoded &quot;.
	value = fixpoint(value, func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(text(s), `"`, ""))
	})

	if c.aggressive && !isURL {
		value = StandardText(AggressiveText(value))
	}

	return value
}

// StandardText decodes HTML entities, trims, NFC-normalizes and removes
// control characters and invalid UTF-8 from s.
func StandardText(s string) string {
	return fixpoint(s, func(s string) string {
		return sanitize(html.UnescapeString(strings.ToValidUTF8(s, "")))
	})
}

// sanitize is StandardText without entity decoding.
func sanitize(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = norm.NFC.String(s)

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}

		return r
	}, s)

	return strings.TrimSpace(s)
}

// AggressiveText removes markup tags, keeps letters, digits, marks, spaces
// and safe punctuation, and collapses runs of whitespace.
func AggressiveText(s string) string {
	s = tagRegex.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
			return r
		case unicode.IsSpace(r):
			return ' '
		case strings.ContainsRune(safePunctuation, r):
			return r
		}

		return -1
	}, s)

	return strings.Join(strings.Fields(s), " ")
}

func fixpoint(s string, pass func(string) string) string {
	for i := 0; i < maxTextPasses; i++ {
		next := pass(s)
		if next == s {
			break
		}

		s = next
	}

	return s
}

// CleanURL trims and repairs a stream URL and reports whether it is usable.
func CleanURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if strings.HasPrefix(s, "//") {
		s = "http:" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}

	if !allowedSchemes[strings.ToLower(u.Scheme)] || u.Host == "" {
		return "", false
	}

	return s, true
}

// NameFromURL derives a display name from the last path segment of a URL,
// falling back to the host.
func NameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	segment := path.Base(strings.TrimSuffix(u.EscapedPath(), "/"))
	if segment == "." || segment == "/" || segment == "" {
		return u.Hostname()
	}

	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}

	return StandardText(segment)
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	return u.Hostname()
}
