// Package m3u provides parsing and serialization for M3U playlist files.
package m3u

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

const (
	headerPrefix = "#EXTM3U"
	extinfPrefix = "#EXTINF:"

	// UnknownDuration is the M3U convention for live or unknown-length streams.
	UnknownDuration = "-1"

	maxLineSize = 1024 * 1024
)

// Problems recorded on entries the parser could not read cleanly.
const (
	ProblemMissingURL    = "missing url"
	ProblemMissingExtinf = "missing extinf"
	ProblemBadDuration   = "unparsable duration"
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	durationRegex = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	// Matches key="value" or key=value pairs.
	attrRegex = regexp.MustCompile(`([A-Za-z0-9_-]+)=(?:"([^"]*)"|([^\s"]+))`)

	// Directives that belong to the entry they follow.
	entryDirectives = []string{"#EXT-X-", "#EXTVLCOPT", "#EXTGRP", "#KODIPROP"}
)

// Attribute is a single key/value pair from an #EXTINF line.
type Attribute struct {
	Key   string
	Value string
}

// Attributes keeps EXTINF attributes in the order they were written.
type Attributes []Attribute

// Get returns the value for key.
func (a Attributes) Get(key string) (string, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}

	return "", false
}

// Entry represents a single channel block in an M3U playlist.
type Entry struct {
	Name       string
	URL        string
	Duration   string
	Attributes Attributes
	Directives []string

	// RawExtinf is the #EXTINF line as read, used verbatim on output
	// unless the entry was modified.
	RawExtinf string
	Line      int

	Invalid  bool
	Problem  string
	Modified bool
}

// Identifier returns a human-readable handle for the entry.
func (e Entry) Identifier() string {
	if e.Name != "" {
		return e.Name
	}

	if e.URL != "" {
		return e.URL
	}

	return fmt.Sprintf("line %d", e.Line)
}

// Clone returns a deep copy of the entry.
func (e Entry) Clone() Entry {
	e.Attributes = append(Attributes(nil), e.Attributes...)
	e.Directives = append([]string(nil), e.Directives...)

	return e
}

// Playlist is a parsed M3U document.
type Playlist struct {
	Header   string
	Preamble []string
	Entries  []Entry
}

// Parse reads M3U playlist data. Malformed blocks are returned as entries
// flagged Invalid; only read failures produce an error.
func Parse(data []byte) (*Playlist, error) {
	playlist := &Playlist{
		Entries: make([]Entry, 0, 100),
	}

	scanner := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		current     *Entry
		lineNum     int
		seenContent bool
	)

	closeWithoutURL := func() {
		current.Invalid = true
		current.Problem = ProblemMissingURL
		playlist.Entries = append(playlist.Entries, *current)
		current = nil
	}

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		if hasPrefixFold(line, headerPrefix) {
			if !seenContent {
				playlist.Header = line
			}

			seenContent = true

			continue
		}

		seenContent = true

		switch {
		case hasPrefixFold(line, extinfPrefix):
			if current != nil {
				closeWithoutURL()
			}

			entry := parseExtinf(line, lineNum)
			current = &entry
		case isEntryDirective(line):
			if current != nil {
				current.Directives = append(current.Directives, line)
			} else if len(playlist.Entries) == 0 {
				playlist.Preamble = append(playlist.Preamble, line)
			}
		case hasPrefixFold(line, "#EXT"):
			if current == nil && len(playlist.Entries) == 0 {
				playlist.Preamble = append(playlist.Preamble, line)
			}
		case strings.HasPrefix(line, "#"):
			continue
		default:
			if current != nil {
				current.URL = line
				playlist.Entries = append(playlist.Entries, *current)
				current = nil

				continue
			}

			playlist.Entries = append(playlist.Entries, Entry{
				URL:      line,
				Duration: UnknownDuration,
				Line:     lineNum,
				Invalid:  true,
				Problem:  ProblemMissingExtinf,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning M3U data: %w", err)
	}

	if current != nil {
		closeWithoutURL()
	}

	return playlist, nil
}

func parseExtinf(line string, lineNum int) Entry {
	entry := Entry{
		RawExtinf: line,
		Line:      lineNum,
	}

	meta, name := splitTitle(line[len(extinfPrefix):])
	entry.Name = strings.TrimSpace(name)
	meta = strings.TrimSpace(meta)

	duration, rest := meta, ""
	if i := strings.IndexAny(meta, " \t"); i >= 0 {
		duration, rest = meta[:i], meta[i+1:]
	}

	if strings.Contains(duration, "=") {
		duration, rest = "", meta
	}

	if durationRegex.MatchString(duration) {
		entry.Duration = duration
	} else {
		entry.Duration = UnknownDuration
		entry.Invalid = true
		entry.Problem = ProblemBadDuration
	}

	for _, match := range attrRegex.FindAllStringSubmatch(rest, -1) {
		value := match[2]
		if value == "" {
			value = match[3]
		}

		entry.Attributes = append(entry.Attributes, Attribute{Key: match[1], Value: value})
	}

	return entry
}

// splitTitle splits EXTINF content at the first comma outside double quotes.
func splitTitle(s string) (string, string) {
	inQuotes := false

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return s[:i], s[i+1:]
			}
		}
	}

	return s, ""
}

func isEntryDirective(line string) bool {
	for _, prefix := range entryDirectives {
		if hasPrefixFold(line, prefix) {
			return true
		}
	}

	return false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
