package m3u

import (
	"strings"
)

// ExtinfLine returns the #EXTINF line to write for the entry. Unmodified
// entries keep the line they were read with.
func (e Entry) ExtinfLine() string {
	if !e.Modified && e.RawExtinf != "" {
		return e.RawExtinf
	}

	return e.BuildExtinf()
}

// BuildExtinf reconstructs an #EXTINF line from duration, attributes and name.
func (e Entry) BuildExtinf() string {
	var sb strings.Builder

	duration := e.Duration
	if duration == "" {
		duration = UnknownDuration
	}

	sb.WriteString(extinfPrefix)
	sb.WriteString(duration)

	for _, attr := range e.Attributes {
		sb.WriteString(" ")
		sb.WriteString(attr.Key)
		sb.WriteString(`="`)
		sb.WriteString(attr.Value)
		sb.WriteString(`"`)
	}

	sb.WriteString(",")
	sb.WriteString(e.Name)

	return sb.String()
}

// Encode serializes a playlist: header, preamble directives, then each
// entry's #EXTINF line, its directives and its URL.
func Encode(playlist *Playlist) []byte {
	var sb strings.Builder

	if playlist.Header != "" {
		sb.WriteString(playlist.Header + "\n")
	}

	for _, line := range playlist.Preamble {
		sb.WriteString(line + "\n")
	}

	for i, entry := range playlist.Entries {
		sb.WriteString(entry.ExtinfLine() + "\n")

		for _, directive := range entry.Directives {
			sb.WriteString(directive + "\n")
		}

		sb.WriteString(entry.URL + "\n")

		if i < len(playlist.Entries)-1 {
			sb.WriteString("\n")
		}
	}

	return []byte(sb.String())
}
