package m3u

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func attr(t *testing.T, entry Entry, key string) string {
	t.Helper()

	value, _ := entry.Attributes.Get(key)

	return value
}

func TestParse_ValidPlaylist(t *testing.T) {
	input := `#EXTM3U
#EXTINF:-1 tvg-id="espn.us" tvg-name="ESPN" tvg-logo="http://logo.example.com/espn.png" group-title="US Sports",ESPN
http://stream.example.com/12345

#EXTINF:-1 tvg-id="hbo.us" tvg-name="HBO" tvg-logo="http://logo.example.com/hbo.png" group-title="US Movies",HBO
http://stream.example.com/12346
`
	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Equal(t, "#EXTM3U", playlist.Header)
	require.Len(t, playlist.Entries, 2)

	espn := playlist.Entries[0]
	require.Equal(t, "ESPN", espn.Name)
	require.Equal(t, "http://stream.example.com/12345", espn.URL)
	require.Equal(t, "-1", espn.Duration)
	require.Equal(t, "espn.us", attr(t, espn, "tvg-id"))
	require.Equal(t, "ESPN", attr(t, espn, "tvg-name"))
	require.Equal(t, "http://logo.example.com/espn.png", attr(t, espn, "tvg-logo"))
	require.Equal(t, "US Sports", attr(t, espn, "group-title"))
	require.Equal(t, 2, espn.Line)
	require.False(t, espn.Invalid)

	hbo := playlist.Entries[1]
	require.Equal(t, "HBO", hbo.Name)
	require.Equal(t, "http://stream.example.com/12346", hbo.URL)
	require.Equal(t, "hbo.us", attr(t, hbo, "tvg-id"))
	require.Equal(t, "US Movies", attr(t, hbo, "group-title"))
	require.Equal(t, 5, hbo.Line)
}

func TestParse_Attributes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Attributes
		title    string
	}{
		{
			name:  "order preserved",
			input: `#EXTINF:-1 group-title="News" tvg-id="cnn.us",CNN`,
			expected: Attributes{
				{Key: "group-title", Value: "News"},
				{Key: "tvg-id", Value: "cnn.us"},
			},
			title: "CNN",
		},
		{
			name:  "unquoted value",
			input: `#EXTINF:-1 tvg-chno=42 tvg-id="bbc.uk",BBC`,
			expected: Attributes{
				{Key: "tvg-chno", Value: "42"},
				{Key: "tvg-id", Value: "bbc.uk"},
			},
			title: "BBC",
		},
		{
			name:  "comma inside quoted value",
			input: `#EXTINF:-1 group-title="News, World",World News`,
			expected: Attributes{
				{Key: "group-title", Value: "News, World"},
			},
			title: "World News",
		},
		{
			name:     "no attributes",
			input:    `#EXTINF:-1,Local Channel`,
			expected: nil,
			title:    "Local Channel",
		},
		{
			name:  "comma in title",
			input: `#EXTINF:-1 tvg-id="x",Movies, Classics`,
			expected: Attributes{
				{Key: "tvg-id", Value: "x"},
			},
			title: "Movies, Classics",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			playlist, err := Parse([]byte(tt.input + "\nhttp://stream.example.com/1"))
			require.NoError(t, err)
			require.Len(t, playlist.Entries, 1)
			require.Equal(t, tt.expected, playlist.Entries[0].Attributes)
			require.Equal(t, tt.title, playlist.Entries[0].Name)
		})
	}
}

func TestParse_Duration(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		duration string
		invalid  bool
	}{
		{"live", `#EXTINF:-1,Live`, "-1", false},
		{"seconds", `#EXTINF:180,Track`, "180", false},
		{"fractional", `#EXTINF:10.5 tvg-id="a",Clip`, "10.5", false},
		{"garbage", `#EXTINF:abc,Broken`, UnknownDuration, true},
		{"missing", `#EXTINF: tvg-id="a",Broken`, UnknownDuration, true},
		{"infinity", `#EXTINF:Inf,Broken`, UnknownDuration, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			playlist, err := Parse([]byte(tt.line + "\nhttp://stream.example.com/1"))
			require.NoError(t, err)
			require.Len(t, playlist.Entries, 1)

			entry := playlist.Entries[0]
			require.Equal(t, tt.duration, entry.Duration)
			require.Equal(t, tt.invalid, entry.Invalid)

			if tt.invalid {
				require.Equal(t, ProblemBadDuration, entry.Problem)
				require.Equal(t, "http://stream.example.com/1", entry.URL)
			}
		})
	}
}

func TestParse_MissingDurationKeepsAttributes(t *testing.T) {
	playlist, err := Parse([]byte("#EXTINF:tvg-id=\"a\",Name\nhttp://stream.example.com/1"))
	require.NoError(t, err)
	require.Len(t, playlist.Entries, 1)
	require.Equal(t, "a", attr(t, playlist.Entries[0], "tvg-id"))
	require.True(t, playlist.Entries[0].Invalid)
}

func TestParse_EmptyLines(t *testing.T) {
	input := `#EXTM3U

#EXTINF:-1 tvg-name="Channel1",Channel 1

http://stream.example.com/1


#EXTINF:-1 tvg-name="Channel2",Channel 2

http://stream.example.com/2

`
	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, playlist.Entries, 2)
	require.Equal(t, "Channel 1", playlist.Entries[0].Name)
	require.Equal(t, "Channel 2", playlist.Entries[1].Name)
}

func TestParse_NoHeader(t *testing.T) {
	input := `#EXTINF:-1 tvg-name="Channel1",Channel 1
http://stream.example.com/1`

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Empty(t, playlist.Header)
	require.Len(t, playlist.Entries, 1)
	require.Equal(t, "Channel 1", playlist.Entries[0].Name)
}

func TestParse_HeaderVerbatim(t *testing.T) {
	input := "\xEF\xBB\xBF#EXTM3U url-tvg=\"http://epg.example.com/guide.xml\"\n#EXTINF:-1,A\nhttp://stream.example.com/a\n"

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Equal(t, `#EXTM3U url-tvg="http://epg.example.com/guide.xml"`, playlist.Header)
}

func TestParse_IncompleteChannelAtEOF(t *testing.T) {
	input := `#EXTM3U
#EXTINF:-1 tvg-name="Channel1",Channel 1
http://stream.example.com/1
#EXTINF:-1 tvg-name="Channel2",Channel 2`

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, playlist.Entries, 2)
	require.False(t, playlist.Entries[0].Invalid)
	require.True(t, playlist.Entries[1].Invalid)
	require.Equal(t, ProblemMissingURL, playlist.Entries[1].Problem)
	require.Empty(t, playlist.Entries[1].URL)
}

func TestParse_OrphanedChannel(t *testing.T) {
	input := `#EXTM3U
#EXTINF:-1 tvg-name="Channel1",Channel 1
#EXTINF:-1 tvg-name="Channel2",Channel 2
http://stream.example.com/2`

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, playlist.Entries, 2)

	require.Equal(t, "Channel 1", playlist.Entries[0].Name)
	require.True(t, playlist.Entries[0].Invalid)
	require.Equal(t, ProblemMissingURL, playlist.Entries[0].Problem)

	require.Equal(t, "Channel 2", playlist.Entries[1].Name)
	require.Equal(t, "http://stream.example.com/2", playlist.Entries[1].URL)
	require.False(t, playlist.Entries[1].Invalid)
}

func TestParse_URLWithoutExtinf(t *testing.T) {
	input := `#EXTM3U
http://stream.example.com/live/news.m3u8`

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, playlist.Entries, 1)

	entry := playlist.Entries[0]
	require.True(t, entry.Invalid)
	require.Equal(t, ProblemMissingExtinf, entry.Problem)
	require.Equal(t, "http://stream.example.com/live/news.m3u8", entry.URL)
	require.Equal(t, UnknownDuration, entry.Duration)
	require.Equal(t, 2, entry.Line)
}

func TestParse_Directives(t *testing.T) {
	input := `#EXTM3U
#EXT-X-SESSION-DATA:DATA-ID="com.example.title",VALUE="Demo"
# just a comment
#EXTINF:-1,Channel 1
#EXTVLCOPT:http-user-agent=Mozilla/5.0
# another comment
#EXTGRP:Sports
http://stream.example.com/1
#EXT-X-DISCONTINUITY
#EXTINF:-1,Channel 2
http://stream.example.com/2`

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Equal(t, []string{`#EXT-X-SESSION-DATA:DATA-ID="com.example.title",VALUE="Demo"`}, playlist.Preamble)
	require.Len(t, playlist.Entries, 2)
	require.Equal(t, []string{"#EXTVLCOPT:http-user-agent=Mozilla/5.0", "#EXTGRP:Sports"}, playlist.Entries[0].Directives)
	require.Empty(t, playlist.Entries[1].Directives)
}

func TestParse_SpecialCharacters(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name: "unicode characters",
			input: `#EXTM3U
#EXTINF:-1 tvg-name="Tele Zurich",Télé Zürich
http://stream.example.com/1`,
			expected: "Télé Zürich",
		},
		{
			name: "ampersand in name",
			input: `#EXTM3U
#EXTINF:-1 tvg-name="A&E",A&E Network
http://stream.example.com/1`,
			expected: "A&E Network",
		},
		{
			name: "parentheses in name",
			input: `#EXTM3U
#EXTINF:-1 tvg-name="ESPN (HD)",ESPN (HD)
http://stream.example.com/1`,
			expected: "ESPN (HD)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			playlist, err := Parse([]byte(tt.input))
			require.NoError(t, err)
			require.Len(t, playlist.Entries, 1)
			require.Equal(t, tt.expected, playlist.Entries[0].Name)
		})
	}
}

func TestParse_OriginalLine(t *testing.T) {
	input := `#EXTM3U
#EXTINF:-1 tvg-id="test" tvg-name="Test" group-title="Test Group",Test Channel
http://stream.example.com/1`

	playlist, err := Parse([]byte(input))
	require.NoError(t, err)
	require.Len(t, playlist.Entries, 1)
	require.Equal(t, `#EXTINF:-1 tvg-id="test" tvg-name="Test" group-title="Test Group",Test Channel`, playlist.Entries[0].RawExtinf)
}

func TestEntry_Identifier(t *testing.T) {
	require.Equal(t, "ESPN", Entry{Name: "ESPN", URL: "http://a/b"}.Identifier())
	require.Equal(t, "http://a/b", Entry{URL: "http://a/b"}.Identifier())
	require.Equal(t, "line 7", Entry{Line: 7}.Identifier())
}

func TestEntry_Clone(t *testing.T) {
	original := Entry{
		Attributes: Attributes{{Key: "tvg-id", Value: "a"}},
		Directives: []string{"#EXTGRP:News"},
	}

	clone := original.Clone()
	clone.Attributes[0].Value = "b"
	clone.Directives[0] = "#EXTGRP:Sports"

	require.Equal(t, "a", original.Attributes[0].Value)
	require.Equal(t, "#EXTGRP:News", original.Directives[0])
}
