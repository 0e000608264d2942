package clean

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/savid/m3uclean/internal/m3u"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected bool
	}{
		{"identical", "http://a.example.com/live", "http://a.example.com/live", true},
		{"trailing slash", "http://a.example.com/live/", "http://a.example.com/live", true},
		{"query ignored", "http://a.example.com/live?token=1", "http://a.example.com/live?token=2", true},
		{"fragment ignored", "http://a.example.com/live#x", "http://a.example.com/live", true},
		{"host case", "http://A.Example.COM/live", "http://a.example.com/live", true},
		{"scheme case", "HTTP://a.example.com/live", "http://a.example.com/live", true},
		{"path case matters", "http://a.example.com/Live", "http://a.example.com/live", false},
		{"scheme matters", "https://a.example.com/live", "http://a.example.com/live", false},
		{"port matters", "http://a.example.com:8080/live", "http://a.example.com/live", false},
		{"different path", "http://a.example.com/one", "http://a.example.com/two", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, NormalizeURL(tt.a) == NormalizeURL(tt.b))
		})
	}
}

func TestDeduplicate(t *testing.T) {
	entries := []m3u.Entry{
		{Name: "ESPN", URL: "http://stream.example.com/espn"},
		{Name: "HBO", URL: "http://stream.example.com/hbo"},
		{Name: "ESPN HD", URL: "http://stream.example.com/espn/?token=x"},
		{Name: "CNN", URL: "http://stream.example.com/cnn"},
		{Name: "HBO", URL: "http://STREAM.example.com/hbo"},
	}

	kept, duplicates := Deduplicate(entries)

	require.Len(t, kept, 3)
	require.Equal(t, "ESPN", kept[0].Name)
	require.Equal(t, "HBO", kept[1].Name)
	require.Equal(t, "CNN", kept[2].Name)

	require.Len(t, duplicates, 2)
	require.Equal(t, "ESPN HD", duplicates[0].Entry.Name)
	require.Equal(t, "duplicate-of=http://stream.example.com/espn", duplicates[0].Reason())
	require.Equal(t, "http://stream.example.com/hbo", duplicates[1].Of)
}

func TestDeduplicate_Empty(t *testing.T) {
	kept, duplicates := Deduplicate(nil)
	require.Empty(t, kept)
	require.Empty(t, duplicates)
}

func TestDeduplicate_FirstSeenWins(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		entries := make([]m3u.Entry, 0, 40)
		for i := 0; i < 40; i++ {
			u := fmt.Sprintf("http://host%d.example.com/ch%d", rng.Intn(3), rng.Intn(5))
			if rng.Intn(2) == 0 {
				u += "/"
			}

			if rng.Intn(3) == 0 {
				u += fmt.Sprintf("?t=%d", rng.Intn(100))
			}

			entries = append(entries, m3u.Entry{Name: fmt.Sprintf("e%d", i), URL: u})
		}

		kept, duplicates := Deduplicate(entries)
		require.Equal(t, len(entries), len(kept)+len(duplicates))

		firstIndex := make(map[string]int)
		for i, e := range entries {
			if _, ok := firstIndex[NormalizeURL(e.URL)]; !ok {
				firstIndex[NormalizeURL(e.URL)] = i
			}
		}

		seen := make(map[string]bool)
		lastIndex := -1

		for _, e := range kept {
			key := NormalizeURL(e.URL)
			require.False(t, seen[key], "duplicate key %s survived", key)
			seen[key] = true

			var idx int

			_, err := fmt.Sscanf(e.Name, "e%d", &idx)
			require.NoError(t, err)
			require.Equal(t, firstIndex[key], idx)
			require.Greater(t, idx, lastIndex)

			lastIndex = idx
		}
	}
}
