// Package source loads playlist bytes from a local path or an http(s) URL,
// transparently decompressing gzip, bzip2 and xz input.
package source

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

const (
	defaultTimeout = 5 * time.Minute
	maxBodySize    = 500 * 1024 * 1024 // 500MB for very large playlists
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Loader reads playlist data.
type Loader struct {
	log        logrus.FieldLogger
	httpClient *http.Client
	userAgent  string
}

// NewLoader creates a new loader.
func NewLoader(log logrus.FieldLogger, userAgent string) *Loader {
	return &Loader{
		log: log.WithField("component", "source"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		userAgent: userAgent,
	}
}

// IsRemote reports whether location is fetched over HTTP.
func IsRemote(location string) bool {
	lower := strings.ToLower(location)

	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Load returns the decompressed contents of location.
func (l *Loader) Load(ctx context.Context, location string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	if IsRemote(location) {
		data, err = l.fetch(ctx, location)
	} else {
		data, err = readFile(location)
	}

	if err != nil {
		return nil, err
	}

	data, format, err := decompress(data)
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"location":    location,
		"size":        len(data),
		"compression": format,
	}).Debug("Loaded playlist")

	return data, nil
}

func readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	return data, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	// Accept gzip encoding
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var reader io.Reader = resp.Body

	// Handle gzip encoding
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gzReader, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", gzErr)
		}
		defer gzReader.Close()

		reader = gzReader
	}

	data, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// decompress detects the compression format from magic bytes and returns
// the decoded data and the format name ("none" for plain input).
func decompress(data []byte) ([]byte, string, error) {
	br := bytes.NewReader(data)

	var (
		reader io.Reader
		format string
	)

	switch {
	case bytes.HasPrefix(data, gzipMagic):
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()

		reader, format = gzr, "gzip"
	case bytes.HasPrefix(data, bzip2Magic):
		reader, format = bzip2.NewReader(br), "bzip2"
	case bytes.HasPrefix(data, xzMagic):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create xz reader: %w", err)
		}

		reader, format = xzr, "xz"
	default:
		return data, "none", nil
	}

	out, err := io.ReadAll(io.LimitReader(reader, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decompress %s input: %w", format, err)
	}

	return out, format, nil
}
