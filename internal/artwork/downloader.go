// ABOUTME: URL-fed MediaArt producer: fetches album art and hands it to a session's SendArt
// ABOUTME: In-memory cache keyed by URL avoids refetching the same art for every track repeat
package artwork

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/roomstream/roomstream-go/pkg/wire"
)

// Fetcher downloads art from a URL and caches the decoded bytes and
// format tag in memory, ready for SessionEngine.SendArt.
type Fetcher struct {
	client *http.Client

	mu      sync.Mutex
	cache   map[string]cachedArt
	current string // URL of the most recently fetched art
}

type cachedArt struct {
	format byte
	data   []byte
}

// NewFetcher creates an artwork fetcher with the default HTTP client.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client: &http.Client{},
		cache:  make(map[string]cachedArt),
	}
}

// Fetch downloads art from url (or returns it from cache) and returns
// the format tag (wire.ArtFormatJPEG/PNG) and raw image bytes. An empty
// url is a no-op returning (0, nil, nil): "no art configured" is not
// an error.
func (f *Fetcher) Fetch(url string) (format byte, data []byte, err error) {
	if url == "" {
		return 0, nil, nil
	}

	f.mu.Lock()
	if cached, ok := f.cache[url]; ok {
		f.current = url
		f.mu.Unlock()
		log.Printf("artwork: cache hit for %s", url)
		return cached.format, cached.data, nil
	}
	f.mu.Unlock()

	log.Printf("artwork: downloading %s", url)
	resp, err := f.client.Get(url)
	if err != nil {
		return 0, nil, fmt.Errorf("artwork: download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, nil, fmt.Errorf("artwork: download failed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("artwork: failed to read body: %w", err)
	}

	format = formatOf(resp.Header.Get("Content-Type"), url)

	f.mu.Lock()
	f.cache[url] = cachedArt{format: format, data: body}
	f.current = url
	f.mu.Unlock()

	log.Printf("artwork: cached %d bytes from %s", len(body), url)
	return format, body, nil
}

// FetchInto downloads (or recalls) art and pushes it directly to a
// session's sticky art cache via SendArt, the wiring an AudioSource
// uses to keep MediaArt current as tracks change.
func (f *Fetcher) FetchInto(url string, send func(format byte, data []byte)) error {
	format, data, err := f.Fetch(url)
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	send(format, data)
	return nil
}

// CurrentURL returns the URL most recently fetched (cache hit or not).
func (f *Fetcher) CurrentURL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// formatOf derives the MediaArt format tag from a response's
// Content-Type, falling back to the URL's extension, and defaulting to
// JPEG when neither is conclusive.
func formatOf(contentType, url string) byte {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return wire.ArtFormatPNG
	case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
		return wire.ArtFormatJPEG
	}

	clean := strings.Split(url, "?")[0]
	switch {
	case strings.HasSuffix(strings.ToLower(clean), ".png"):
		return wire.ArtFormatPNG
	default:
		return wire.ArtFormatJPEG
	}
}
