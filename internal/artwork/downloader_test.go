// ABOUTME: Tests for the artwork fetcher
// ABOUTME: HTTP fetch, in-memory caching, format detection, and error handling
package artwork

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/roomstream/roomstream-go/pkg/wire"
)

func TestFetchSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake image data"))
	}))
	defer server.Close()

	f := NewFetcher()
	format, data, err := f.Fetch(server.URL)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if format != wire.ArtFormatPNG {
		t.Errorf("expected PNG format, got %d", format)
	}
	if string(data) != "fake image data" {
		t.Errorf("expected 'fake image data', got %q", data)
	}
	if f.CurrentURL() != server.URL {
		t.Errorf("expected CurrentURL %s, got %s", server.URL, f.CurrentURL())
	}
}

func TestFetchCaching(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("fake image data"))
	}))
	defer server.Close()

	f := NewFetcher()
	if _, _, err := f.Fetch(server.URL); err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected 1 request, got %d", requestCount)
	}

	if _, _, err := f.Fetch(server.URL); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("expected cached fetch to not hit server, got %d requests", requestCount)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher()
	if _, _, err := f.Fetch(server.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := NewFetcher()
	format, data, err := f.Fetch("")
	if err != nil {
		t.Errorf("expected no error for empty URL, got: %v", err)
	}
	if data != nil || format != 0 {
		t.Errorf("expected zero value for empty URL, got format=%d data=%v", format, data)
	}
}

func TestFetchInvalidURL(t *testing.T) {
	f := NewFetcher()
	if _, _, err := f.Fetch("not-a-valid-url"); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		expected    byte
	}{
		{"image/jpeg", "http://example.com/image", wire.ArtFormatJPEG},
		{"image/png", "http://example.com/image", wire.ArtFormatPNG},
		{"", "http://example.com/image.png", wire.ArtFormatPNG},
		{"", "http://example.com/image.png?size=large", wire.ArtFormatPNG},
		{"", "http://example.com/image.jpg", wire.ArtFormatJPEG},
		{"", "http://example.com/image", wire.ArtFormatJPEG},
	}
	for _, tt := range tests {
		if got := formatOf(tt.contentType, tt.url); got != tt.expected {
			t.Errorf("formatOf(%q, %q) = %d, expected %d", tt.contentType, tt.url, got, tt.expected)
		}
	}
}

func TestFetchMultipleURLs(t *testing.T) {
	server1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("image 1"))
	}))
	defer server1.Close()

	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("image 2"))
	}))
	defer server2.Close()

	f := NewFetcher()
	_, data1, err := f.Fetch(server1.URL)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	_, data2, err := f.Fetch(server2.URL)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	if string(data1) == string(data2) {
		t.Error("expected different data for different URLs")
	}
	if f.CurrentURL() != server2.URL {
		t.Errorf("expected CurrentURL to be the most recent fetch")
	}
}

func TestFetchInto(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("jpeg bytes"))
	}))
	defer server.Close()

	f := NewFetcher()
	var gotFormat byte
	var gotData []byte
	err := f.FetchInto(server.URL, func(format byte, data []byte) {
		gotFormat = format
		gotData = data
	})
	if err != nil {
		t.Fatalf("FetchInto failed: %v", err)
	}
	if gotFormat != wire.ArtFormatJPEG || string(gotData) != "jpeg bytes" {
		t.Errorf("unexpected callback args: format=%d data=%q", gotFormat, gotData)
	}
}

func TestFetchIntoEmptyURL(t *testing.T) {
	f := NewFetcher()
	called := false
	err := f.FetchInto("", func(byte, []byte) { called = true })
	if err != nil {
		t.Fatalf("expected no error for empty URL, got: %v", err)
	}
	if called {
		t.Error("expected callback not to run for empty URL")
	}
}
