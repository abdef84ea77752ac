// Package testutils provides shared test infrastructure.
package testutils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// TestFile defines a test file with name and data.
type TestFile struct {
	Name string
	Data []byte
}

// GenerateTestData generates deterministic test data of the given size.
func GenerateTestData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 256)
	}
	return data
}

// ArchiveName returns the dump file name of part n for wiki.
func ArchiveName(wiki string, n int) string {
	return fmt.Sprintf("%s-latest-pages-articles%d.xml-p%dp%d.bz2", wiki, n, n*1000+1, (n+1)*1000)
}

// DumpServer serves a Wikimedia style directory listing and its files.
type DumpServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests map[string]int
}

// ListingURL returns the URL of the listing page.
func (s *DumpServer) ListingURL() string {
	return s.URL + "/enwiki/latest/"
}

// Requests returns how often the file name was downloaded.
func (s *DumpServer) Requests(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[name]
}

// TotalRequests returns the number of file downloads, excluding the
// listing page.
func (s *DumpServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.requests {
		n += c
	}
	return n
}

// StartDumpServer starts a server whose listing page links every file in
// files, in the order given, plus a few unrelated entries.
func StartDumpServer(t *testing.T, files []TestFile) *DumpServer {
	t.Helper()

	fileMap := make(map[string][]byte)
	var page strings.Builder
	page.WriteString("<html><head><title>Index of /enwiki/latest/</title></head><body>\n")
	page.WriteString("<h1>Index of /enwiki/latest/</h1><hr><pre><a href=\"../\">../</a>\n")
	page.WriteString("<a href=\"enwiki-latest-abstract.xml.gz\">enwiki-latest-abstract.xml.gz</a>\n")
	for _, f := range files {
		fileMap[f.Name] = f.Data
		fmt.Fprintf(&page, "<a href=\"%s\">%s</a>  01-Oct-2026 08:00  %d\n", f.Name, f.Name, len(f.Data))
	}
	page.WriteString("</pre><hr></body></html>\n")
	listing := page.String()

	s := &DumpServer{requests: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/enwiki/latest/" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(listing))
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/enwiki/latest/")
		data, ok := fileMap[name]
		if !ok {
			http.NotFound(w, r)
			return
		}

		s.mu.Lock()
		s.requests[name]++
		s.mu.Unlock()

		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}
