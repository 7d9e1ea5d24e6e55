// Package releasetest builds release archives and serves them over HTTP for tests.
package releasetest

import (
	"archive/tar"
	"bytes"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

// File is one regular file inside an archive.
type File struct {
	Body string
	Mode int64
}

// TarGz builds a gzip-compressed tarball with every file placed under top,
// the way source archives are laid out. Parent directories get their own
// entries.
func TarGz(t testing.TB, top string, files map[string]File) []byte {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	mtime := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	write := func(hdr *tar.Header, body []byte) {
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", hdr.Name, err)
		}
		if len(body) > 0 {
			if _, err := tw.Write(body); err != nil {
				t.Fatalf("write body %s: %v", hdr.Name, err)
			}
		}
	}

	write(&tar.Header{Typeflag: tar.TypeXGlobalHeader, Name: "pax_global_header", PAXRecords: map[string]string{"comment": "abc123"}}, nil)
	if top != "" {
		write(&tar.Header{Typeflag: tar.TypeDir, Name: top + "/", Mode: 0755, ModTime: mtime}, nil)
	}
	seen := map[string]bool{}
	for _, name := range names {
		full := path.Join(top, name)
		for dir := path.Dir(full); dir != "." && dir != top && !seen[dir]; dir = path.Dir(dir) {
			seen[dir] = true
		}
		f := files[name]
		mode := f.Mode
		if mode == 0 {
			mode = 0644
		}
		write(&tar.Header{Typeflag: tar.TypeReg, Name: full, Mode: mode, Size: int64(len(f.Body)), ModTime: mtime}, []byte(f.Body))
	}
	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		write(&tar.Header{Typeflag: tar.TypeDir, Name: strings.TrimSuffix(dir, "/") + "/", Mode: 0755, ModTime: mtime}, nil)
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return buf.Bytes()
}

// Server serves archives by request path and records User-Agent headers.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	archives   map[string][]byte
	userAgents []string
}

// NewServer starts a server; it is closed when the test ends. Paths with
// no archive answer 404.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{archives: map[string][]byte{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Add serves body at "/<repo>/tar.gz/<ref>".
func (s *Server) Add(repo, ref string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives["/"+repo+"/tar.gz/"+ref] = body
}

// URLTemplate returns an archive URL template pointing at the server.
func (s *Server) URLTemplate() string {
	return s.URL + "/{{repo}}/tar.gz/{{ref}}"
}

// UserAgents returns the User-Agent of every request seen so far.
func (s *Server) UserAgents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.userAgents...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.userAgents = append(s.userAgents, r.UserAgent())
	body, ok := s.archives[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/x-gzip")
	w.Write(body)
}
