package release_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muxos/muxos-helper/internal/update/release"
	"github.com/muxos/muxos-helper/internal/update/release/releasetest"
	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/errclass"
)

func newFetcher(t *testing.T, tmpl string, timeout time.Duration) *release.Fetcher {
	t.Helper()
	cfg := config.Default().Update
	cfg.ArchiveURLTemplate = tmpl
	if timeout > 0 {
		cfg.DownloadTimeout = timeout
	}
	f, err := release.NewFetcher(cfg, nil)
	require.NoError(t, err)
	return f
}

func TestFetcher_DefaultURL(t *testing.T) {
	f := newFetcher(t, config.Default().Update.ArchiveURLTemplate, 0)
	assert.Equal(t, "https://codeload.github.com/MushhDev/MuxOS/tar.gz/v1.2.3", f.URL("MushhDev/MuxOS", "v1.2.3"))
}

func TestFetcher_FetchSendsUserAgent(t *testing.T) {
	srv := releasetest.NewServer(t)
	srv.Add("MushhDev/MuxOS", "v1.2.3", []byte("payload"))
	f := newFetcher(t, srv.URLTemplate(), 0)

	body, err := f.Fetch(context.Background(), "MushhDev/MuxOS", "v1.2.3")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, []string{"MuxOS-Updater"}, srv.UserAgents())
}

func TestFetcher_NonSuccessStatusIsTransportError(t *testing.T) {
	srv := releasetest.NewServer(t)
	f := newFetcher(t, srv.URLTemplate(), 0)

	_, err := f.Fetch(context.Background(), "MushhDev/MuxOS", "v9.9.9")
	require.Error(t, err)
	assert.ErrorIs(t, err, errclass.ErrTransport)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestFetcher_TimeoutIsTransportError(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	f := newFetcher(t, srv.URL+"/{{repo}}/{{ref}}", 50*time.Millisecond)
	_, err := f.Fetch(context.Background(), "MushhDev/MuxOS", "v1.0.0")
	assert.ErrorIs(t, err, errclass.ErrTransport)
}

func TestExtract_ReturnsTopLevelDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	archive := releasetest.TarGz(t, "MuxOS-1.2.3", map[string]releasetest.File{
		"apps/welcome/muxos-welcome.py": {Body: "#!/usr/bin/env python3\n", Mode: 0755},
		"config/muxos.conf":             {Body: "theme=dark\n"},
	})

	root, err := release.Extract(fs, bytes.NewReader(archive), "/tmp/scratch", 0)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scratch/MuxOS-1.2.3", root)

	data, err := afero.ReadFile(fs, "/tmp/scratch/MuxOS-1.2.3/config/muxos.conf")
	require.NoError(t, err)
	assert.Equal(t, "theme=dark\n", string(data))

	info, err := fs.Stat("/tmp/scratch/MuxOS-1.2.3/apps/welcome/muxos-welcome.py")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	archive := releasetest.TarGz(t, "MuxOS-1.2.3", map[string]releasetest.File{
		"../../etc/passwd": {Body: "root::0:0::/root:/bin/sh\n"},
	})

	_, err := release.Extract(fs, bytes.NewReader(archive), "/tmp/scratch", 0)
	assert.ErrorIs(t, err, errclass.ErrArchiveInvalid)

	exists, _ := afero.Exists(fs, "/tmp/etc/passwd")
	assert.False(t, exists)
}

func TestExtract_NoTopLevelDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	archive := releasetest.TarGz(t, "", map[string]releasetest.File{
		"README": {Body: "flat archive"},
	})

	_, err := release.Extract(fs, bytes.NewReader(archive), "/tmp/scratch", 0)
	assert.ErrorIs(t, err, errclass.ErrArchiveInvalid)
}

func TestExtract_EmptyArchive(t *testing.T) {
	fs := afero.NewMemMapFs()
	archive := releasetest.TarGz(t, "", nil)

	_, err := release.Extract(fs, bytes.NewReader(archive), "/tmp/scratch", 0)
	assert.ErrorIs(t, err, errclass.ErrArchiveInvalid)
}

func TestExtract_NotGzip(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := release.Extract(fs, bytes.NewReader([]byte("<html>not found</html>")), "/tmp/scratch", 0)
	assert.ErrorIs(t, err, errclass.ErrArchiveInvalid)
}

func TestExtract_StopsAtSizeLimit(t *testing.T) {
	fs := afero.NewMemMapFs()
	archive := releasetest.TarGz(t, "MuxOS-1.2.3", map[string]releasetest.File{
		"a/one.bin": {Body: strings.Repeat("x", 600)},
		"b/two.bin": {Body: strings.Repeat("y", 600)},
	})

	_, err := release.Extract(fs, bytes.NewReader(archive), "/tmp/scratch", 1000)
	require.ErrorIs(t, err, errclass.ErrArchiveInvalid)
	assert.Contains(t, err.Error(), "archive too large")

	root, err := release.Extract(afero.NewMemMapFs(), bytes.NewReader(archive), "/tmp/scratch", 1200)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/scratch/MuxOS-1.2.3", root)
}
