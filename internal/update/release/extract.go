package release

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"

	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/pathutil"
)

// DefaultMaxBytes caps the unpacked size of a release archive.
const DefaultMaxBytes int64 = 512 << 20

// Extract unpacks a .tar.gz stream into dest on fs and returns the path of
// the archive's top-level directory. Only directories and regular files are
// written; entries that would land outside dest fail the extraction, and so
// does unpacking more than maxBytes of file content (DefaultMaxBytes if
// maxBytes <= 0).
func Extract(fs afero.Fs, r io.Reader, dest string, maxBytes int64) (string, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return "", errclass.ErrArchiveInvalid.WithMessagef("invalid tarball: %v", err)
	}
	defer zr.Close()

	if err := fs.MkdirAll(dest, 0755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	var top string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", errclass.ErrArchiveInvalid.WithMessagef("invalid tarball: %v", err)
		}
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		if top == "" {
			top = topComponent(hdr.Name)
		}

		target, err := pathutil.JoinUnder(dest, hdr.Name)
		if err != nil || strings.HasPrefix(hdr.Name, "/") {
			return "", errclass.ErrArchiveInvalid.WithMessagef("unsafe archive entry: %q", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(target, 0755); err != nil {
				return "", fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			n, err := writeEntry(fs, target, hdr, tr, maxBytes)
			if err != nil {
				return "", err
			}
			maxBytes -= n
		}
	}

	if top == "" {
		return "", errclass.ErrArchiveInvalid.WithMessage("Invalid tarball")
	}
	root := filepath.Join(dest, top)
	info, err := fs.Stat(root)
	if err != nil || !info.IsDir() {
		return "", errclass.ErrArchiveInvalid.WithMessagef("archive has no top-level directory %q", top)
	}
	return root, nil
}

func topComponent(name string) string {
	name = strings.TrimPrefix(name, "./")
	first, _, _ := strings.Cut(name, "/")
	if first == "." || first == ".." {
		return ""
	}
	return first
}

// writeEntry writes one file of at most remaining bytes and returns its size.
func writeEntry(fs afero.Fs, target string, hdr *tar.Header, r io.Reader, remaining int64) (int64, error) {
	if hdr.Size > remaining {
		return 0, errTooLarge(hdr.Name)
	}
	if err := fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	mode := hdr.FileInfo().Mode().Perm()
	f, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", target, err)
	}
	n, err := io.Copy(f, io.LimitReader(r, remaining+1))
	if err != nil {
		f.Close()
		return 0, errclass.ErrArchiveInvalid.WithMessagef("extract %s: %v", hdr.Name, err)
	}
	if n > remaining {
		f.Close()
		return 0, errTooLarge(hdr.Name)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close %s: %w", target, err)
	}
	if err := fs.Chmod(target, mode); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", target, err)
	}
	return n, fs.Chtimes(target, hdr.ModTime, hdr.ModTime)
}

func errTooLarge(name string) error {
	return errclass.ErrArchiveInvalid.WithMessagef("archive too large: limit reached at %s", name)
}
