// Package integrity computes content hashes of installed files.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/muxos/muxos-helper/pkg/model"
)

// HashFile returns the SHA-256 of the file's content.
func HashFile(fs afero.Fs, path string) (model.HashValue, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return HashReader(f)
}

// HashReader returns the SHA-256 of everything read from r.
func HashReader(r io.Reader) (model.HashValue, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return model.HashValue(hex.EncodeToString(h.Sum(nil))), nil
}
