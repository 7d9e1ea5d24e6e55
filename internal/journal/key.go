package journal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// KeySize is the length of the journal HMAC key in bytes.
const KeySize = 32

// ErrKeyMissing is returned when verification finds a log but no key.
var ErrKeyMissing = errors.New("journal key missing")

func readKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrKeyMissing
		}
		return nil, fmt.Errorf("read journal key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("journal key %s: expected %d bytes, found %d", path, KeySize, len(key))
	}
	return key, nil
}

// loadOrCreateKey returns the key at path, generating and persisting a
// fresh random key (owner-only) the first time. The key is written to a
// temp file and linked into place, so a reader never sees a partial key.
func loadOrCreateKey(path string) ([]byte, error) {
	key, err := readKey(path)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrKeyMissing) {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}

	key = make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate journal key: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".muxos-tmp-key-")
	if err != nil {
		return nil, fmt.Errorf("create journal key: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("chmod journal key: %w", err)
	}
	if _, err := tmp.Write(key); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write journal key: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("sync journal key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close journal key: %w", err)
	}

	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			// Another helper created it first.
			return readKey(path)
		}
		return nil, fmt.Errorf("install journal key: %w", err)
	}
	return key, nil
}
