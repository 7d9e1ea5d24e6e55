// Package backup preserves system files before they are overwritten.
//
// Backups live under <root>/<key>/<original path without leading slash>,
// where key is a feature name or an update identifier. A backup is taken
// once per path per key and is never pruned or overwritten, so the first
// copy always holds the content from before the first mutation.
package backup

import (
	"fmt"
	"os"

	"github.com/spf13/afero"

	"github.com/muxos/muxos-helper/pkg/fsutil"
	"github.com/muxos/muxos-helper/pkg/pathutil"
)

// Store copies originals into, and back out of, a backup root.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore creates a store rooted at root on fs.
func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

// Root returns the directory holding the backups for key.
func (s *Store) Root(key string) (string, error) {
	if err := pathutil.ValidateName(key); err != nil {
		return "", err
	}
	return pathutil.JoinUnder(s.root, key)
}

// Path returns where the backup of path is kept under key.
func (s *Store) Path(key, path string) (string, error) {
	root, err := s.Root(key)
	if err != nil {
		return "", err
	}
	return pathutil.JoinUnder(root, path)
}

// HasBackup reports whether path has been backed up under key.
func (s *Store) HasBackup(key, path string) (bool, error) {
	dst, err := s.Path(key, path)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, dst)
}

// Backup copies path into the store under key. It returns false without
// error when path does not exist or a backup already exists.
func (s *Store) Backup(key, path string) (bool, error) {
	dst, err := s.Path(key, path)
	if err != nil {
		return false, err
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return false, fmt.Errorf("backup %s: is a directory", path)
	}

	exists, err := afero.Exists(s.fs, dst)
	if err != nil {
		return false, fmt.Errorf("check backup %s: %w", dst, err)
	}
	if exists {
		return false, nil
	}

	if err := fsutil.CopyFile(s.fs, path, dst); err != nil {
		return false, fmt.Errorf("backup %s: %w", path, err)
	}
	return true, nil
}

// Restore copies the backup of path under key back over path. It returns
// false without error when no backup exists.
func (s *Store) Restore(key, path string) (bool, error) {
	src, err := s.Path(key, path)
	if err != nil {
		return false, err
	}

	exists, err := afero.Exists(s.fs, src)
	if err != nil {
		return false, fmt.Errorf("check backup %s: %w", src, err)
	}
	if !exists {
		return false, nil
	}

	if err := fsutil.CopyFile(s.fs, src, path); err != nil {
		return false, fmt.Errorf("restore %s: %w", path, err)
	}
	return true, nil
}
