//go:build !unix

package journal

import "os"

// lockFile is a no-op where flock is unavailable; the in-process mutex
// still serializes appends.
func lockFile(_ *os.File) error   { return nil }
func unlockFile(_ *os.File) error { return nil }
