// Package journal implements the append-only, HMAC-chained audit log that
// records every privileged action.
//
// Each line is one JSON object. Its hash field is HMAC-SHA256 over the
// canonical encoding of the line without hash, and its prev_hash field is
// the hash of the line before it ("" for the first line).
package journal

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/pkg/jsonutil"
	"github.com/muxos/muxos-helper/pkg/model"
)

const maxLineSize = 1 << 20

// Journal appends records to a JSONL file and verifies its chain.
type Journal struct {
	path    string
	keyPath string
	logger  *zap.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// New creates a journal backed by logPath, keyed by the 32-byte key stored
// at keyPath (generated on first append).
func New(logPath, keyPath string, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		path:    logPath,
		keyPath: keyPath,
		logger:  logger,
		now:     time.Now,
	}
}

// Path returns the log file location.
func (j *Journal) Path() string {
	return j.path
}

// KeyPath returns the key file location.
func (j *Journal) KeyPath() string {
	return j.keyPath
}

// Record appends event and swallows any failure. The journal documents
// operations; it must never be the reason one fails.
func (j *Journal) Record(event map[string]any) {
	if _, err := j.Append(event); err != nil {
		j.logger.Warn("journal append failed",
			zap.String("path", j.path),
			zap.Any("type", event["type"]),
			zap.Error(err))
	}
}

// Append adds event to the log and returns the stored entry. A ts field
// (unix seconds) is added when absent; prev_hash and hash are always set
// by the journal.
func (j *Journal) Append(event map[string]any) (model.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key, err := loadOrCreateKey(j.keyPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	if err := lockFile(file); err != nil {
		return nil, fmt.Errorf("lock journal: %w", err)
	}
	defer unlockFile(file)

	prevHash, err := lastHash(file)
	if err != nil {
		return nil, fmt.Errorf("get last entry hash: %w", err)
	}

	entry := make(model.JournalEntry, len(event)+3)
	for k, v := range event {
		if k == model.FieldHash || k == model.FieldPrevHash {
			continue
		}
		entry[k] = v
	}
	if _, ok := entry[model.FieldTimestamp]; !ok {
		entry[model.FieldTimestamp] = j.now().Unix()
	}
	entry[model.FieldPrevHash] = string(prevHash)

	// Hash what Verify will later decode from the line, not the caller's
	// Go values: the encoder rewrites some strings (invalid UTF-8).
	entry, err = normalize(entry)
	if err != nil {
		return nil, err
	}

	hash, err := computeHash(key, entry)
	if err != nil {
		return nil, err
	}
	entry[model.FieldHash] = string(hash)

	line, err := jsonutil.CanonicalMarshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal journal entry: %w", err)
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("write journal entry: %w", err)
	}
	if err := file.Sync(); err != nil {
		return nil, fmt.Errorf("sync journal: %w", err)
	}

	return entry, nil
}

// LastHash returns the hash of the last well-formed entry, or "" if the
// log is absent or empty.
func (j *Journal) LastHash() (model.HashValue, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	return lastHash(file)
}

func lastHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var last model.HashValue
	scanner := newScanner(file)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		obj, err := jsonutil.DecodeObject(line)
		if err != nil {
			continue // skip malformed lines
		}
		last = model.JournalEntry(obj).Hash()
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan journal: %w", err)
	}
	return last, nil
}

func normalize(entry model.JournalEntry) (model.JournalEntry, error) {
	data, err := jsonutil.CanonicalMarshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal journal entry: %w", err)
	}
	obj, err := jsonutil.DecodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("decode journal entry: %w", err)
	}
	return model.JournalEntry(obj), nil
}

// computeHash returns hex(HMAC-SHA256(key, canonical(entry without hash))).
func computeHash(key []byte, entry map[string]any) (model.HashValue, error) {
	unsigned := make(map[string]any, len(entry))
	for k, v := range entry {
		if k != model.FieldHash {
			unsigned[k] = v
		}
	}

	payload, err := jsonutil.CanonicalMarshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return model.HashValue(hex.EncodeToString(mac.Sum(nil))), nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return scanner
}
