package journal

import (
	"bytes"
	"crypto/hmac"
	"errors"
	"fmt"
	"os"

	"github.com/muxos/muxos-helper/pkg/jsonutil"
	"github.com/muxos/muxos-helper/pkg/model"
)

// Verify replays the log from its first entry, recomputing the prev_hash
// chain and every HMAC. It stops at the first divergence. An error is
// returned only when the log or key cannot be read at all.
func (j *Journal) Verify() (*model.VerifyResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &model.VerifyResult{OK: true, Entries: 0}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	key, err := readKey(j.keyPath)
	if err != nil {
		if errors.Is(err, ErrKeyMissing) {
			return &model.VerifyResult{OK: false, Error: model.VerifyKeyMissing}, nil
		}
		return nil, err
	}

	var (
		prevHash string
		entries  int
	)
	fail := func(reason string) *model.VerifyResult {
		return &model.VerifyResult{OK: false, Entries: entries, Error: reason, Line: entries}
	}

	scanner := newScanner(file)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		entries++

		obj, err := jsonutil.DecodeObject(line)
		if err != nil {
			return fail(model.VerifyInvalidRecord), nil
		}

		recordedPrev := ""
		if v, ok := obj[model.FieldPrevHash]; ok {
			s, isString := v.(string)
			if !isString {
				return fail(model.VerifyInvalidRecord), nil
			}
			recordedPrev = s
		}
		if recordedPrev != prevHash {
			return fail(model.VerifyPrevHashMismatch), nil
		}

		rawHash, ok := obj[model.FieldHash]
		if !ok || rawHash == "" {
			return fail(model.VerifyMissingHash), nil
		}
		recorded, isString := rawHash.(string)
		if !isString {
			return fail(model.VerifyInvalidRecord), nil
		}

		computed, err := computeHash(key, obj)
		if err != nil {
			return fail(model.VerifyInvalidRecord), nil
		}
		if !hmac.Equal([]byte(computed), []byte(recorded)) {
			return fail(model.VerifyHMACMismatch), nil
		}

		prevHash = recorded
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	return &model.VerifyResult{OK: true, Entries: entries}, nil
}
