package integrity_test

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/muxos/muxos-helper/internal/integrity"
	"github.com/muxos/muxos-helper/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile_KnownDigest(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/muxos.conf", []byte("hello"), 0644))

	hash, err := integrity.HashFile(fs, "/etc/muxos.conf")
	require.NoError(t, err)
	assert.Equal(t, model.HashValue("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"), hash)
}

func TestHashFile_MatchesSumAndReader(t *testing.T) {
	fs := afero.NewMemMapFs()
	data := []byte("#!/usr/bin/env python3\nprint('muxos')\n")
	require.NoError(t, afero.WriteFile(fs, "/usr/bin/muxos-notes", data, 0755))

	fromFile, err := integrity.HashFile(fs, "/usr/bin/muxos-notes")
	require.NoError(t, err)
	fromReader, err := integrity.HashReader(strings.NewReader(string(data)))
	require.NoError(t, err)

	sum := sha256.Sum256(data)
	assert.Equal(t, model.HashValue(hex.EncodeToString(sum[:])), fromFile)
	assert.Equal(t, fromFile, fromReader)
}

func TestHashFile_Missing(t *testing.T) {
	_, err := integrity.HashFile(afero.NewMemMapFs(), "/nope")
	assert.Error(t, err)
}
