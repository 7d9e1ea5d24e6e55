package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getProjectRoot returns the absolute path to the project root.
func getProjectRoot(t *testing.T) string {
	dir, err := os.Getwd()
	require.NoError(t, err)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	t.Fatal("go.mod not found")
	return ""
}

// buildBinary compiles the helper into a temp dir.
func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping build test in short mode")
	}
	binPath := filepath.Join(t.TempDir(), "muxos-helper")
	buildCmd := exec.Command("go", "build", "-o", binPath, ".")
	buildCmd.Dir = filepath.Join(getProjectRoot(t), "cmd", "muxos-helper")
	output, err := buildCmd.CombinedOutput()
	require.NoError(t, err, "build failed: %s", string(output))
	return binPath
}

func exitStatus(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func TestMainHelpFlag(t *testing.T) {
	binPath := buildBinary(t)

	out, err := exec.Command(binPath, "--help").CombinedOutput()
	require.NoError(t, err)
	assert.Contains(t, string(out), "muxos-helper")
	assert.Contains(t, string(out), "HMAC-chained journal")
}

func TestMainUnknownCommand(t *testing.T) {
	binPath := buildBinary(t)

	out, err := exec.Command(binPath, "unknown-command-xyz").CombinedOutput()
	assert.Equal(t, 1, exitStatus(err))
	assert.Contains(t, strings.ToLower(string(out)), "unknown")
}

func TestMainHelperRefusesNonRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root")
	}
	binPath := buildBinary(t)

	cmd := exec.Command(binPath, "security", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	cmd.Stdin = strings.NewReader(`{"feature":"firewall","enabled":true}`)
	var stdout, stderr strings.Builder
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()

	assert.Equal(t, 2, exitStatus(err))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "This helper must run as root")
}

func TestMainEntryPoints(t *testing.T) {
	_ = main
}
