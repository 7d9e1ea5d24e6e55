// Package executor runs external system tools (firewall, service manager,
// enable/disable scripts) on behalf of the helpers.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result is the outcome of a process that ran to completion.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the process exited zero.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// Message returns the most useful diagnostic text from the process output,
// or fallback when it printed nothing.
func (r *Result) Message(fallback string) string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	if s := strings.TrimSpace(r.Stdout); s != "" {
		return s
	}
	return fallback
}

// Executor runs external commands. Run returns an error only when the
// process could not be started; a nonzero exit is reported in Result.
type Executor interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
	LookPath(name string) (string, bool)
}

// OS runs commands with os/exec.
type OS struct{}

// NewOS returns an Executor backed by the host.
func NewOS() *OS {
	return &OS{}
}

// Run executes name with args and captures its output.
func (OS) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	return res, nil
}

// LookPath reports whether name resolves on PATH.
func (OS) LookPath(name string) (string, bool) {
	p, err := exec.LookPath(name)
	return p, err == nil
}
