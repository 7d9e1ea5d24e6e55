// Package exectest provides a recording Executor for tests.
package exectest

import (
	"context"
	"strings"
	"sync"

	"github.com/muxos/muxos-helper/internal/executor"
)

// Fake records every command and answers from canned results.
type Fake struct {
	mu sync.Mutex

	// Results maps a full command line ("ufw --force enable") to its result.
	// Commands without an entry succeed with empty output.
	Results map[string]*executor.Result
	// Missing lists tools LookPath must not find.
	Missing map[string]bool
	// OnRun, if set, is called for every command before its result is returned.
	// Tests use it to emulate scripts that modify files.
	OnRun func(args []string)

	calls [][]string
}

// New returns an empty Fake where every tool exists and every command succeeds.
func New() *Fake {
	return &Fake{
		Results: map[string]*executor.Result{},
		Missing: map[string]bool{},
	}
}

// Run records the command and returns its canned result.
func (f *Fake) Run(_ context.Context, name string, args ...string) (*executor.Result, error) {
	argv := append([]string{name}, args...)

	f.mu.Lock()
	f.calls = append(f.calls, argv)
	res, ok := f.Results[strings.Join(argv, " ")]
	onRun := f.OnRun
	f.mu.Unlock()

	if onRun != nil {
		onRun(argv)
	}
	if !ok {
		return &executor.Result{}, nil
	}
	out := *res
	return &out, nil
}

// LookPath succeeds unless the tool is listed in Missing.
func (f *Fake) LookPath(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Missing[name] {
		return "", false
	}
	return "/usr/bin/" + name, true
}

// Calls returns each recorded command line joined by spaces.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, strings.Join(c, " "))
	}
	return out
}
