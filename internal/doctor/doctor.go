// Package doctor checks the helper state directory for problems an
// operator should know about.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/muxos/muxos-helper/internal/journal"
	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/model"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool      `json:"healthy"`
	Findings []Finding `json:"findings"`
}

// Doctor performs state directory health checks.
type Doctor struct {
	fs  afero.Fs
	cfg *config.Config
}

// NewDoctor creates a new doctor.
func NewDoctor(fs afero.Fs, cfg *config.Config) *Doctor {
	return &Doctor{fs: fs, cfg: cfg}
}

// Check runs all diagnostic checks.
func (d *Doctor) Check() (*Result, error) {
	result := &Result{Healthy: true, Findings: []Finding{}}

	d.checkJournal(result, "security", d.cfg.SecurityDir())
	d.checkJournal(result, "update", d.cfg.UpdatesDir())
	d.checkUpdateStates(result)
	d.checkScripts(result)
	d.checkOrphanTmp(result)

	return result, nil
}

func (r *Result) add(f Finding) {
	if f.Severity == "critical" || f.Severity == "error" {
		r.Healthy = false
	}
	r.Findings = append(r.Findings, f)
}

func (d *Doctor) checkJournal(result *Result, name, dir string) {
	j := journal.New(filepath.Join(dir, "journal.log"), filepath.Join(dir, "journal.key"), nil)
	logPath, keyPath := j.Path(), j.KeyPath()

	if info, err := d.fs.Stat(keyPath); err == nil {
		if perm := info.Mode().Perm(); perm != 0600 {
			result.add(Finding{
				Category:    "journal",
				Description: fmt.Sprintf("%s journal key has mode %04o, want 0600", name, perm),
				Severity:    "critical",
				Path:        keyPath,
			})
		}
	}

	res, err := j.Verify()
	if err != nil {
		result.add(Finding{
			Category:    "journal",
			Description: fmt.Sprintf("cannot verify %s journal: %v", name, err),
			Severity:    "error",
			Path:        logPath,
		})
		return
	}
	if !res.OK {
		desc := fmt.Sprintf("%s journal verification failed: %s", name, res.Error)
		if res.Line > 0 {
			desc = fmt.Sprintf("%s journal verification failed at entry %d: %s", name, res.Line, res.Error)
		}
		result.add(Finding{
			Category:    "journal",
			Description: desc,
			Severity:    "critical",
			Path:        logPath,
		})
	}
}

func (d *Doctor) checkUpdateStates(result *Result) {
	stateDir := filepath.Join(d.cfg.UpdatesDir(), "state")
	entries, err := afero.ReadDir(d.fs, stateDir)
	if err != nil {
		return // no installs yet
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(stateDir, entry.Name())
		data, err := afero.ReadFile(d.fs, path)
		if err != nil {
			result.add(Finding{
				Category:    "update",
				Description: fmt.Sprintf("cannot read update state: %v", err),
				Severity:    "error",
				Path:        path,
			})
			continue
		}
		var state model.UpdateState
		if err := json.Unmarshal(data, &state); err != nil {
			result.add(Finding{
				Category:    "update",
				Description: fmt.Sprintf("update state %s is not valid JSON", entry.Name()),
				Severity:    "error",
				Path:        path,
			})
			continue
		}
		if want := strings.TrimSuffix(entry.Name(), ".json"); string(state.UpdateID) != want {
			result.add(Finding{
				Category:    "update",
				Description: fmt.Sprintf("update state %s records id %q", entry.Name(), state.UpdateID),
				Severity:    "warning",
				Path:        path,
			})
		}
	}
}

func (d *Doctor) checkScripts(result *Result) {
	for _, name := range []string{"intrusion-detection.sh", "privacy-settings.sh", "system-hardening.sh"} {
		path := filepath.Join(d.cfg.Security.ScriptsDir, name)
		if _, err := d.fs.Stat(path); os.IsNotExist(err) {
			result.add(Finding{
				Category:    "security",
				Description: fmt.Sprintf("security script %s missing; enabling its feature will fail", name),
				Severity:    "warning",
				Path:        path,
			})
		}
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	// Leftovers of interrupted atomic writes.
	afero.Walk(d.fs, d.cfg.StateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".muxos-tmp-") {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", info.Name()),
				Severity:    "info",
				Path:        path,
			})
		}
		return nil
	})
}
