// Package update installs release snapshots over the running system and
// rolls them back.
//
// An install copies the files named in Manifest from a release archive
// over their installed destinations. Every destination that existed is
// first backed up under the new update identifier, and the applied
// (src, dst, sha256) list is persisted so Rollback can undo exactly that
// install. Replacement is file by file: a crash mid-install leaves a mix of
// old and new files and no state record.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/internal/backup"
	"github.com/muxos/muxos-helper/internal/integrity"
	"github.com/muxos/muxos-helper/internal/journal"
	"github.com/muxos/muxos-helper/internal/update/release"
	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/fsutil"
	"github.com/muxos/muxos-helper/pkg/model"
	"github.com/muxos/muxos-helper/pkg/pathutil"
)

// Source fetches release archives.
type Source interface {
	Fetch(ctx context.Context, repo, ref string) (io.ReadCloser, error)
}

// Options configures an Engine.
type Options struct {
	Fs          afero.Fs
	StateDir    string // holds <id>.json per install
	ScratchDir  string // parent of per-install extraction dirs; "" uses the OS temp dir
	MaxBytes    int64  // unpacked archive cap; 0 uses release.DefaultMaxBytes
	DefaultRepo string
	Source      Source
	Backups     *backup.Store
	Journal     *journal.Journal
	Logger      *zap.Logger
	Now         func() time.Time
}

// Engine applies and reverts installs.
type Engine struct {
	fs          afero.Fs
	stateDir    string
	scratchDir  string
	maxBytes    int64
	defaultRepo string
	source      Source
	backups     *backup.Store
	journal     *journal.Journal
	logger      *zap.Logger
	now         func() time.Time
}

// New creates an engine from opts.
func New(opts Options) *Engine {
	e := &Engine{
		fs:          opts.Fs,
		stateDir:    opts.StateDir,
		scratchDir:  opts.ScratchDir,
		maxBytes:    opts.MaxBytes,
		defaultRepo: opts.DefaultRepo,
		source:      opts.Source,
		backups:     opts.Backups,
		journal:     opts.Journal,
		logger:      opts.Logger,
		now:         opts.Now,
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Install fetches repo at ref and applies the manifest from it. An empty
// repo selects the configured default.
func (e *Engine) Install(ctx context.Context, repo, ref string) (*model.InstallResult, error) {
	if repo == "" {
		repo = e.defaultRepo
	}
	if err := pathutil.ValidateRepo(repo); err != nil {
		return nil, err
	}
	if err := pathutil.ValidateRef(ref); err != nil {
		return nil, err
	}

	id := model.NewUpdateID(e.now())
	statePath := e.statePath(id)
	exists, err := afero.Exists(e.fs, statePath)
	if err != nil {
		return nil, fmt.Errorf("check update state: %w", err)
	}
	if exists {
		return nil, errclass.ErrState.WithMessagef("update %s already exists", id)
	}

	log := e.logger.With(zap.String("update_id", id.String()), zap.String("repo", repo), zap.String("ref", ref))
	event := map[string]any{
		"type":      string(model.EventTypeUpdateInstall),
		"update_id": id.String(),
		"repo":      repo,
		"ref":       ref,
	}
	e.journal.Record(withStatus(event, model.StatusStart))
	log.Info("install started")

	copied, err := e.install(ctx, log, id, repo, ref)
	if err != nil {
		fail := withStatus(event, model.StatusError)
		fail["error"] = err.Error()
		e.journal.Record(fail)
		log.Error("install failed", zap.Error(err))
		return nil, err
	}

	done := withStatus(event, model.StatusOK)
	done["files"] = len(copied)
	e.journal.Record(done)
	log.Info("install finished", zap.Int("files", len(copied)))

	return &model.InstallResult{UpdateID: id, Copied: copied}, nil
}

func (e *Engine) install(ctx context.Context, log *zap.Logger, id model.UpdateID, repo, ref string) ([]model.AppliedFile, error) {
	scratch, err := afero.TempDir(e.fs, e.scratchDir, "muxos-update-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer e.fs.RemoveAll(scratch)

	body, err := e.source.Fetch(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	root, err := release.Extract(e.fs, body, scratch, e.maxBytes)
	body.Close()
	if err != nil {
		return nil, err
	}

	copied, err := e.apply(log, id, root)
	if err != nil {
		return nil, err
	}

	state := &model.UpdateState{
		UpdateID:  id,
		Repo:      repo,
		Ref:       ref,
		CreatedAt: e.now().UTC(),
		Copied:    copied,
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal update state: %w", err)
	}
	if err := fsutil.AtomicWrite(e.fs, e.statePath(id), data, 0644); err != nil {
		return nil, errclass.ErrState.WithMessagef("persist update state: %v", err)
	}
	return copied, nil
}

func (e *Engine) apply(log *zap.Logger, id model.UpdateID, root string) ([]model.AppliedFile, error) {
	copied := []model.AppliedFile{}
	for _, m := range Manifest {
		src := filepath.Join(root, filepath.FromSlash(m.Src))
		exists, err := afero.Exists(e.fs, src)
		if err != nil {
			return nil, fmt.Errorf("check %s: %w", m.Src, err)
		}
		if !exists {
			log.Debug("source missing from release", zap.String("src", m.Src))
			continue
		}

		if _, err := e.backups.Backup(id.String(), m.Dst); err != nil {
			return nil, fmt.Errorf("back up %s: %w", m.Dst, err)
		}
		if err := fsutil.CopyFile(e.fs, src, m.Dst); err != nil {
			return nil, fmt.Errorf("install %s: %w", m.Dst, err)
		}
		sum, err := integrity.HashFile(e.fs, m.Dst)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", m.Dst, err)
		}
		copied = append(copied, model.AppliedFile{Src: m.Src, Dst: m.Dst, SHA256: sum})
	}

	for _, p := range Executables {
		exists, err := afero.Exists(e.fs, p)
		if err != nil || !exists {
			continue
		}
		if err := e.fs.Chmod(p, 0755); err != nil {
			log.Warn("chmod failed", zap.String("path", p), zap.Error(err))
		}
	}
	return copied, nil
}

// Rollback restores every destination of the given install that has a
// backup. Destinations the install created are left in place.
func (e *Engine) Rollback(updateID string) (*model.RollbackResult, error) {
	if err := pathutil.ValidateUpdateID(updateID); err != nil {
		return nil, err
	}
	id := model.UpdateID(updateID)

	state, err := e.loadState(id)
	if err != nil {
		return nil, err
	}

	log := e.logger.With(zap.String("update_id", updateID))
	event := map[string]any{
		"type":      string(model.EventTypeUpdateRollback),
		"update_id": updateID,
	}
	e.journal.Record(withStatus(event, model.StatusStart))

	restored := []string{}
	for _, f := range state.Copied {
		ok, err := e.backups.Restore(updateID, f.Dst)
		if err != nil {
			fail := withStatus(event, model.StatusError)
			fail["error"] = err.Error()
			fail["restored"] = len(restored)
			e.journal.Record(fail)
			log.Error("rollback failed", zap.String("dst", f.Dst), zap.Error(err))
			return nil, err
		}
		if ok {
			restored = append(restored, f.Dst)
		}
	}

	done := withStatus(event, model.StatusOK)
	done["restored"] = len(restored)
	e.journal.Record(done)
	log.Info("rollback finished", zap.Int("restored", len(restored)))

	return &model.RollbackResult{UpdateID: id, Restored: restored}, nil
}

// List returns the persisted installs, newest first. Unreadable state
// files are skipped.
func (e *Engine) List() ([]model.UpdateSummary, error) {
	entries, err := afero.ReadDir(e.fs, e.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.UpdateSummary{}, nil
		}
		return nil, fmt.Errorf("read update state dir: %w", err)
	}

	summaries := []model.UpdateSummary{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if pathutil.ValidateUpdateID(id) != nil {
			continue
		}
		state, err := e.loadState(model.UpdateID(id))
		if err != nil {
			e.logger.Warn("skipping unreadable update state", zap.String("update_id", id), zap.Error(err))
			continue
		}
		summaries = append(summaries, model.UpdateSummary{
			UpdateID:  model.UpdateID(id),
			Repo:      state.Repo,
			Ref:       state.Ref,
			CreatedAt: state.CreatedAt,
			Files:     len(state.Copied),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdateID > summaries[j].UpdateID
	})
	return summaries, nil
}

// LoadState reads the persisted record of an install.
func (e *Engine) LoadState(updateID string) (*model.UpdateState, error) {
	if err := pathutil.ValidateUpdateID(updateID); err != nil {
		return nil, err
	}
	return e.loadState(model.UpdateID(updateID))
}

func (e *Engine) loadState(id model.UpdateID) (*model.UpdateState, error) {
	data, err := afero.ReadFile(e.fs, e.statePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errclass.ErrUnknownUpdate.WithMessage("unknown update id")
		}
		return nil, fmt.Errorf("read update state: %w", err)
	}
	var state model.UpdateState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errclass.ErrState.WithMessagef("parse update state %s: %v", id, err)
	}
	return &state, nil
}

func (e *Engine) statePath(id model.UpdateID) string {
	return filepath.Join(e.stateDir, id.String()+".json")
}

func withStatus(event map[string]any, status string) map[string]any {
	out := make(map[string]any, len(event)+1)
	for k, v := range event {
		out[k] = v
	}
	out["status"] = status
	return out
}
