// Package security enables and disables the fixed catalog of MuxOS
// security features.
//
// Every toggle is journaled before and after it runs. Features that rewrite
// configuration files back them up under the feature's name first, so a
// later disable can restore them even when the enable script failed part
// way through.
package security

import (
	"context"
	"encoding/json"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/internal/backup"
	"github.com/muxos/muxos-helper/internal/executor"
	"github.com/muxos/muxos-helper/internal/journal"
	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/jsonutil"
	"github.com/muxos/muxos-helper/pkg/model"
)

// Deps are the capabilities an Orchestrator acts through.
type Deps struct {
	Fs      afero.Fs
	Exec    executor.Executor
	Backups *backup.Store
	Journal *journal.Journal
	Config  config.SecurityConfig
	Logger  *zap.Logger
}

// Orchestrator applies feature toggles.
type Orchestrator struct {
	fs      afero.Fs
	exec    executor.Executor
	backups *backup.Store
	journal *journal.Journal
	cfg     config.SecurityConfig
	logger  *zap.Logger
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	o := &Orchestrator{
		fs:      deps.Fs,
		exec:    deps.Exec,
		backups: deps.Backups,
		journal: deps.Journal,
		cfg:     deps.Config,
		logger:  deps.Logger,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.cfg.Shell == "" {
		o.cfg.Shell = "bash"
	}
	return o
}

// Toggle puts the named feature into the requested state.
func (o *Orchestrator) Toggle(ctx context.Context, req model.ToggleRequest) error {
	f, ok := model.ParseFeature(req.Feature)
	if !ok {
		return errclass.ErrUnknownFeature.WithMessagef("unknown feature: %q", req.Feature)
	}
	return o.toggle(ctx, f, req.Enabled)
}

func (o *Orchestrator) toggle(ctx context.Context, f model.Feature, enabled bool) error {
	event := map[string]any{
		"type":    string(model.EventTypeSecurityToggle),
		"feature": f.String(),
		"enabled": enabled,
	}
	o.journal.Record(withStatus(event, model.StatusStart))

	log := o.logger.With(zap.Stringer("feature", f), zap.Bool("enabled", enabled))
	log.Info("toggle started")

	proc := registry[f].disable
	if enabled {
		proc = registry[f].enable
	}
	if err := proc(o, ctx); err != nil {
		fail := withStatus(event, model.StatusError)
		fail["error"] = err.Error()
		o.journal.Record(fail)
		log.Error("toggle failed", zap.Error(err))
		return err
	}

	o.journal.Record(withStatus(event, model.StatusOK))
	log.Info("toggle finished")
	return nil
}

// ApplyBatch applies each item independently. A malformed item or an
// unknown feature fails only that item. The batch is bracketed by a start
// and an outcome journal entry.
func (o *Orchestrator) ApplyBatch(ctx context.Context, items []json.RawMessage) *model.BatchResult {
	o.journal.Record(map[string]any{
		"type":   string(model.EventTypeSecurityBatch),
		"status": model.StatusStart,
		"count":  len(items),
	})

	result := &model.BatchResult{OK: true, Results: make([]model.ToggleResult, 0, len(items))}
	for _, raw := range items {
		res := o.applyItem(ctx, raw)
		if !res.OK {
			result.OK = false
		}
		result.Results = append(result.Results, res)
	}

	status := model.StatusOK
	if !result.OK {
		status = model.StatusError
	}
	o.journal.Record(map[string]any{
		"type":   string(model.EventTypeSecurityBatch),
		"status": status,
	})
	return result
}

func (o *Orchestrator) applyItem(ctx context.Context, raw json.RawMessage) model.ToggleResult {
	var res model.ToggleResult

	obj, err := jsonutil.DecodeObject(raw)
	if err != nil {
		return o.itemFailed(res, "invalid toggle item")
	}
	res.Feature = obj["feature"]
	res.Enabled = obj["enabled"]

	enabled := false
	if v, present := obj["enabled"]; present {
		b, isBool := v.(bool)
		if !isBool {
			return o.itemFailed(res, "invalid toggle item")
		}
		enabled = b
	}

	name, _ := obj["feature"].(string)
	f, ok := model.ParseFeature(name)
	if !ok {
		return o.itemFailed(res, "unknown feature")
	}

	if err := o.toggle(ctx, f, enabled); err != nil {
		res.Error = err.Error()
		return res
	}
	res.OK = true
	return res
}

// itemFailed journals an item rejected before any procedure ran.
func (o *Orchestrator) itemFailed(res model.ToggleResult, reason string) model.ToggleResult {
	res.OK = false
	res.Error = reason
	o.journal.Record(map[string]any{
		"type":    string(model.EventTypeSecurityToggle),
		"feature": res.Feature,
		"enabled": res.Enabled,
		"status":  model.StatusError,
		"error":   reason,
	})
	return res
}

func withStatus(event map[string]any, status string) map[string]any {
	out := make(map[string]any, len(event)+1)
	for k, v := range event {
		out[k] = v
	}
	out["status"] = status
	return out
}
