// Package helper implements the privileged side of the elevation boundary:
// one JSON request on stdin, one JSON response on stdout, and an error that
// carries the process exit status.
package helper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/muxos/muxos-helper/internal/journal"
	"github.com/muxos/muxos-helper/internal/security"
	"github.com/muxos/muxos-helper/internal/update"
	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/model"
)

// Kind selects which helper a Handler serves.
type Kind string

const (
	KindSecurity Kind = "security"
	KindUpdate   Kind = "update"
)

// maxRequestSize bounds what a caller may write to stdin.
const maxRequestSize = 1 << 20

// IsRoot reports whether the process runs with effective uid 0.
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// Options configures a Handler. Security is required for KindSecurity and
// Updates for KindUpdate.
type Options struct {
	Kind       Kind
	Privileged func() bool
	Security   *security.Orchestrator
	Updates    *update.Engine
	Journal    *journal.Journal
	Logger     *zap.Logger
}

// Handler serves one request per process.
type Handler struct {
	kind       Kind
	privileged func() bool
	security   *security.Orchestrator
	updates    *update.Engine
	journal    *journal.Journal
	logger     *zap.Logger
}

// Outcome describes a served request for metrics.
type Outcome struct {
	Action model.Action
	Items  int
}

// New creates a handler.
func New(opts Options) *Handler {
	h := &Handler{
		kind:       opts.Kind,
		privileged: opts.Privileged,
		security:   opts.Security,
		updates:    opts.Updates,
		journal:    opts.Journal,
		logger:     opts.Logger,
	}
	if h.privileged == nil {
		h.privileged = IsRoot
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Serve reads one request from stdin, runs it and writes the response to
// stdout. The returned error's exit status (errclass.ExitCode) is the
// helper's exit status. Some failures still write a response, such as a
// failed verification or a partially failed batch.
func (h *Handler) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) (*Outcome, error) {
	out := &Outcome{}
	if !h.privileged() {
		return out, errclass.ErrPrivilege.WithMessage("This helper must run as root")
	}

	req, err := readRequest(stdin)
	if err != nil {
		return out, err
	}
	out.Action = req.Action

	// Mutations must not be interrupted half way.
	ctx = context.WithoutCancel(ctx)

	h.logger.Info("request received",
		zap.String("helper", string(h.kind)),
		zap.String("action", string(req.Action)))

	switch h.kind {
	case KindSecurity:
		return out, h.serveSecurity(ctx, req, stdout, out)
	case KindUpdate:
		return out, h.serveUpdate(ctx, req, stdout, out)
	default:
		return out, fmt.Errorf("unknown helper kind %q", h.kind)
	}
}

func readRequest(r io.Reader) (*model.Request, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxRequestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	if len(data) > maxRequestSize {
		return nil, errclass.ErrInvalidRequest.WithMessage("request too large")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("{}")
	}

	var req model.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errclass.ErrInvalidRequest.WithMessagef("invalid request: %v", err)
	}
	return &req, nil
}

func (h *Handler) serveSecurity(ctx context.Context, req *model.Request, w io.Writer, out *Outcome) error {
	if req.Action == "" {
		req.Action = model.ActionToggle
		out.Action = model.ActionToggle
	}

	switch req.Action {
	case model.ActionVerify:
		return h.verify(w, out)

	case model.ActionBatch:
		if req.Toggles == nil {
			return errclass.ErrInvalidRequest.WithMessage("Invalid toggles")
		}
		res := h.security.ApplyBatch(ctx, req.Toggles)
		out.Items = len(res.Results)
		if err := writeJSON(w, res); err != nil {
			return err
		}
		if !res.OK {
			failed := 0
			for _, r := range res.Results {
				if !r.OK {
					failed++
				}
			}
			return errclass.ErrPartialBatch.WithMessagef("%d of %d toggles failed", failed, len(res.Results))
		}
		return nil

	case model.ActionToggle:
		if _, ok := model.ParseFeature(req.Feature); !ok {
			return errclass.ErrUnknownFeature.WithMessage("Unknown feature")
		}
		out.Items = 1
		toggle := model.ToggleRequest{Feature: req.Feature, Enabled: req.Enabled}
		if err := h.security.Toggle(ctx, toggle); err != nil {
			return err
		}
		return writeResponse(w, &model.Response{OK: true}, toggle)

	default:
		return errclass.ErrInvalidRequest.WithMessage("Unknown action")
	}
}

func (h *Handler) serveUpdate(ctx context.Context, req *model.Request, w io.Writer, out *Outcome) error {
	switch req.Action {
	case model.ActionInstall:
		res, err := h.updates.Install(ctx, req.Repo, req.Ref)
		if err != nil {
			return err
		}
		out.Items = len(res.Copied)
		return writeResponse(w, &model.Response{OK: true, UpdateID: res.UpdateID}, res)

	case model.ActionRollback:
		res, err := h.updates.Rollback(req.UpdateID)
		if err != nil {
			return err
		}
		out.Items = len(res.Restored)
		return writeResponse(w, &model.Response{OK: true, UpdateID: res.UpdateID}, res)

	case model.ActionList:
		res, err := h.updates.List()
		if err != nil {
			return err
		}
		out.Items = len(res)
		return writeResponse(w, &model.Response{OK: true}, res)

	case model.ActionVerify:
		return h.verify(w, out)

	default:
		return errclass.ErrInvalidRequest.WithMessage("Unknown action")
	}
}

// verify writes the verification result and fails when the chain is broken.
func (h *Handler) verify(w io.Writer, out *Outcome) error {
	res, err := h.journal.Verify()
	if err != nil {
		return errclass.ErrIntegrity.WithMessagef("verify journal: %v", err)
	}
	out.Items = res.Entries
	if err := writeJSON(w, res); err != nil {
		return err
	}
	if !res.OK {
		if res.Line > 0 {
			return errclass.ErrIntegrity.WithMessagef("journal verification failed at entry %d: %s", res.Line, res.Error)
		}
		return errclass.ErrIntegrity.WithMessagef("journal verification failed: %s", res.Error)
	}
	return nil
}

func writeResponse(w io.Writer, resp *model.Response, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	resp.Result = raw
	return writeJSON(w, resp)
}

func writeJSON(w io.Writer, v any) error {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
