package elevate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/muxos/muxos-helper/pkg/model"
)

// DefaultLauncher prompts for authentication and runs its argument as root.
const DefaultLauncher = "pkexec"

// Exit statuses pkexec uses when it did not run the helper.
const (
	exitNotAuthorized = 126
	exitAuthFailed    = 127
)

// Client calls one helper.
type Client struct {
	// Launcher runs the helper with privilege. Empty runs HelperPath directly.
	Launcher   string
	HelperPath string
	// Args follow HelperPath on the command line, e.g. the helper kind.
	Args []string
}

// NewClient returns a client that runs helperPath through pkexec.
func NewClient(helperPath string, args ...string) *Client {
	return &Client{Launcher: DefaultLauncher, HelperPath: helperPath, Args: args}
}

// ExitError reports a helper that exited nonzero.
type ExitError struct {
	Code   int
	Stderr string
	// Stdout holds any response written before the failure, such as the
	// per-item results of a partially failed batch.
	Stdout []byte
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return fmt.Sprintf("helper exited with status %d", e.Code)
}

// Refused reports whether the helper refused the request (bad request or
// missing privilege) rather than failing while running it.
func (e *ExitError) Refused() bool {
	return e.Code == 2
}

// NotAuthorized reports whether the launcher never ran the helper because
// authentication was dismissed or failed.
func (e *ExitError) NotAuthorized() bool {
	return e.Code == exitNotAuthorized || e.Code == exitAuthFailed
}

// Call sends req and returns the raw response. On a nonzero exit the error
// is an *ExitError.
func (c *Client) Call(ctx context.Context, req *model.Request) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	argv := append([]string{c.HelperPath}, c.Args...)
	if c.Launcher != "" {
		argv = append([]string{c.Launcher}, argv...)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
				Stdout: bytes.TrimSpace(stdout.Bytes()),
			}
		}
		return nil, fmt.Errorf("launch helper: %w", err)
	}
	return bytes.TrimSpace(stdout.Bytes()), nil
}

// Result is the outcome of a background call.
type Result struct {
	Output []byte
	Err    error
}

// Go runs Call on a new goroutine. The returned channel receives exactly
// one Result and is then closed.
func (c *Client) Go(ctx context.Context, req *model.Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		out, err := c.Call(ctx, req)
		ch <- Result{Output: out, Err: err}
	}()
	return ch
}

// Toggle sets one security feature.
func (c *Client) Toggle(ctx context.Context, feature string, enabled bool) error {
	_, err := c.Call(ctx, &model.Request{Action: model.ActionToggle, Feature: feature, Enabled: enabled})
	return err
}

// Batch applies several toggles. When some items fail, both the per-item
// result and an *ExitError are returned.
func (c *Client) Batch(ctx context.Context, toggles []model.ToggleRequest) (*model.BatchResult, error) {
	items := make([]json.RawMessage, 0, len(toggles))
	for _, t := range toggles {
		raw, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("marshal toggle: %w", err)
		}
		items = append(items, raw)
	}

	var res model.BatchResult
	err := c.callInto(ctx, &model.Request{Action: model.ActionBatch, Toggles: items}, &res)
	if err != nil && res.Results == nil {
		return nil, err
	}
	return &res, err
}

// Verify checks the helper's journal. A broken chain is reported in the
// result together with an *ExitError.
func (c *Client) Verify(ctx context.Context) (*model.VerifyResult, error) {
	var res model.VerifyResult
	err := c.callInto(ctx, &model.Request{Action: model.ActionVerify}, &res)
	if err != nil && res.Error == "" {
		return nil, err
	}
	return &res, err
}

// Install applies the release repo@ref. An empty repo selects the helper's default.
func (c *Client) Install(ctx context.Context, repo, ref string) (*model.InstallResult, error) {
	var res model.InstallResult
	if err := c.callResponse(ctx, &model.Request{Action: model.ActionInstall, Repo: repo, Ref: ref}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Rollback undoes the install identified by updateID.
func (c *Client) Rollback(ctx context.Context, updateID string) (*model.RollbackResult, error) {
	var res model.RollbackResult
	if err := c.callResponse(ctx, &model.Request{Action: model.ActionRollback, UpdateID: updateID}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the installs the helper can roll back, newest first.
func (c *Client) List(ctx context.Context) ([]model.UpdateSummary, error) {
	var res []model.UpdateSummary
	if err := c.callResponse(ctx, &model.Request{Action: model.ActionList}, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// callInto decodes the raw response into v, including the partial output
// of a failed call.
func (c *Client) callInto(ctx context.Context, req *model.Request, v any) error {
	out, err := c.Call(ctx, req)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		out = exitErr.Stdout
	} else if err != nil {
		return err
	}
	if len(out) > 0 {
		if decodeErr := json.Unmarshal(out, v); decodeErr != nil && err == nil {
			return fmt.Errorf("decode response: %w", decodeErr)
		}
	}
	return err
}

// callResponse decodes the result of a {ok, update_id, result} envelope into v.
func (c *Client) callResponse(ctx context.Context, req *model.Request, v any) error {
	out, err := c.Call(ctx, req)
	if err != nil {
		return err
	}
	var resp model.Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !resp.OK {
		return errors.New("helper reported failure")
	}
	if len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
