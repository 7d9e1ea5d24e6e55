package elevate_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muxos/muxos-helper/pkg/elevate"
	"github.com/muxos/muxos-helper/pkg/model"
)

// fakeHelper writes a shell script that saves its stdin and arguments next
// to itself, then runs body.
func fakeHelper(t *testing.T, body string) (*elevate.Client, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell helpers need a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "helper.sh")
	content := "#!/bin/sh\ncat > \"" + dir + "/request.json\"\necho \"$@\" > \"" + dir + "/args\"\n" + body + "\n"
	require.NoError(t, os.WriteFile(script, []byte(content), 0755))
	return &elevate.Client{HelperPath: script, Args: []string{"security"}}, dir
}

func TestCall_SendsRequestAndReturnsOutput(t *testing.T) {
	c, dir := fakeHelper(t, `printf '{"ok":true}'`)

	out, err := c.Call(context.Background(), &model.Request{Action: model.ActionToggle, Feature: "privacy", Enabled: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out))

	sent, err := os.ReadFile(filepath.Join(dir, "request.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"toggle","feature":"privacy","enabled":true}`, string(sent))

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	assert.Equal(t, "security\n", string(args))
}

func TestCall_NonzeroExitCarriesDiagnostic(t *testing.T) {
	c, _ := fakeHelper(t, "echo 'This helper must run as root' >&2\nexit 2")

	_, err := c.Call(context.Background(), &model.Request{Action: model.ActionVerify})
	var exitErr *elevate.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.True(t, exitErr.Refused())
	assert.False(t, exitErr.NotAuthorized())
	assert.Equal(t, "This helper must run as root", err.Error())
}

func TestCall_SilentFailure(t *testing.T) {
	c, _ := fakeHelper(t, "exit 126")

	err := c.Toggle(context.Background(), "firewall", true)
	var exitErr *elevate.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.True(t, exitErr.NotAuthorized())
	assert.Equal(t, "helper exited with status 126", err.Error())
}

func TestCall_ThroughLauncher(t *testing.T) {
	c, dir := fakeHelper(t, `printf '{"ok":true}'`)
	c.Launcher = "/bin/sh"

	_, err := c.Call(context.Background(), &model.Request{Action: model.ActionList})
	require.NoError(t, err)
	args, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	assert.Equal(t, "security\n", string(args))
}

func TestCall_MissingHelper(t *testing.T) {
	c := &elevate.Client{HelperPath: filepath.Join(t.TempDir(), "absent")}

	_, err := c.Call(context.Background(), &model.Request{Action: model.ActionVerify})
	require.Error(t, err)
	var exitErr *elevate.ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestBatch_PartialFailureReturnsResults(t *testing.T) {
	c, dir := fakeHelper(t, `printf '{"ok":false,"results":[{"feature":"firewall","enabled":true,"ok":true},{"feature":"nope","enabled":true,"ok":false,"error":"unknown feature"}]}'
echo '1 of 2 toggles failed' >&2
exit 1`)

	res, err := c.Batch(context.Background(), []model.ToggleRequest{
		{Feature: "firewall", Enabled: true},
		{Feature: "nope", Enabled: true},
	})
	require.Error(t, err)
	assert.Equal(t, "1 of 2 toggles failed", err.Error())
	require.NotNil(t, res)
	assert.False(t, res.OK)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "unknown feature", res.Results[1].Error)

	sent, err := os.ReadFile(filepath.Join(dir, "request.json"))
	require.NoError(t, err)
	var req model.Request
	require.NoError(t, json.Unmarshal(sent, &req))
	assert.Equal(t, model.ActionBatch, req.Action)
	assert.Len(t, req.Toggles, 2)
}

func TestVerify_BrokenChain(t *testing.T) {
	c, _ := fakeHelper(t, `printf '{"ok":false,"entries":3,"error":"prev_hash mismatch","line":3}'
echo 'journal verification failed at entry 3: prev_hash mismatch' >&2
exit 1`)

	res, err := c.Verify(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, &model.VerifyResult{OK: false, Entries: 3, Error: "prev_hash mismatch", Line: 3}, res)
}

func TestInstallAndRollback_DecodeEnvelope(t *testing.T) {
	c, _ := fakeHelper(t, `printf '{"ok":true,"update_id":"20250101-000000","result":{"update_id":"20250101-000000","copied":[{"src":"config/muxos.conf","dst":"/etc/muxos.conf","sha256":"ab"}]}}'`)

	res, err := c.Install(context.Background(), "", "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, model.UpdateID("20250101-000000"), res.UpdateID)
	require.Len(t, res.Copied, 1)
	assert.Equal(t, "/etc/muxos.conf", res.Copied[0].Dst)

	c2, _ := fakeHelper(t, `printf '{"ok":true,"result":{"update_id":"20250101-000000","restored":[]}}'`)
	rb, err := c2.Rollback(context.Background(), "20250101-000000")
	require.NoError(t, err)
	assert.Empty(t, rb.Restored)
}

func TestGo_HandsResultBack(t *testing.T) {
	c, _ := fakeHelper(t, `printf '{"ok":true,"result":[]}'`)

	ch := c.Go(context.Background(), &model.Request{Action: model.ActionList})
	select {
	case res := <-ch:
		require.NoError(t, res.Err)
		assert.JSONEq(t, `{"ok":true,"result":[]}`, string(res.Output))
	case <-time.After(10 * time.Second):
		t.Fatal("no result")
	}

	_, open := <-ch
	assert.False(t, open, "channel must be closed after the result")
}
