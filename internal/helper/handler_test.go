package helper_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muxos/muxos-helper/internal/backup"
	"github.com/muxos/muxos-helper/internal/executor/exectest"
	"github.com/muxos/muxos-helper/internal/helper"
	"github.com/muxos/muxos-helper/internal/journal"
	"github.com/muxos/muxos-helper/internal/security"
	"github.com/muxos/muxos-helper/internal/update"
	"github.com/muxos/muxos-helper/internal/update/release"
	"github.com/muxos/muxos-helper/internal/update/release/releasetest"
	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/model"
)

func root() bool   { return true }
func noRoot() bool { return false }

func newJournal(t *testing.T) *journal.Journal {
	t.Helper()
	dir := t.TempDir()
	return journal.New(filepath.Join(dir, "journal.log"), filepath.Join(dir, "journal.key"), nil)
}

func securityHandler(t *testing.T, privileged func() bool) (*helper.Handler, *exectest.Fake, *journal.Journal) {
	t.Helper()
	fs := afero.NewMemMapFs()
	fake := exectest.New()
	j := newJournal(t)
	orch := security.New(security.Deps{
		Fs:      fs,
		Exec:    fake,
		Backups: backup.NewStore(fs, "/var/lib/muxos/security/backups"),
		Journal: j,
		Config:  config.Default().Security,
	})
	h := helper.New(helper.Options{
		Kind:       helper.KindSecurity,
		Privileged: privileged,
		Security:   orch,
		Journal:    j,
	})
	return h, fake, j
}

func updateHandler(t *testing.T) (*helper.Handler, *releasetest.Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	srv := releasetest.NewServer(t)
	cfg := config.Default().Update
	cfg.ArchiveURLTemplate = srv.URLTemplate()
	fetcher, err := release.NewFetcher(cfg, nil)
	require.NoError(t, err)

	j := newJournal(t)
	engine := update.New(update.Options{
		Fs:          fs,
		StateDir:    "/var/lib/muxos/updates/state",
		DefaultRepo: cfg.DefaultRepo,
		Source:      fetcher,
		Backups:     backup.NewStore(fs, "/var/lib/muxos/updates/backups"),
		Journal:     j,
		Now:         func() time.Time { return time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC) },
	})
	h := helper.New(helper.Options{
		Kind:       helper.KindUpdate,
		Privileged: root,
		Updates:    engine,
		Journal:    j,
	})
	return h, srv, fs
}

func serve(t *testing.T, h *helper.Handler, request string) (*helper.Outcome, string, error) {
	t.Helper()
	var stdout bytes.Buffer
	out, err := h.Serve(context.Background(), strings.NewReader(request), &stdout)
	require.NotNil(t, out)
	return out, stdout.String(), err
}

func TestServe_RefusesWithoutPrivilege(t *testing.T) {
	h, fake, j := securityHandler(t, noRoot)

	_, stdout, err := serve(t, h, `{"action":"toggle","feature":"firewall","enabled":true}`)
	require.ErrorIs(t, err, errclass.ErrPrivilege)
	assert.Equal(t, 2, errclass.ExitCode(err))
	assert.Empty(t, stdout)
	assert.Empty(t, fake.Calls())
	_, statErr := os.Stat(j.Path())
	assert.True(t, os.IsNotExist(statErr), "nothing may be journaled before the privilege check")
}

func TestServe_BadRequests(t *testing.T) {
	h, _, _ := securityHandler(t, root)

	cases := []struct {
		name    string
		request string
		code    *errclass.HelperError
	}{
		{"not json", `{`, errclass.ErrInvalidRequest},
		{"empty input defaults to toggle without feature", ``, errclass.ErrUnknownFeature},
		{"unknown feature", `{"feature":"selinux","enabled":true}`, errclass.ErrUnknownFeature},
		{"unknown action", `{"action":"install"}`, errclass.ErrInvalidRequest},
		{"batch without toggles", `{"action":"batch"}`, errclass.ErrInvalidRequest},
		{"toggles not a list", `{"action":"batch","toggles":{"feature":"firewall"}}`, errclass.ErrInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, stdout, err := serve(t, h, tc.request)
			require.ErrorIs(t, err, tc.code)
			assert.Equal(t, 2, errclass.ExitCode(err))
			assert.Empty(t, stdout)
		})
	}
}

func TestServe_Toggle(t *testing.T) {
	h, fake, _ := securityHandler(t, root)

	out, stdout, err := serve(t, h, `{"feature":"firewall","enabled":true}`)
	require.NoError(t, err)
	assert.Equal(t, model.ActionToggle, out.Action)
	assert.Equal(t, 1, out.Items)
	assert.Equal(t, []string{"ufw --force enable"}, fake.Calls())
	assert.JSONEq(t, `{"ok":true,"result":{"feature":"firewall","enabled":true}}`, stdout)
}

func TestServe_ToggleScriptFailureExitsOne(t *testing.T) {
	h, _, _ := securityHandler(t, root)

	_, stdout, err := serve(t, h, `{"action":"toggle","feature":"ids","enabled":true}`)
	require.ErrorIs(t, err, errclass.ErrScript)
	assert.Equal(t, 1, errclass.ExitCode(err))
	assert.Empty(t, stdout)
}

func TestServe_PartialBatch(t *testing.T) {
	h, _, _ := securityHandler(t, root)

	out, stdout, err := serve(t, h, `{"action":"batch","toggles":[{"feature":"firewall","enabled":true},{"feature":"unknown_feature","enabled":true}]}`)
	require.ErrorIs(t, err, errclass.ErrPartialBatch)
	assert.Equal(t, 1, errclass.ExitCode(err))
	assert.Equal(t, "1 of 2 toggles failed", err.Error())
	assert.Equal(t, 2, out.Items)

	var res model.BatchResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	assert.False(t, res.OK)
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, "unknown feature", res.Results[1].Error)
}

func TestServe_Verify(t *testing.T) {
	h, _, j := securityHandler(t, root)
	_, _, err := serve(t, h, `{"feature":"firewall","enabled":false}`)
	require.NoError(t, err)

	_, stdout, err := serve(t, h, `{"action":"verify"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"entries":2}`, stdout)

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)
	tampered := strings.Replace(string(data), `"enabled":false`, `"enabled":true`, 1)
	require.NoError(t, os.WriteFile(j.Path(), []byte(tampered), 0644))

	_, stdout, err = serve(t, h, `{"action":"verify"}`)
	require.ErrorIs(t, err, errclass.ErrIntegrity)
	assert.Equal(t, 1, errclass.ExitCode(err))
	assert.JSONEq(t, `{"ok":false,"entries":1,"error":"hmac mismatch","line":1}`, stdout)
}

func TestServe_UpdateLifecycle(t *testing.T) {
	h, srv, fs := updateHandler(t)
	srv.Add("MushhDev/MuxOS", "v2.0.0", releasetest.TarGz(t, "MuxOS-2.0.0", map[string]releasetest.File{
		"apps/updater/muxos-updater.py": {Body: "v2 updater\n"},
	}))
	require.NoError(t, fs.MkdirAll("/usr/bin", 0755))
	require.NoError(t, afero.WriteFile(fs, "/usr/bin/muxos-updater", []byte("v1 updater\n"), 0755))

	out, stdout, err := serve(t, h, `{"action":"install","ref":"v2.0.0"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Items)
	var resp model.Response
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, model.UpdateID("20250506-070809"), resp.UpdateID)

	_, stdout, err = serve(t, h, `{"action":"list"}`)
	require.NoError(t, err)
	assert.Contains(t, stdout, `"update_id":"20250506-070809"`)

	out, stdout, err = serve(t, h, `{"action":"rollback","update_id":"20250506-070809"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Items)
	assert.JSONEq(t, `{"ok":true,"update_id":"20250506-070809","result":{"update_id":"20250506-070809","restored":["/usr/bin/muxos-updater"]}}`, stdout)

	data, err := afero.ReadFile(fs, "/usr/bin/muxos-updater")
	require.NoError(t, err)
	assert.Equal(t, "v1 updater\n", string(data))

	_, stdout, err = serve(t, h, `{"action":"verify"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true,"entries":4}`, stdout)
}

func TestServe_UpdateErrors(t *testing.T) {
	h, _, _ := updateHandler(t)

	cases := []struct {
		name    string
		request string
		code    *errclass.HelperError
		exit    int
	}{
		{"missing ref", `{"action":"install"}`, errclass.ErrRefInvalid, 2},
		{"branch ref", `{"action":"install","ref":"main"}`, errclass.ErrRefInvalid, 2},
		{"missing update id", `{"action":"rollback"}`, errclass.ErrInvalidRequest, 2},
		{"unknown update id", `{"action":"rollback","update_id":"20200101-000000"}`, errclass.ErrUnknownUpdate, 1},
		{"missing action", `{}`, errclass.ErrInvalidRequest, 2},
		{"security action", `{"action":"toggle"}`, errclass.ErrInvalidRequest, 2},
		{"release not found", `{"action":"install","ref":"v9.0.0"}`, errclass.ErrTransport, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, stdout, err := serve(t, h, tc.request)
			require.ErrorIs(t, err, tc.code)
			assert.Equal(t, tc.exit, errclass.ExitCode(err))
			assert.Empty(t, stdout)
		})
	}
}
