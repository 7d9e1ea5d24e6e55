package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/internal/backup"
	"github.com/muxos/muxos-helper/internal/executor"
	"github.com/muxos/muxos-helper/internal/helper"
	"github.com/muxos/muxos-helper/internal/journal"
	"github.com/muxos/muxos-helper/internal/security"
	"github.com/muxos/muxos-helper/internal/update"
	"github.com/muxos/muxos-helper/internal/update/release"
	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/metrics"
)

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout

	// privileged is replaced in tests.
	privileged = helper.IsRoot
)

var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Security helper: apply toggles read from stdin (root)",
	Long: `Read one JSON request from stdin and apply it.

Actions:
  toggle   {"feature": "firewall", "enabled": true}   (default)
  batch    {"action": "batch", "toggles": [...]}
  verify   {"action": "verify"}

Exit status is 0 on success, 1 when the operation failed and 2 when the
request was refused.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHelper(cmd.Context(), helper.KindSecurity)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update helper: install, roll back or list releases (root)",
	Long: `Read one JSON request from stdin and apply it.

Actions:
  install   {"action": "install", "ref": "v1.2.0", "repo": "MushhDev/MuxOS"}
  rollback  {"action": "rollback", "update_id": "20240101-120000"}
  list      {"action": "list"}
  verify    {"action": "verify"}`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHelper(cmd.Context(), helper.KindUpdate)
	},
}

func init() {
	rootCmd.AddCommand(securityCmd)
	rootCmd.AddCommand(updateCmd)
}

func runHelper(ctx context.Context, kind helper.Kind) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, string(kind))
	if err != nil {
		return err
	}
	defer logger.Sync()

	h, err := buildHandler(cfg, kind, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	out, err := h.Serve(ctx, stdin, stdout)
	if err != nil {
		logger.Info("request failed",
			zap.String("code", errclass.Code(err)),
			zap.Int("exit", errclass.ExitCode(err)),
			zap.Error(err))
	}
	recordMetrics(cfg, kind, out, start, err, logger)
	return err
}

func buildHandler(cfg *config.Config, kind helper.Kind, logger *zap.Logger) (*helper.Handler, error) {
	fs := afero.NewOsFs()
	opts := helper.Options{
		Kind:       kind,
		Privileged: privileged,
		Logger:     logger,
	}

	switch kind {
	case helper.KindSecurity:
		dir := cfg.SecurityDir()
		j := journal.New(filepath.Join(dir, "journal.log"), filepath.Join(dir, "journal.key"), logger)
		opts.Journal = j
		opts.Security = security.New(security.Deps{
			Fs:      fs,
			Exec:    executor.NewOS(),
			Backups: backup.NewStore(fs, filepath.Join(dir, "backups")),
			Journal: j,
			Config:  cfg.Security,
			Logger:  logger,
		})
	case helper.KindUpdate:
		dir := cfg.UpdatesDir()
		j := journal.New(filepath.Join(dir, "journal.log"), filepath.Join(dir, "journal.key"), logger)
		fetcher, err := release.NewFetcher(cfg.Update, logger)
		if err != nil {
			return nil, err
		}
		opts.Journal = j
		opts.Updates = update.New(update.Options{
			Fs:          fs,
			StateDir:    filepath.Join(dir, "state"),
			MaxBytes:    cfg.Update.MaxArchiveBytes,
			DefaultRepo: cfg.Update.DefaultRepo,
			Source:      fetcher,
			Backups:     backup.NewStore(fs, filepath.Join(dir, "backups")),
			Journal:     j,
			Logger:      logger,
		})
	default:
		return nil, fmt.Errorf("unknown helper %q", kind)
	}
	return helper.New(opts), nil
}

func recordMetrics(cfg *config.Config, kind helper.Kind, out *helper.Outcome, start time.Time, err error, logger *zap.Logger) {
	if cfg.Metrics.TextfileDir == "" || out == nil {
		return
	}
	action := string(out.Action)
	if action == "" {
		action = "unknown"
	}
	rec := metrics.NewRecorder(string(kind))
	rec.Observe(action, start, out.Items, err)
	if werr := rec.WriteTextfile(cfg.Metrics.TextfileDir, action); werr != nil {
		logger.Warn("write metrics", zap.Error(werr))
	}
}
