package cli

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/pkg/config"
	"github.com/muxos/muxos-helper/pkg/logging"
)

// loadConfig reads the file named by --config, falling back to defaults
// when it does not exist.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the invocation logger. Every line carries the
// invocation id so one helper run can be followed through the log file.
// With a log file configured, standard error carries only the final
// diagnostic.
func newLogger(cfg *config.Config, helper string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Logging.File != "" {
		logger, err = logging.NewWithWriter(cfg.Logging, io.Discard)
	} else {
		logger, err = logging.New(cfg.Logging)
	}
	if err != nil {
		return nil, err
	}
	return logger.With(
		zap.String("helper", helper),
		zap.String("invocation", uuid.NewString()),
	), nil
}
