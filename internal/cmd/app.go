package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/driftguard/internal/config"
	"github.com/Iron-Ham/driftguard/internal/engine"
	"github.com/Iron-Ham/driftguard/internal/errors"
	"github.com/Iron-Ham/driftguard/internal/logging"
)

// app bundles what every command needs.
type app struct {
	root   string
	cfg    *config.Config
	logger *logging.Logger
	engine *engine.Engine
}

func (a *app) Close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// newApp loads configuration, opens the debug log and builds an engine.
// The engine is not hydrated; call restore or Initialize.
func newApp(cmd *cobra.Command, opts ...engine.Option) (*app, error) {
	root, err := projectRoot(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logDir := filepath.Join(cfg.State.ResolveStateDir(root), "logs")
		l, err := logging.NewLoggerWithRotation(logDir, cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		})
		if err == nil {
			logger = l.With("command", cmd.Name())
		}
	}

	opts = append([]engine.Option{engine.WithLogger(logger)}, opts...)
	eng, err := engine.New(root, cfg, opts...)
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return &app{root: root, cfg: cfg, logger: logger, engine: eng}, nil
}

// openSession builds the app and hydrates or creates the session.
func openSession(cmd *cobra.Command) (*app, error) {
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := a.engine.Initialize(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// withSession runs fn against a hydrated engine and prints its result.
func withSession[T any](cmd *cobra.Command, fn func(ctx context.Context, eng *engine.Engine) (T, error), human func(io.Writer, T)) error {
	a, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(cmd.Context(), a.engine)
	if err != nil {
		return withHint(err)
	}
	return printResult(cmd, res, human)
}

// printResult writes v as JSON with --json, otherwise via human.
func printResult[T any](cmd *cobra.Command, v T, human func(io.Writer, T)) error {
	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Root().PersistentFlags().GetBool("json")
	if asJSON || human == nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(out, v)
	return nil
}

// withHint appends remediation guidance to precondition errors.
func withHint(err error) error {
	if hint := errors.Remediation(err); hint != "" {
		return fmt.Errorf("%w\nhint: %s", err, hint)
	}
	return err
}
