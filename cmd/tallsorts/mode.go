// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/tallsorts/tallsorts/internal/app"
	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/server"
	"github.com/tallsorts/tallsorts/internal/telemetry"
	"github.com/tallsorts/tallsorts/internal/version"
)

// loadModeConfig parses the flags of a mode and resolves its configuration.
func loadModeConfig(mode string, args []string, stderr io.Writer) (config.AppConfig, int, error) {
	fs := newFlagSet("tallsorts "+mode, stderr)
	configPath := fs.String("config", "", "path to config file (YAML)")
	registerModeFlags(fs, mode)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return config.AppConfig{}, 0, err
		}
		return config.AppConfig{}, 2, err
	}
	if fs.NArg() > 0 {
		return config.AppConfig{}, 2, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	overrides := append([]config.Override{func(c *config.AppConfig) { c.Mode = mode }}, fs.overrides()...)
	cfg, err := config.NewLoader(*configPath, version.Version).Load(overrides...)
	if err != nil {
		return cfg, 1, err
	}
	return cfg, 0, nil
}

func runMode(ctx context.Context, mode string, args []string, _, stderr io.Writer) int {
	cfg, code, err := loadModeConfig(mode, args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return code
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		Output:  stderr,
		Service: cfg.LogService,
		Version: cfg.Version,
		Console: cfg.LogFormat == "console",
	})
	logger := log.WithComponent("cli")

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise tracing")
		return 1
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialise")
		return 1
	}
	defer func() { _ = a.Close() }()

	if mode == config.ModeServe {
		err = serve(ctx, cfg, a)
	} else {
		err = a.Run(ctx)
	}
	if err != nil {
		// the run itself already logged the failure
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg config.AppConfig, a *app.App) error {
	logger := log.WithComponent("cli")
	models, err := server.NewModelHolder(cfg.ModelPath, cfg.Threshold)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldModelPath, cfg.ModelPath).Msg("failed to load model")
		return err
	}
	if err := server.New(cfg, models, a.Annotation(), a.Store()).Run(ctx); err != nil {
		logger.Error().Err(err).Msg("prediction API stopped")
		return err
	}
	return nil
}
