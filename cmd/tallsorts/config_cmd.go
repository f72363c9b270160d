// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/version"
)

func runConfigCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		return runConfigValidate(args[1:], stdout, stderr)
	case "dump":
		return runConfigDump(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printConfigUsage(stderr)
		return 2
	}
}

func printConfigUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  tallsorts config validate -f config.yaml [-mode predict|train|serve]")
	_, _ = fmt.Fprintln(w, "  tallsorts config dump -f config.yaml [-mode ...] [-format yaml|json]")
}

// loadForCLI resolves defaults, file and environment for an optional mode.
func loadForCLI(name string, args []string, stderr io.Writer, extra func(*flag.FlagSet)) (config.AppConfig, string, int, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var file, mode string
	fs.StringVar(&file, "file", "", "path to YAML configuration file")
	fs.StringVar(&file, "f", "", "path to YAML configuration file (shorthand)")
	fs.StringVar(&mode, "mode", "", "validate for this mode instead of the configured one")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return config.AppConfig{}, "", 2, err
	}

	path := strings.TrimSpace(file)
	if path == "" {
		return config.AppConfig{}, "", 2, fmt.Errorf("--file is required")
	}

	var overrides []config.Override
	if mode != "" {
		overrides = append(overrides, func(c *config.AppConfig) { c.Mode = mode })
	}
	cfg, err := config.NewLoader(path, version.Version).Load(overrides...)
	if err != nil {
		return cfg, path, 1, err
	}
	return cfg, path, 0, nil
}

func runConfigValidate(args []string, stdout, stderr io.Writer) int {
	cfg, path, code, err := loadForCLI("tallsorts config validate", args, stderr, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", path, err)
		return code
	}
	_, _ = fmt.Fprintf(stdout, "%s is valid for %s\n", path, cfg.Mode)
	return 0
}

func runConfigDump(args []string, stdout, stderr io.Writer) int {
	var format string
	cfg, path, code, err := loadForCLI("tallsorts config dump", args, stderr, func(fs *flag.FlagSet) {
		fs.StringVar(&format, "format", "yaml", "output format: yaml or json")
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error in %s:\n  %v\n", path, err)
		return code
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(fileConfigFromAppConfig(cfg)); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to encode YAML: %v\n", err)
			return 1
		}
		_ = enc.Close()
		return 0
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(cfg); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unsupported format: %s (use yaml or json)\n", format)
		return 2
	}
}

// fileConfigFromAppConfig renders the effective configuration in the file
// layout, so a dump can be loaded back.
func fileConfigFromAppConfig(cfg config.AppConfig) config.FileConfig {
	return config.FileConfig{
		Mode:        cfg.Mode,
		Samples:     cfg.Samples,
		GenesByRows: &cfg.GenesByRows,
		GeneLabels:  cfg.GeneLabels,
		Annotation:  cfg.Annotation,
		Predict: config.PredictFileConfig{
			Model:       cfg.ModelPath,
			Destination: cfg.Destination,
			Threshold:   &cfg.Threshold,
			NoFigures:   &cfg.NoFigures,
			FigureSeed:  &cfg.FigureSeed,
		},
		Train: config.TrainFileConfig{
			SampleSheet: cfg.SampleSheet,
			Hierarchy:   cfg.Hierarchy,
			Params:      cfg.TrainingParams,
			Cores:       &cfg.TrainingCores,
			Filter:      &cfg.Filter,
			Name:        cfg.ModelName,
		},
		Log: config.LogFileConfig{
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Service: cfg.LogService,
		},
		Metrics: config.MetricsFileConfig{Textfile: cfg.MetricsTextfile},
		Tracing: config.TracingFileConfig{
			Enabled:      &cfg.Telemetry.Enabled,
			Exporter:     cfg.Telemetry.Exporter,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: &cfg.Telemetry.SamplingRate,
			Environment:  cfg.Telemetry.Environment,
		},
		Store: config.StoreFileConfig{Path: cfg.StorePath},
		Server: config.ServerFileConfig{
			ListenAddr:      cfg.Server.ListenAddr,
			RateLimit:       &cfg.Server.RateLimit,
			MaxBodyBytes:    &cfg.Server.MaxBodyBytes,
			ReadTimeout:     cfg.Server.ReadTimeout.String(),
			WriteTimeout:    cfg.Server.WriteTimeout.String(),
			ShutdownTimeout: cfg.Server.ShutdownTimeout.String(),
			WatchModel:      &cfg.Server.WatchModel,
		},
	}
}
