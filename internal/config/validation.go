// SPDX-License-Identifier: MIT

package config

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/tallsorts/tallsorts/internal/validate"
)

// Validate checks cfg for the selected mode using the centralized validation package.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.OneOf("Mode", cfg.Mode, []string{ModePredict, ModeTrain, ModeServe})
	v.OneOf("GeneLabels", cfg.GeneLabels, []string{GeneLabelsEnsembl, GeneLabelsSymbol})
	if cfg.GeneLabels == GeneLabelsSymbol {
		v.File("Annotation", cfg.Annotation)
	} else {
		v.OptionalFile("Annotation", cfg.Annotation)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("LogLevel", "must be a zerolog level (trace, debug, info, warn, error)", cfg.LogLevel)
	}
	v.OneOf("LogFormat", cfg.LogFormat, []string{"console", "json"})

	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	switch cfg.Mode {
	case ModePredict:
		v.File("Samples", cfg.Samples)
		v.File("ModelPath", cfg.ModelPath)
		v.Directory("Destination", cfg.Destination, false)
		validateThreshold(v, cfg.Threshold)
	case ModeTrain:
		v.File("Samples", cfg.Samples)
		v.File("SampleSheet", cfg.SampleSheet)
		v.File("Hierarchy", cfg.Hierarchy)
		v.OptionalFile("TrainingParams", cfg.TrainingParams)
		v.Directory("Destination", cfg.Destination, false)
		v.Positive("TrainingCores", cfg.TrainingCores)
	case ModeServe:
		v.File("ModelPath", cfg.ModelPath)
		v.NotEmpty("Server.ListenAddr", cfg.Server.ListenAddr)
		v.NonNegative("Server.RateLimit", cfg.Server.RateLimit)
		if cfg.Server.MaxBodyBytes <= 0 {
			v.AddError("Server.MaxBodyBytes", "must be positive", cfg.Server.MaxBodyBytes)
		}
		validateThreshold(v, cfg.Threshold)
	}

	return v.Err()
}

// validateThreshold accepts 0, which keeps the threshold stored in the model.
func validateThreshold(v *validate.Validator, t float64) {
	if t != 0 && (t < 0 || t >= 1) {
		v.AddError("Threshold", "must be 0 (use the model's) or strictly between 0 and 1", t)
	}
}
