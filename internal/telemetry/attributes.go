// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Run attributes
	RunIDKey   = "tallsorts.run_id"
	RunModeKey = "tallsorts.mode"

	// Classifier attributes
	LevelKey   = "classifier.level"
	LabelKey   = "classifier.label"
	ParentKey  = "classifier.parent"
	SamplesKey = "classifier.samples"
	GenesKey   = "classifier.genes"

	// Fit attributes
	IterationsKey = "fit.iterations"
	ConvergedKey  = "fit.converged"
	NonZeroKey    = "fit.nonzero"
)

// RunAttributes creates run-level span attributes.
func RunAttributes(runID, mode string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if mode != "" {
		attrs = append(attrs, attribute.String(RunModeKey, mode))
	}
	return attrs
}

// ScalerAttributes describes fitting the scaler of one parent label.
func ScalerAttributes(parent string, samples, genes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ParentKey, parent),
		attribute.Int(SamplesKey, samples),
		attribute.Int(GenesKey, genes),
	}
}

// FitAttributes describes the outcome of fitting one label.
func FitAttributes(label string, iterations, nonZero int, converged bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(LabelKey, label),
		attribute.Int(IterationsKey, iterations),
		attribute.Int(NonZeroKey, nonZero),
		attribute.Bool(ConvergedKey, converged),
	}
}
