// SPDX-License-Identifier: MIT

// Package metrics exposes Prometheus metrics for training and prediction runs.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tallsorts_runs_total",
		Help: "Total number of runs by mode and outcome",
	}, []string{"mode", "outcome"}) // mode=train|predict|serve, outcome=success|failure

	runDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tallsorts_run_duration_seconds",
		Help:    "Wall time of a complete run",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"mode"})

	// Prediction metrics
	samplesPredicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tallsorts_samples_predicted_total",
		Help: "Total number of samples scored by the classifier",
	})

	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tallsorts_calls_total",
		Help: "Predicted calls by level and label",
	}, []string{"level", "label"})

	multiCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tallsorts_multi_calls_total",
		Help: "Samples with more than one label above threshold, by level",
	}, []string{"level"})

	// Training metrics
	labelFitDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tallsorts_label_fit_duration_seconds",
		Help:    "Time spent fitting one label classifier",
		Buckets: prometheus.DefBuckets,
	})

	labelFitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tallsorts_label_fits_total",
		Help: "Label classifier fits by convergence outcome",
	}, []string{"outcome"}) // outcome=converged|max_iter

	scalerGenes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tallsorts_scaler_genes",
		Help: "Genes retained by the scaler of each parent label (last training run)",
	}, []string{"parent"})

	// Model metrics
	modelReloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tallsorts_model_reloads_total",
		Help: "Model reload attempts by outcome",
	}, []string{"outcome"})

	modelLabels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tallsorts_model_labels",
		Help: "Number of labels in the active model",
	})
)

// RecordRun records the outcome and duration of a run.
func RecordRun(mode string, err error, d time.Duration) {
	mode = normalizeMode(mode)
	runsTotal.WithLabelValues(mode, outcome(err)).Inc()
	runDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

func AddSamplesPredicted(n int) { samplesPredicted.Add(float64(n)) }

func IncCall(level, label string) { callsTotal.WithLabelValues(level, label).Inc() }

func IncMultiCall(level string) { multiCallsTotal.WithLabelValues(level).Inc() }

// RecordLabelFit records one classifier fit.
func RecordLabelFit(d time.Duration, converged bool) {
	labelFitDurationSeconds.Observe(d.Seconds())
	if converged {
		labelFitsTotal.WithLabelValues("converged").Inc()
	} else {
		labelFitsTotal.WithLabelValues("max_iter").Inc()
	}
}

func RecordScalerGenes(parent string, n int) { scalerGenes.WithLabelValues(parent).Set(float64(n)) }

// RecordModelReload records a model (re)load and the label count on success.
func RecordModelReload(labels int, err error) {
	modelReloadsTotal.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		modelLabels.Set(float64(labels))
	}
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func normalizeMode(mode string) string {
	switch m := strings.ToLower(strings.TrimSpace(mode)); m {
	case "train", "predict", "serve":
		return m
	default:
		return "unknown"
	}
}
