// SPDX-License-Identifier: MIT

// Package app wires configuration, inputs and outputs around training and
// prediction runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tallsorts/tallsorts/internal/annotation"
	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/metrics"
	"github.com/tallsorts/tallsorts/internal/store"
	"github.com/tallsorts/tallsorts/internal/telemetry"
)

const tracerName = "tallsorts/app"

// ErrNoGenesLeft is returned when relabelling removes every gene.
var ErrNoGenesLeft = errors.New("no genes left after symbol conversion")

// App runs one configured mode.
type App struct {
	cfg   config.AppConfig
	ann   *annotation.Annotation
	store *store.SqliteStore
}

// New prepares an App, loading the annotation and opening the run registry
// when they are configured.
func New(ctx context.Context, cfg config.AppConfig) (*App, error) {
	a := &App{cfg: cfg}
	if cfg.Annotation != "" {
		ann, err := annotation.Load(cfg.Annotation)
		if err != nil {
			return nil, fmt.Errorf("load annotation: %w", err)
		}
		a.ann = ann
	}
	if cfg.StorePath != "" {
		s, err := store.Open(ctx, cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		a.store = s
	}
	return a, nil
}

// Store returns the run registry, or nil when none is configured.
func (a *App) Store() *store.SqliteStore { return a.store }

// Annotation returns the loaded gene annotation, or nil.
func (a *App) Annotation() *annotation.Annotation { return a.ann }

// Close releases the run registry.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Run dispatches to the configured mode.
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Mode {
	case config.ModePredict:
		return a.RunPredict(ctx)
	case config.ModeTrain:
		return a.RunTrain(ctx)
	default:
		return fmt.Errorf("mode %q is not a batch mode", a.cfg.Mode)
	}
}

// tracked wraps a run with its registry entry, span, metrics and logging.
// fn returns the number of samples it processed.
func (a *App) tracked(ctx context.Context, mode string, fn func(ctx context.Context, runID string) (int, error)) (err error) {
	start := time.Now()
	var runID string
	if a.store != nil {
		r, berr := a.store.BeginRun(ctx, mode, a.cfg.ModelPath, a.cfg.Destination)
		if berr != nil {
			return berr
		}
		runID = r.ID
	}
	if runID != "" {
		ctx = log.ContextWithRunID(ctx, runID)
	}
	logger := log.WithComponentFromContext(ctx, "app")
	ctx = logger.WithContext(ctx)

	ctx, span := telemetry.Start(ctx, tracerName, "run."+mode, telemetry.RunAttributes(runID, mode)...)
	samples := 0
	defer func() {
		telemetry.End(span, err)
		metrics.RecordRun(mode, err, time.Since(start))
		if a.store != nil {
			// the run context may already be cancelled
			if ferr := a.store.FinishRun(context.WithoutCancel(ctx), runID, samples, err); ferr != nil {
				logger.Warn().Err(ferr).Msg("failed to finish run record")
			}
		}
		if werr := metrics.WriteTextfile(a.cfg.MetricsTextfile); werr != nil {
			logger.Warn().Err(werr).Str(log.FieldPath, a.cfg.MetricsTextfile).Msg("failed to write metrics textfile")
		}
		level := zerolog.InfoLevel
		if err != nil {
			level = zerolog.ErrorLevel
		}
		logger.WithLevel(level).Err(err).
			Str(log.FieldMode, mode).
			Int(log.FieldSamples, samples).
			Dur("took", time.Since(start)).
			Msg("run finished")
	}()

	logger.Info().Str(log.FieldMode, mode).Msg("run started")
	samples, err = fn(ctx, runID)
	return err
}

// LoadCounts reads the configured counts matrix and relabels symbols.
func (a *App) LoadCounts(ctx context.Context) (*matrix.Matrix, error) {
	counts, err := matrix.ReadFile(a.cfg.Samples, a.cfg.GenesByRows)
	if err != nil {
		return nil, fmt.Errorf("load samples: %w", err)
	}
	return a.Relabel(ctx, counts)
}

// Relabel converts a symbol-labelled matrix to Ensembl IDs, dropping symbols
// that cannot be resolved. Ensembl-labelled matrices are returned unchanged.
func (a *App) Relabel(ctx context.Context, counts *matrix.Matrix) (*matrix.Matrix, error) {
	if a.cfg.GeneLabels != config.GeneLabelsSymbol {
		return counts, nil
	}
	if a.ann == nil {
		return nil, errors.New("gene symbols require an annotation file")
	}
	return RelabelSymbols(ctx, counts, a.ann)
}

// RelabelSymbols converts the gene symbols of counts to Ensembl IDs.
func RelabelSymbols(ctx context.Context, counts *matrix.Matrix, ann *annotation.Annotation) (*matrix.Matrix, error) {
	conv := ann.ConvertSymbols(counts.Genes)
	log.FromContext(ctx).Info().
		Str(log.FieldComponent, "app").
		Int("confirmed", len(conv.Confirmed)).
		Int("unconfirmed", len(conv.Unconfirmed)).
		Msgf("Ensembl IDs found for %d out of %d genes", len(conv.Confirmed), len(counts.Genes))

	out, err := counts.DropGenes(conv.Unconfirmed).RenameGenes(conv.Confirmed)
	if err != nil {
		return nil, err
	}
	if out.Cols() == 0 {
		return nil, ErrNoGenesLeft
	}
	return out, nil
}
