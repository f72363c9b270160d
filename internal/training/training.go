// SPDX-License-Identifier: MIT

// Package training fits a custom hierarchical classifier from labelled counts.
package training

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/logreg"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/metrics"
	"github.com/tallsorts/tallsorts/internal/model"
	"github.com/tallsorts/tallsorts/internal/samplesheet"
	"github.com/tallsorts/tallsorts/internal/scaling"
	"github.com/tallsorts/tallsorts/internal/telemetry"
)

const tracerName = "tallsorts/training"

// ErrNoSamples is returned when a parent label has no positive samples to
// train its children on.
var ErrNoSamples = errors.New("training: no samples for parent")

// Inputs are the data a model is trained from.
type Inputs struct {
	Counts    *matrix.Matrix
	Sheet     *samplesheet.Sheet
	Hierarchy *hierarchy.Hierarchy
	// Params holds per-label solver parameters; missing labels use
	// logreg.DefaultParams.
	Params map[string]logreg.Params
	// Filter enables gene filtering before each scaler is fitted.
	Filter bool
	// Candidates restricts filtered genes to eligible features. Nil keeps
	// every gene in Counts.
	Candidates scaling.CandidateFilter
}

// Options tune how training runs.
type Options struct {
	// Workers bounds concurrent scaler and classifier fits. Zero or less
	// means GOMAXPROCS.
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Train validates the inputs, fits one scaler per parent label and one
// classifier per label, and assembles the model. The result does not depend
// on Options.Workers.
func Train(ctx context.Context, in Inputs, opts Options) (*model.Model, error) {
	logger := log.WithComponentFromContext(ctx, "training")
	ctx, span := telemetry.Start(ctx, tracerName, "training.train")
	var err error
	defer func() { telemetry.End(span, err) }()

	if in.Counts == nil || in.Sheet == nil || in.Hierarchy == nil {
		err = errors.New("training: counts, sample sheet and hierarchy are required")
		return nil, err
	}
	if err = samplesheet.CheckTrainingInputs(in.Counts, in.Sheet, in.Hierarchy); err != nil {
		return nil, err
	}

	logger.Info().
		Str(log.FieldEvent, "training.start").
		Int(log.FieldSamples, in.Counts.Rows()).
		Int(log.FieldGenes, in.Counts.Cols()).
		Int("labels", len(in.Hierarchy.Labels())).
		Int("workers", opts.workers()).
		Msg("training classifier, this could take some time")

	var scalers map[string]*scaling.Scaler
	if scalers, err = fitScalers(ctx, in, opts.workers()); err != nil {
		return nil, err
	}
	var classifiers map[string]*logreg.Model
	if classifiers, err = fitClassifiers(ctx, in, scalers, opts.workers()); err != nil {
		return nil, err
	}

	var m *model.Model
	if m, err = model.New(in.Hierarchy, scalers, classifiers); err != nil {
		return nil, err
	}
	logger.Info().Str(log.FieldEvent, "training.done").Strs("levels", m.Levels()).Msg("training finished")
	return m, nil
}

// subset returns the counts a parent's scaler and its children are trained on.
func subset(in Inputs, parent string) (*matrix.Matrix, error) {
	if parent == hierarchy.RootParent {
		return in.Counts, nil
	}
	ids := in.Sheet.PositiveSamples(parent, in.Counts.Samples)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSamples, parent)
	}
	return in.Counts.SubsetSamples(ids)
}

// minSubtype is the smallest positive count among the parent's children
// within counts.
func minSubtype(in Inputs, counts *matrix.Matrix, parent string) int {
	smallest := -1
	for _, label := range in.Hierarchy.Children(parent) {
		n := len(in.Sheet.PositiveSamples(label, counts.Samples))
		if smallest < 0 || n < smallest {
			smallest = n
		}
	}
	return max(smallest, 0)
}

func fitScalers(ctx context.Context, in Inputs, workers int) (map[string]*scaling.Scaler, error) {
	parents := in.Hierarchy.Parents()
	out := make(map[string]*scaling.Scaler, len(parents))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, parent := range parents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := fitScaler(gctx, in, parent)
			if err != nil {
				return fmt.Errorf("scaler %q: %w", parent, err)
			}
			mu.Lock()
			out[parent] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fitScaler(ctx context.Context, in Inputs, parent string) (s *scaling.Scaler, err error) {
	counts, err := subset(in, parent)
	if err != nil {
		return nil, err
	}
	genes := counts.Genes
	if in.Filter {
		genes = scaling.FilterGenes(counts, in.Candidates, minSubtype(in, counts, parent))
	}
	_, span := telemetry.Start(ctx, tracerName, "training.scaler",
		telemetry.ScalerAttributes(parent, counts.Rows(), len(genes))...)
	defer func() { telemetry.End(span, err) }()

	s, err = scaling.Fit(counts, genes)
	if err != nil {
		return nil, err
	}
	metrics.RecordScalerGenes(parent, len(genes))
	log.FromContext(ctx).Debug().
		Str(log.FieldComponent, "training").
		Str(log.FieldParent, parent).
		Int(log.FieldSamples, counts.Rows()).
		Int(log.FieldGenes, len(genes)).
		Msg("fitted scaler")
	return s, nil
}

func fitClassifiers(ctx context.Context, in Inputs, scalers map[string]*scaling.Scaler, workers int) (map[string]*logreg.Model, error) {
	labels := in.Hierarchy.Labels()
	out := make(map[string]*logreg.Model, len(labels))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, label := range labels {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := fitLabel(gctx, in, scalers, label)
			if err != nil {
				return fmt.Errorf("label %q: %w", label, err)
			}
			mu.Lock()
			out[label] = c
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func fitLabel(ctx context.Context, in Inputs, scalers map[string]*scaling.Scaler, label string) (c *logreg.Model, err error) {
	parent, err := in.Hierarchy.ParentOf(label)
	if err != nil {
		return nil, err
	}
	counts, err := subset(in, parent)
	if err != nil {
		return nil, err
	}
	params, ok := in.Params[label]
	if !ok {
		params = logreg.DefaultParams()
	}

	ctx, span := telemetry.Start(ctx, tracerName, "training.label")
	defer func() { telemetry.End(span, err) }()

	start := time.Now()
	X := scalers[parent].Transform(counts).Values
	y := in.Sheet.Targets(label, counts.Samples)
	c, err = logreg.Fit(ctx, X, y, params)
	if err != nil {
		return nil, err
	}
	metrics.RecordLabelFit(time.Since(start), c.Converged)
	span.SetAttributes(telemetry.FitAttributes(label, c.Iterations, c.NonZero(), c.Converged)...)

	level := zerolog.InfoLevel
	if !c.Converged {
		level = zerolog.WarnLevel
	}
	log.FromContext(ctx).WithLevel(level).
		Str(log.FieldComponent, "training").
		Str(log.FieldLabel, label).
		Str(log.FieldParent, parent).
		Int("iterations", c.Iterations).
		Int("nonzero", c.NonZero()).
		Bool("converged", c.Converged).
		Dur("took", time.Since(start)).
		Msgf("trained label %s", label)
	return c, nil
}
