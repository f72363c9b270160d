// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/logreg"
	"github.com/tallsorts/tallsorts/internal/samplesheet"
	"github.com/tallsorts/tallsorts/internal/training"
)

// ModelFileName is the file a training run writes into the destination.
const ModelFileName = "custom.json.gz"

// RunTrain fits a custom model from the configured inputs and saves it to
// <destination>/custom.json.gz.
func (a *App) RunTrain(ctx context.Context) error {
	return a.tracked(ctx, config.ModeTrain, func(ctx context.Context, _ string) (int, error) {
		logger := log.FromContext(ctx)
		if err := os.MkdirAll(a.cfg.Destination, 0o750); err != nil {
			return 0, fmt.Errorf("create destination: %w", err)
		}
		logger.Info().Msg("checking validity of input files")

		counts, err := a.LoadCounts(ctx)
		if err != nil {
			return 0, err
		}
		sheet, err := samplesheet.Load(a.cfg.SampleSheet)
		if err != nil {
			return counts.Rows(), fmt.Errorf("load sample sheet: %w", err)
		}
		h, err := hierarchy.Load(a.cfg.Hierarchy)
		if err != nil {
			return counts.Rows(), fmt.Errorf("load hierarchy: %w", err)
		}
		params, err := logreg.LoadParams(a.cfg.TrainingParams, h.Labels())
		if err != nil {
			return counts.Rows(), fmt.Errorf("load training parameters: %w", err)
		}

		in := training.Inputs{
			Counts:    counts,
			Sheet:     sheet,
			Hierarchy: h,
			Params:    params,
			Filter:    a.cfg.Filter,
		}
		if a.ann != nil {
			in.Candidates = a.ann
		} else if a.cfg.Filter {
			logger.Warn().Msg("no annotation configured, gene filtering uses counts only")
		}

		m, err := training.Train(ctx, in, training.Options{Workers: a.cfg.TrainingCores})
		if err != nil {
			return counts.Rows(), err
		}
		m.Name = a.cfg.ModelName

		path := filepath.Join(a.cfg.Destination, ModelFileName)
		if err := m.Save(path); err != nil {
			return counts.Rows(), err
		}
		logger.Info().Str(log.FieldModelPath, path).Msg("finished, the custom model is in the destination directory")
		return counts.Rows(), nil
	})
}
