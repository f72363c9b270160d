// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"fmt"

	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/metrics"
	"github.com/tallsorts/tallsorts/internal/model"
	"github.com/tallsorts/tallsorts/internal/report"
)

// RunPredict scores the configured samples with the configured model and
// writes one output directory per level.
func (a *App) RunPredict(ctx context.Context) error {
	return a.tracked(ctx, config.ModePredict, func(ctx context.Context, runID string) (int, error) {
		m, err := LoadModel(a.cfg)
		if err != nil {
			return 0, err
		}
		counts, err := a.LoadCounts(ctx)
		if err != nil {
			return 0, err
		}

		res, err := Predict(ctx, m, counts)
		if err != nil {
			return 0, err
		}
		if a.store != nil {
			if err := a.store.RecordCalls(ctx, runID, res); err != nil {
				return len(res.Samples), err
			}
		}

		dirs, err := report.Write(ctx, a.cfg.Destination, res, report.Options{
			NoFigures: a.cfg.NoFigures,
			Seed:      a.cfg.FigureSeed,
		})
		if err != nil {
			return len(res.Samples), fmt.Errorf("write results: %w", err)
		}
		log.FromContext(ctx).Info().
			Str(log.FieldDestination, a.cfg.Destination).
			Int("levels", len(dirs)).
			Msg("finished, thanks for using tallsorts")
		return len(res.Samples), nil
	})
}

// LoadModel reads the configured model and applies the configured threshold.
func LoadModel(cfg config.AppConfig) (*model.Model, error) {
	m, err := model.Load(cfg.ModelPath)
	if err != nil {
		return nil, err
	}
	if cfg.Threshold > 0 && cfg.Threshold < 1 {
		m.Threshold = cfg.Threshold
	}
	return m, nil
}

// Predict runs the model and records per-call metrics.
func Predict(ctx context.Context, m *model.Model, counts *matrix.Matrix) (*model.Results, error) {
	if missing := counts.Missing(m.Genes()); len(missing) > 0 {
		log.FromContext(ctx).Warn().
			Int("missing_genes", len(missing)).
			Int("model_genes", len(m.Genes())).
			Msg("model genes absent from samples are treated as zero counts")
	}
	res, err := m.Predict(ctx, counts)
	if err != nil {
		return nil, err
	}
	metrics.AddSamplesPredicted(len(res.Samples))
	for _, level := range res.Levels {
		for _, c := range level.Calls {
			metrics.IncCall(level.Name, c.Pred)
			if c.MultiCall {
				metrics.IncMultiCall(level.Name)
			}
		}
	}
	return res, nil
}
