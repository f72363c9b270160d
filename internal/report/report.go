// SPDX-License-Identifier: MIT

// Package report writes per-level prediction outputs: probability, call and
// multi-call tables plus probability scatter and waterfall figures.
package report

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/model"
)

// Output file names within a level directory.
const (
	ProbabilitiesFile = "probabilities.csv"
	PredictionsFile   = "predictions.csv"
	MultiCallsFile    = "multi_calls.csv"
	ScatterSVGFile    = "prob_scatters.svg"
	ScatterHTMLFile   = "prob_scatters.html"
	WaterfallSVGFile  = "waterfalls.svg"
	WaterfallHTMLFile = "waterfalls.html"
)

// Options control which outputs are produced.
type Options struct {
	// NoFigures skips the SVG and HTML figures.
	NoFigures bool
	// Seed feeds the scatter jitter. Equal seeds give identical figures.
	Seed uint64
}

// CleanLabel makes a level or label name safe to use as a directory name.
func CleanLabel(label string) string {
	return strings.ReplaceAll(label, "/", "_")
}

// Write stores every level of res under dest, one directory per level. It
// returns the directories written, in level order.
func Write(ctx context.Context, dest string, res *model.Results, opts Options) ([]string, error) {
	logger := log.WithComponentFromContext(ctx, "report")
	var dirs []string
	for _, level := range res.Levels {
		if err := ctx.Err(); err != nil {
			return dirs, err
		}
		if len(level.Samples) == 0 {
			continue
		}
		dir := filepath.Join(dest, CleanLabel(level.Name))
		if err := WriteLevel(dir, level, res.Threshold, opts); err != nil {
			return dirs, fmt.Errorf("level %s: %w", level.Name, err)
		}
		logger.Info().
			Str(log.FieldLevel, level.Name).
			Int(log.FieldSamples, len(level.Samples)).
			Str(log.FieldPath, dir).
			Msg("wrote level outputs")
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// WriteLevel writes the tables and figures of one level into dir.
func WriteLevel(dir string, level *model.Level, threshold float64, opts Options) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create level dir: %w", err)
	}

	var buf bytes.Buffer
	if err := WriteProbabilities(&buf, level); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, ProbabilitiesFile), buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	if err := WritePredictions(&buf, level); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, PredictionsFile), buf.Bytes()); err != nil {
		return err
	}

	buf.Reset()
	wrote, err := WriteMultiCalls(&buf, level)
	if err != nil {
		return err
	}
	if wrote {
		if err := writeFile(filepath.Join(dir, MultiCallsFile), buf.Bytes()); err != nil {
			return err
		}
	}

	if opts.NoFigures {
		return nil
	}
	return writeFigures(dir, level, threshold, opts.Seed)
}

func writeFigures(dir string, level *model.Level, threshold float64, seed uint64) error {
	figs := []struct {
		svg, html string
		title     string
		render    func() ([]byte, error)
	}{
		{ScatterSVGFile, ScatterHTMLFile, "Sample-wise classifier probabilities", func() ([]byte, error) {
			return ScatterSVG(level, threshold, seed)
		}},
		{WaterfallSVGFile, WaterfallHTMLFile, "Waterfall distribution", func() ([]byte, error) {
			return WaterfallSVG(level, threshold)
		}},
	}
	for _, f := range figs {
		svg, err := f.render()
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, f.svg), svg); err != nil {
			return err
		}
		page, err := htmlPage(f.title+": "+level.Name, svg)
		if err != nil {
			return err
		}
		if err := writeFile(filepath.Join(dir, f.html), page); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
