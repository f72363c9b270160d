// SPDX-License-Identifier: MIT

package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/tallsorts/tallsorts/internal/model"
)

// FormatProb renders a probability rounded to three decimals.
func FormatProb(p float64) string {
	r := math.Round(p*1000) / 1000
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// WriteProbabilities writes the samples x labels probability table.
func WriteProbabilities(w io.Writer, level *model.Level) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Sample"}, level.Labels...)); err != nil {
		return err
	}
	for i, sample := range level.Samples {
		rec := make([]string, 0, len(level.Labels)+1)
		rec = append(rec, sample)
		for _, p := range level.Probs[i] {
			rec = append(rec, FormatProb(p))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write probabilities: %w", err)
	}
	return nil
}

// WritePredictions writes one predicted label per sample.
func WritePredictions(w io.Writer, level *model.Level) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Sample", "Predictions"}); err != nil {
		return err
	}
	for _, c := range level.Calls {
		if err := cw.Write([]string{c.Sample, c.Pred}); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// WriteMultiCalls writes each sample's calls as label/probability pairs,
// padding rows to the widest sample. It writes nothing and reports false
// when the level has no calls.
func WriteMultiCalls(w io.Writer, level *model.Level) (bool, error) {
	width := 0
	for _, c := range level.Calls {
		width = max(width, len(c.Calls))
	}
	if width == 0 {
		return false, nil
	}

	cw := csv.NewWriter(w)
	header := make([]string, 0, 2*width+1)
	header = append(header, "")
	for k := range width {
		header = append(header, fmt.Sprintf("call_%d", k+1), "proba")
	}
	if err := cw.Write(header); err != nil {
		return false, err
	}
	for _, c := range level.Calls {
		rec := make([]string, 1, 2*width+1)
		rec[0] = c.Sample
		for _, lp := range c.Calls {
			rec = append(rec, lp.Label, FormatProb(lp.Prob))
		}
		for len(rec) < 2*width+1 {
			rec = append(rec, "")
		}
		if err := cw.Write(rec); err != nil {
			return false, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return false, fmt.Errorf("write multi calls: %w", err)
	}
	return true, nil
}
