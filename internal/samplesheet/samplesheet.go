// SPDX-License-Identifier: MIT

// Package samplesheet reads the training labels: one row per sample, one
// 0/1 column per subtype label.
package samplesheet

import (
	"errors"
	"fmt"

	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/tabular"
)

// PositiveCutoff is the value above which a sample counts as positive.
const PositiveCutoff = 0.5

var (
	ErrDuplicateLabel      = errors.New("label appears at least twice in the headers of the sample sheet")
	ErrSampleNotInSheet    = errors.New("sample is in the counts matrix but not in the sample sheet")
	ErrLabelNotInHierarchy = errors.New("subtype label is in the sample sheet but not in the hierarchy")
	ErrLabelNotInSheet     = errors.New("subtype label is in the hierarchy but not in the sample sheet")
	ErrParentNegative      = errors.New("sample is positive for a label but negative for its parent")
)

// Sheet holds per-sample label indicators.
type Sheet struct {
	m *matrix.Matrix
}

// Load reads a sample sheet file.
func Load(path string) (*Sheet, error) {
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := FromTable(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// FromTable converts a parsed sample sheet.
func FromTable(t *tabular.Table) (*Sheet, error) {
	seen := make(map[string]struct{}, len(t.Header))
	for _, h := range t.Header[1:] {
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLabel, h)
		}
		seen[h] = struct{}{}
	}
	m, err := matrix.FromTable(t)
	if err != nil {
		return nil, err
	}
	return &Sheet{m: m}, nil
}

// New wraps an indicator matrix (samples x labels).
func New(m *matrix.Matrix) *Sheet { return &Sheet{m: m} }

// Samples returns the sample IDs in file order.
func (s *Sheet) Samples() []string { return s.m.Samples }

// Labels returns the label columns in file order.
func (s *Sheet) Labels() []string { return s.m.Genes }

// Has reports whether sample is listed.
func (s *Sheet) Has(sample string) bool { return s.m.SampleIndex(sample) >= 0 }

// Positive reports whether sample is positive for label.
func (s *Sheet) Positive(sample, label string) bool {
	i, j := s.m.SampleIndex(sample), s.m.GeneIndex(label)
	if i < 0 || j < 0 {
		return false
	}
	return s.m.Values[i][j] > PositiveCutoff
}

// PositiveSamples filters samples to those positive for label, keeping order.
func (s *Sheet) PositiveSamples(label string, samples []string) []string {
	var out []string
	for _, id := range samples {
		if s.Positive(id, label) {
			out = append(out, id)
		}
	}
	return out
}

// Targets returns a 0/1 vector for label over samples.
func (s *Sheet) Targets(label string, samples []string) []float64 {
	out := make([]float64, len(samples))
	for i, id := range samples {
		if s.Positive(id, label) {
			out[i] = 1
		}
	}
	return out
}

// CheckTrainingInputs verifies that counts, sheet and hierarchy agree: every
// counted sample has labels, every label is known on both sides, and a sample
// positive for a label is positive for each of its ancestors.
func CheckTrainingInputs(counts *matrix.Matrix, s *Sheet, h *hierarchy.Hierarchy) error {
	for _, id := range counts.Samples {
		if !s.Has(id) {
			return fmt.Errorf("%w: %q", ErrSampleNotInSheet, id)
		}
	}
	for _, label := range s.Labels() {
		if !h.Has(label) {
			return fmt.Errorf("%w: %q", ErrLabelNotInHierarchy, label)
		}
	}
	for _, label := range h.Labels() {
		if s.m.GeneIndex(label) < 0 {
			return fmt.Errorf("%w: %q", ErrLabelNotInSheet, label)
		}
	}
	for _, id := range s.Samples() {
		for _, label := range s.Labels() {
			if !s.Positive(id, label) {
				continue
			}
			cur := label
			for _, parent := range h.Ancestors(label) {
				if !s.Positive(id, parent) {
					return fmt.Errorf("%w: sample %q is positive for %q but negative for %q", ErrParentNegative, id, cur, parent)
				}
				cur = parent
			}
		}
	}
	return nil
}
