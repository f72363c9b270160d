// SPDX-License-Identifier: MIT

// Package model holds a trained hierarchical subtype classifier: the label
// hierarchy, one scaler per parent label and one logistic regression per label.
package model

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/logreg"
	"github.com/tallsorts/tallsorts/internal/scaling"
)

// FormatVersion is written into every saved model.
const FormatVersion = 1

// DefaultThreshold is the probability at which a label is called.
const DefaultThreshold = 0.5

// Unclassified is the prediction for samples with no label above threshold.
const Unclassified = "Unclassified"

var (
	ErrMissingScaler     = errors.New("model: missing scaler")
	ErrMissingClassifier = errors.New("model: missing classifier")
	ErrFormatVersion     = errors.New("model: unsupported format version")
)

// Model is a trained classifier.
type Model struct {
	FormatVersion int                        `json:"format_version"`
	Name          string                     `json:"name,omitempty"`
	Hierarchy     []hierarchy.Edge           `json:"hierarchy"`
	Scalers       map[string]*scaling.Scaler `json:"scalers"`
	Classifiers   map[string]*logreg.Model   `json:"classifiers"`
	Threshold     float64                    `json:"threshold"`
	IsDefault     bool                       `json:"is_default"`
	TrainedAt     time.Time                  `json:"trained_at"`

	tree *hierarchy.Hierarchy
}

// New assembles and validates a model.
func New(h *hierarchy.Hierarchy, scalers map[string]*scaling.Scaler, classifiers map[string]*logreg.Model) (*Model, error) {
	m := &Model{
		FormatVersion: FormatVersion,
		Hierarchy:     h.Edges(),
		Scalers:       scalers,
		Classifiers:   classifiers,
		Threshold:     DefaultThreshold,
		TrainedAt:     time.Now().UTC(),
		tree:          h,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Tree returns the label hierarchy.
func (m *Model) Tree() *hierarchy.Hierarchy { return m.tree }

// Validate links the hierarchy and checks that every parent has a scaler and
// every label a classifier of matching width.
func (m *Model) Validate() error {
	if m.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: %d", ErrFormatVersion, m.FormatVersion)
	}
	if m.tree == nil {
		h, err := hierarchy.FromEdges(m.Hierarchy)
		if err != nil {
			return fmt.Errorf("model hierarchy: %w", err)
		}
		m.tree = h
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		m.Threshold = DefaultThreshold
	}
	for _, parent := range m.tree.Parents() {
		s, ok := m.Scalers[parent]
		if !ok || s == nil {
			return fmt.Errorf("%w: %q", ErrMissingScaler, parent)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("scaler %q: %w", parent, err)
		}
		for _, label := range m.tree.Children(parent) {
			c, ok := m.Classifiers[label]
			if !ok || c == nil {
				return fmt.Errorf("%w: %q", ErrMissingClassifier, label)
			}
			if err := c.Validate(len(s.Genes)); err != nil {
				return fmt.Errorf("classifier %q: %w", label, err)
			}
		}
	}
	return nil
}

// Labels returns every label the model can call, in hierarchy order.
func (m *Model) Labels() []string { return m.tree.Labels() }

// Levels returns the level names the model produces, in scoring order.
func (m *Model) Levels() []string {
	parents := m.tree.Parents()
	out := make([]string, len(parents))
	for i, p := range parents {
		out[i] = m.tree.LevelName(p)
	}
	return out
}

// Genes returns the union of all scaler genes, sorted.
func (m *Model) Genes() []string {
	set := make(map[string]struct{})
	for _, s := range m.Scalers {
		for _, g := range s.Genes {
			set[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}
