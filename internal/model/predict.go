// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/matrix"
)

// LabelProb pairs a label with its probability.
type LabelProb struct {
	Label string  `json:"label"`
	Prob  float64 `json:"prob"`
}

// Call summarises one sample at one level.
type Call struct {
	Sample string `json:"sample"`
	// Highest is the label with the largest probability, even when it is
	// below threshold.
	Highest  string  `json:"highest"`
	ProbaRaw float64 `json:"proba_raw"`
	// ProbaAdj is ProbaRaw relative to the sum of the level's probabilities.
	ProbaAdj  float64 `json:"proba_adj"`
	Pred      string  `json:"pred"`
	MultiCall bool    `json:"multi_call"`
	// Calls lists labels at or above threshold, most probable first; it holds
	// only Highest when no label passes.
	Calls []LabelProb `json:"calls"`
}

// Level holds the scores of the children of one parent label.
type Level struct {
	Name    string      `json:"name"`
	Parent  string      `json:"parent"`
	Labels  []string    `json:"labels"`
	Samples []string    `json:"samples"`
	Probs   [][]float64 `json:"probs"`
	Calls   []Call      `json:"calls"`
}

// Prob returns the probability of label for sample at this level.
func (l *Level) Prob(sample, label string) (float64, bool) {
	i := indexOf(l.Samples, sample)
	j := indexOf(l.Labels, label)
	if i < 0 || j < 0 {
		return 0, false
	}
	return l.Probs[i][j], true
}

// Call returns the call for sample at this level.
func (l *Level) Call(sample string) (Call, bool) {
	i := indexOf(l.Samples, sample)
	if i < 0 {
		return Call{}, false
	}
	return l.Calls[i], true
}

// HasMultiCalls reports whether any sample passed the threshold for more than one label.
func (l *Level) HasMultiCalls() bool {
	for _, c := range l.Calls {
		if c.MultiCall {
			return true
		}
	}
	return false
}

// Results are the per-level scores for a batch of samples.
type Results struct {
	Samples   []string `json:"samples"`
	Threshold float64  `json:"threshold"`
	Levels    []*Level `json:"levels"`
}

// Level looks up a level by name.
func (r *Results) Level(name string) (*Level, bool) {
	for _, l := range r.Levels {
		if l.Name == name {
			return l, true
		}
	}
	return nil, false
}

// Predict scores counts (samples x genes) through the hierarchy. Level 1 is
// scored for every sample; the children of a label are scored for samples
// whose probability for that label reaches the threshold. Levels with no
// samples are omitted. Each sample is scored independently of the others.
func (m *Model) Predict(ctx context.Context, counts *matrix.Matrix) (*Results, error) {
	res := &Results{Samples: append([]string(nil), counts.Samples...), Threshold: m.Threshold}
	byLabel := make(map[string]*Level)

	for _, parent := range m.tree.Parents() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		samples := counts.Samples
		if parent != hierarchy.RootParent {
			lvl, ok := byLabel[parent]
			if !ok {
				continue
			}
			samples = nil
			for _, id := range lvl.Samples {
				if p, _ := lvl.Prob(id, parent); p >= m.Threshold {
					samples = append(samples, id)
				}
			}
		}
		if len(samples) == 0 {
			continue
		}

		lvl, err := m.scoreLevel(counts, parent, samples)
		if err != nil {
			return nil, err
		}
		res.Levels = append(res.Levels, lvl)
		for _, label := range lvl.Labels {
			byLabel[label] = lvl
		}
	}
	return res, nil
}

func (m *Model) scoreLevel(counts *matrix.Matrix, parent string, samples []string) (*Level, error) {
	sub, err := counts.SubsetSamples(samples)
	if err != nil {
		return nil, err
	}
	X := m.Scalers[parent].Transform(sub)

	name := m.tree.LevelName(parent)
	labels, err := m.tree.ChildrenOfLevel(name)
	if err != nil {
		return nil, err
	}
	lvl := &Level{
		Name:    name,
		Parent:  parent,
		Labels:  labels,
		Samples: append([]string(nil), samples...),
		Probs:   make([][]float64, len(samples)),
		Calls:   make([]Call, len(samples)),
	}
	for i := range samples {
		lvl.Probs[i] = make([]float64, len(labels))
	}
	for j, label := range labels {
		probs, err := m.Classifiers[label].PredictProba(X.Values)
		if err != nil {
			return nil, fmt.Errorf("label %q: %w", label, err)
		}
		for i, p := range probs {
			lvl.Probs[i][j] = p
		}
	}
	for i, id := range samples {
		lvl.Calls[i] = makeCall(id, labels, lvl.Probs[i], m.Threshold)
	}
	return lvl, nil
}

func makeCall(sample string, labels []string, probs []float64, threshold float64) Call {
	c := Call{Sample: sample, Pred: Unclassified}
	var sum float64
	best := -1
	for j, p := range probs {
		sum += p
		if best < 0 || p > probs[best] {
			best = j
		}
		if p >= threshold {
			c.Calls = append(c.Calls, LabelProb{Label: labels[j], Prob: p})
		}
	}
	if best < 0 {
		return c
	}
	c.Highest = labels[best]
	c.ProbaRaw = probs[best]
	if sum > 0 {
		c.ProbaAdj = c.ProbaRaw / sum
	}
	if c.ProbaRaw >= threshold {
		c.Pred = c.Highest
	}
	sort.SliceStable(c.Calls, func(a, b int) bool { return c.Calls[a].Prob > c.Calls[b].Prob })
	c.MultiCall = len(c.Calls) > 1
	if len(c.Calls) == 0 {
		c.Calls = []LabelProb{{Label: c.Highest, Prob: c.ProbaRaw}}
	}
	return c
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
