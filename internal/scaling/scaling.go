// SPDX-License-Identifier: MIT

// Package scaling turns raw counts into standardised log-CPM features.
package scaling

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tallsorts/tallsorts/internal/matrix"
)

// MinCounts is the count a gene must reach, at the smallest library size, in
// enough samples to survive FilterGenes.
const MinCounts = 5.0

// ErrNoGenes is returned when a scaler would have no features.
var ErrNoGenes = errors.New("scaling: no genes to scale")

// Scaler standardises log2(CPM+1) values gene by gene.
type Scaler struct {
	Genes []string  `json:"genes"`
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns per-gene mean and population standard deviation of log-CPM
// values for genes. Library sizes come from every gene in counts. A gene with
// zero variance gets a scale of 1.
func Fit(counts *matrix.Matrix, genes []string) (*Scaler, error) {
	if len(genes) == 0 {
		return nil, ErrNoGenes
	}
	if counts.Rows() == 0 {
		return nil, errors.New("scaling: no samples")
	}
	logged := LogCPM(counts, genes)
	s := &Scaler{
		Genes: append([]string(nil), genes...),
		Mean:  make([]float64, len(genes)),
		Scale: make([]float64, len(genes)),
	}
	col := make([]float64, logged.Rows())
	for j := range genes {
		for i, row := range logged.Values {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

// LogCPM returns log2(CPM+1) restricted to genes, normalising each sample by
// its total counts over all genes in counts.
func LogCPM(counts *matrix.Matrix, genes []string) *matrix.Matrix {
	lib := counts.LibrarySizes()
	out := counts.Select(genes).CPMWithLibrary(lib)
	for _, row := range out.Values {
		for j, v := range row {
			row[j] = math.Log2(v + 1)
		}
	}
	return out
}

// Transform maps counts onto the scaler's feature space. Genes absent from
// counts contribute zero counts.
func (s *Scaler) Transform(counts *matrix.Matrix) *matrix.Matrix {
	out := LogCPM(counts, s.Genes)
	for _, row := range out.Values {
		floats.Sub(row, s.Mean)
		floats.Div(row, s.Scale)
	}
	return out
}

// Validate checks internal consistency after deserialisation.
func (s *Scaler) Validate() error {
	if len(s.Genes) == 0 {
		return ErrNoGenes
	}
	if len(s.Mean) != len(s.Genes) || len(s.Scale) != len(s.Genes) {
		return fmt.Errorf("scaling: %d genes, %d means, %d scales", len(s.Genes), len(s.Mean), len(s.Scale))
	}
	for j, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("scaling: zero scale for gene %q", s.Genes[j])
		}
	}
	return nil
}

// CandidateFilter restricts genes to those eligible as features.
type CandidateFilter interface {
	FilterCandidates(genes []string) []string
}

// FilterGenes selects training features: genes accepted by candidates (all
// genes when nil) whose CPM reaches MinCounts at the smallest library size in
// at least minSamples samples. The result is sorted.
func FilterGenes(counts *matrix.Matrix, candidates CandidateFilter, minSamples int) []string {
	genes := append([]string(nil), counts.Genes...)
	if candidates != nil {
		genes = candidates.FilterCandidates(genes)
	}
	lib := counts.LibrarySizes()
	if len(lib) == 0 {
		return nil
	}
	minLib := floats.Min(lib)
	if minLib <= 0 {
		return nil
	}
	threshold := MinCounts / minLib * 1e6
	cpm := counts.CPMWithLibrary(lib)

	out := make([]string, 0, len(genes))
	for _, g := range genes {
		j := cpm.GeneIndex(g)
		if j < 0 {
			continue
		}
		n := 0
		for _, row := range cpm.Values {
			if row[j] >= threshold {
				n++
			}
		}
		if n >= minSamples {
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}
