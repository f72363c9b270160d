// SPDX-License-Identifier: MIT

// Package matrix holds gene expression count matrices (samples x genes).
package matrix

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/tallsorts/tallsorts/internal/tabular"
)

var (
	// ErrDuplicateSample is returned when a sample ID appears twice.
	ErrDuplicateSample = errors.New("duplicate sample")
	// ErrDuplicateGene is returned when a gene ID appears twice.
	ErrDuplicateGene = errors.New("duplicate gene")
	// ErrUnknownSample is returned when a requested sample is not in the matrix.
	ErrUnknownSample = errors.New("unknown sample")
)

// Matrix is a dense samples x genes table. Row i belongs to Samples[i].
type Matrix struct {
	Samples []string
	Genes   []string
	Values  [][]float64

	geneIdx   map[string]int
	sampleIdx map[string]int
}

// New builds a matrix and validates its shape and identifiers.
func New(samples, genes []string, values [][]float64) (*Matrix, error) {
	if len(values) != len(samples) {
		return nil, fmt.Errorf("matrix: %d rows for %d samples", len(values), len(samples))
	}
	for i, row := range values {
		if len(row) != len(genes) {
			return nil, fmt.Errorf("matrix: row %q has %d values for %d genes", samples[i], len(row), len(genes))
		}
	}
	m := &Matrix{Samples: samples, Genes: genes, Values: values}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Matrix) index() error {
	m.sampleIdx = make(map[string]int, len(m.Samples))
	for i, s := range m.Samples {
		if _, dup := m.sampleIdx[s]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateSample, s)
		}
		m.sampleIdx[s] = i
	}
	m.geneIdx = make(map[string]int, len(m.Genes))
	for i, g := range m.Genes {
		if _, dup := m.geneIdx[g]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateGene, g)
		}
		m.geneIdx[g] = i
	}
	return nil
}

// FromTable converts a parsed table with samples as rows. Missing values
// (empty, NA, NaN) become 0.
func FromTable(t *tabular.Table) (*Matrix, error) {
	if len(t.Header) < 2 {
		return nil, errors.New("matrix: header needs a sample column and at least one gene")
	}
	genes := append([]string(nil), t.Header[1:]...)
	samples := make([]string, 0, len(t.Rows))
	values := make([][]float64, 0, len(t.Rows))
	for _, rec := range t.Rows {
		row := make([]float64, len(genes))
		for j, cell := range rec[1:] {
			v, err := parseValue(cell)
			if err != nil {
				return nil, fmt.Errorf("matrix: sample %q gene %q: %w", rec[0], genes[j], err)
			}
			row[j] = v
		}
		samples = append(samples, rec[0])
		values = append(values, row)
	}
	return New(samples, genes, values)
}

// ReadFile loads a counts file. When genesByRows is set the file is genes x
// samples and is transposed on load.
func ReadFile(path string, genesByRows bool) (*Matrix, error) {
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := FromTable(t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if genesByRows {
		return m.Transpose(), nil
	}
	return m, nil
}

func parseValue(cell string) (float64, error) {
	switch strings.ToLower(cell) {
	case "", "na", "nan", "n/a", "null":
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", cell)
	}
	if math.IsNaN(v) {
		return 0, nil
	}
	return v, nil
}

// Rows returns the number of samples.
func (m *Matrix) Rows() int { return len(m.Samples) }

// Cols returns the number of genes.
func (m *Matrix) Cols() int { return len(m.Genes) }

// GeneIndex returns the column of gene, or -1.
func (m *Matrix) GeneIndex(gene string) int {
	if i, ok := m.geneIdx[gene]; ok {
		return i
	}
	return -1
}

// SampleIndex returns the row of sample, or -1.
func (m *Matrix) SampleIndex(sample string) int {
	if i, ok := m.sampleIdx[sample]; ok {
		return i
	}
	return -1
}

// Row returns the values for sample.
func (m *Matrix) Row(sample string) ([]float64, bool) {
	i := m.SampleIndex(sample)
	if i < 0 {
		return nil, false
	}
	return m.Values[i], true
}

// Column copies the values of gene across all samples.
func (m *Matrix) Column(gene string) ([]float64, bool) {
	j := m.GeneIndex(gene)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(m.Values))
	for i, row := range m.Values {
		out[i] = row[j]
	}
	return out, true
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	values := make([][]float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = append([]float64(nil), row...)
	}
	out, _ := New(append([]string(nil), m.Samples...), append([]string(nil), m.Genes...), values)
	return out
}

// Transpose swaps samples and genes.
func (m *Matrix) Transpose() *Matrix {
	values := make([][]float64, len(m.Genes))
	for j := range m.Genes {
		values[j] = make([]float64, len(m.Samples))
		for i := range m.Samples {
			values[j][i] = m.Values[i][j]
		}
	}
	out := &Matrix{Samples: append([]string(nil), m.Genes...), Genes: append([]string(nil), m.Samples...), Values: values}
	_ = out.index()
	return out
}

// Select returns a matrix restricted to genes, in that order. Genes missing from
// m are filled with zeros.
func (m *Matrix) Select(genes []string) *Matrix {
	values := make([][]float64, len(m.Samples))
	cols := make([]int, len(genes))
	for k, g := range genes {
		cols[k] = m.GeneIndex(g)
	}
	for i, row := range m.Values {
		out := make([]float64, len(genes))
		for k, j := range cols {
			if j >= 0 {
				out[k] = row[j]
			}
		}
		values[i] = out
	}
	res := &Matrix{Samples: append([]string(nil), m.Samples...), Genes: append([]string(nil), genes...), Values: values}
	_ = res.index()
	return res
}

// Missing lists the genes not present in m.
func (m *Matrix) Missing(genes []string) []string {
	var out []string
	for _, g := range genes {
		if m.GeneIndex(g) < 0 {
			out = append(out, g)
		}
	}
	return out
}

// DropGenes removes the named genes. Unknown names are ignored.
func (m *Matrix) DropGenes(drop []string) *Matrix {
	skip := make(map[string]struct{}, len(drop))
	for _, g := range drop {
		skip[g] = struct{}{}
	}
	keep := make([]string, 0, len(m.Genes))
	for _, g := range m.Genes {
		if _, ok := skip[g]; !ok {
			keep = append(keep, g)
		}
	}
	return m.Select(keep)
}

// RenameGenes relabels columns via mapping; unmapped genes keep their name.
func (m *Matrix) RenameGenes(mapping map[string]string) (*Matrix, error) {
	genes := make([]string, len(m.Genes))
	for i, g := range m.Genes {
		if to, ok := mapping[g]; ok {
			genes[i] = to
		} else {
			genes[i] = g
		}
	}
	out := m.Clone()
	out.Genes = genes
	if err := out.index(); err != nil {
		return nil, fmt.Errorf("rename genes: %w", err)
	}
	return out, nil
}

// SubsetSamples returns the rows for ids, in the order given.
func (m *Matrix) SubsetSamples(ids []string) (*Matrix, error) {
	values := make([][]float64, len(ids))
	for k, id := range ids {
		i := m.SampleIndex(id)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSample, id)
		}
		values[k] = append([]float64(nil), m.Values[i]...)
	}
	return New(append([]string(nil), ids...), append([]string(nil), m.Genes...), values)
}

// LibrarySizes returns the total counts per sample.
func (m *Matrix) LibrarySizes() []float64 {
	out := make([]float64, len(m.Values))
	for i, row := range m.Values {
		out[i] = floats.Sum(row)
	}
	return out
}

// CPM converts counts to counts per million using each sample's library size.
// A sample with zero total counts stays all-zero.
func (m *Matrix) CPM() *Matrix {
	return m.CPMWithLibrary(m.LibrarySizes())
}

// CPMWithLibrary converts counts to counts per million using the supplied
// per-sample library sizes.
func (m *Matrix) CPMWithLibrary(lib []float64) *Matrix {
	out := m.Clone()
	for i, row := range out.Values {
		if lib[i] <= 0 {
			continue
		}
		floats.Scale(1e6/lib[i], row)
	}
	return out
}
