// SPDX-License-Identifier: MIT

package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/tallsorts/tallsorts/internal/hierarchy"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/model"
	"github.com/tallsorts/tallsorts/internal/samplesheet"
	"github.com/tallsorts/tallsorts/internal/training"
)

// CohortGenes are the Ensembl IDs of the synthetic cohort, in column order.
var CohortGenes = []string{
	"ENSG00000000001", // housekeeping
	"ENSG00000000002", // A marker
	"ENSG00000000003", // B marker
	"ENSG00000000004", // A1 marker
	"ENSG00000000005", // A2 marker
	"ENSG00000000006", // noise
}

// CohortSymbols are the gene symbols matching CohortGenes.
var CohortSymbols = []string{"HK1", "AMARK", "BMARK", "A1MARK", "A2MARK", "NOISE1"}

// Cohort is a small labelled training set with a two-level hierarchy:
// A (children A1, A2) and B.
type Cohort struct {
	Counts    *matrix.Matrix
	Labels    *matrix.Matrix
	Sheet     *samplesheet.Sheet
	Hierarchy *hierarchy.Hierarchy
}

// NewCohort builds 24 samples: 6 A1, 6 A2 and 12 B.
func NewCohort(t testing.TB) Cohort {
	t.Helper()
	var (
		samples []string
		values  [][]float64
		labels  [][]float64
	)
	add := func(prefix string, n int, a, b, a1, a2 float64) {
		for i := range n {
			jitter := float64(i % 3)
			samples = append(samples, fmt.Sprintf("%s_%02d", prefix, i))
			values = append(values, []float64{
				5000 + 10*jitter,
				a + 7*jitter,
				b + 5*jitter,
				a1 + 3*jitter,
				a2 + 4*jitter,
				100 + float64(7*i%11),
			})
			labels = append(labels, []float64{flag(a >= 500), flag(b >= 500), flag(a1 >= 500), flag(a2 >= 500)})
		}
	}
	add("A1", 6, 1000, 10, 800, 10)
	add("A2", 6, 1000, 10, 10, 800)
	add("B", 12, 10, 1000, 10, 10)

	counts, err := matrix.New(samples, CohortGenes, values)
	if err != nil {
		t.Fatalf("cohort counts: %v", err)
	}
	lm, err := matrix.New(samples, []string{"A", "B", "A1", "A2"}, labels)
	if err != nil {
		t.Fatalf("cohort labels: %v", err)
	}
	h, err := hierarchy.FromEdges([]hierarchy.Edge{
		{Label: "A"}, {Label: "B"},
		{Label: "A1", Parent: "A"}, {Label: "A2", Parent: "A"},
	})
	if err != nil {
		t.Fatalf("cohort hierarchy: %v", err)
	}
	return Cohort{Counts: counts, Labels: lm, Sheet: samplesheet.New(lm), Hierarchy: h}
}

// CohortFiles are the paths WriteFiles produced.
type CohortFiles struct {
	Counts     string
	Symbols    string
	Sheet      string
	Hierarchy  string
	Annotation string
}

// WriteFiles writes the cohort as CSV inputs into dir. Symbols holds the
// counts labelled by gene symbol and Annotation maps them back.
func (c Cohort) WriteFiles(t testing.TB, dir string) CohortFiles {
	t.Helper()
	f := CohortFiles{
		Counts:     filepath.Join(dir, "counts.csv"),
		Symbols:    filepath.Join(dir, "counts_symbols.csv"),
		Sheet:      filepath.Join(dir, "samplesheet.csv"),
		Hierarchy:  filepath.Join(dir, "hierarchy.csv"),
		Annotation: filepath.Join(dir, "annotation.csv"),
	}
	write(t, f.Counts, matrixCSV(c.Counts, c.Counts.Genes))
	write(t, f.Symbols, matrixCSV(c.Counts, CohortSymbols))
	write(t, f.Sheet, matrixCSV(c.Labels, c.Labels.Genes))

	var b strings.Builder
	b.WriteString("Label,Parent\n")
	for _, e := range c.Hierarchy.Edges() {
		fmt.Fprintf(&b, "%s,%s\n", e.Label, e.Parent)
	}
	write(t, f.Hierarchy, b.String())

	b.Reset()
	b.WriteString("gene_id,gene_name,contig,biotype\n")
	for i, id := range CohortGenes {
		fmt.Fprintf(&b, "%s,%s,1,protein_coding\n", id, CohortSymbols[i])
	}
	write(t, f.Annotation, b.String())
	return f
}

// TrainedModel fits a model on the cohort without gene filtering.
func (c Cohort) TrainedModel(t testing.TB) *model.Model {
	t.Helper()
	m, err := training.Train(context.Background(), training.Inputs{
		Counts:    c.Counts,
		Sheet:     c.Sheet,
		Hierarchy: c.Hierarchy,
	}, training.Options{Workers: 2})
	if err != nil {
		t.Fatalf("train cohort model: %v", err)
	}
	return m
}

func matrixCSV(m *matrix.Matrix, header []string) string {
	var b strings.Builder
	b.WriteString("sample")
	for _, h := range header {
		b.WriteString("," + h)
	}
	b.WriteString("\n")
	for i, s := range m.Samples {
		b.WriteString(s)
		for _, v := range m.Values[i] {
			b.WriteString("," + strconv.FormatFloat(v, 'f', -1, 64))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func write(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
