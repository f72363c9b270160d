// SPDX-License-Identifier: MIT

// Package annotation provides a local gene annotation table used to map gene
// symbols to Ensembl IDs and to select candidate genes for training.
package annotation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tallsorts/tallsorts/internal/tabular"
)

// ErrMissingColumn is returned when an annotation file lacks a required column.
var ErrMissingColumn = errors.New("annotation: missing column")

// BiotypeProteinCoding is the only biotype kept by FilterCandidates.
const BiotypeProteinCoding = "protein_coding"

// Gene is one annotation record.
type Gene struct {
	ID      string
	Symbol  string
	Contig  string
	Biotype string
}

// Annotation indexes genes by Ensembl ID and by upper-cased symbol.
type Annotation struct {
	byID     map[string]Gene
	bySymbol map[string][]Gene
	upper    cases.Caser
}

var columnAliases = map[string][]string{
	"id":      {"gene_id", "ensembl_id", "id"},
	"symbol":  {"gene_name", "symbol", "gene_symbol"},
	"contig":  {"contig", "seqname", "chromosome", "chr"},
	"biotype": {"biotype", "gene_biotype"},
}

// New builds an annotation from gene records.
func New(genes []Gene) *Annotation {
	a := &Annotation{
		byID:     make(map[string]Gene, len(genes)),
		bySymbol: make(map[string][]Gene),
		upper:    cases.Upper(language.Und),
	}
	for _, g := range genes {
		g.Contig = normaliseContig(g.Contig)
		a.byID[g.ID] = g
		if g.Symbol != "" {
			key := a.upper.String(g.Symbol)
			a.bySymbol[key] = append(a.bySymbol[key], g)
		}
	}
	return a
}

// Load reads an annotation table (CSV or TSV, optionally gzip-compressed).
func Load(path string) (*Annotation, error) {
	t, err := tabular.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromTable(t)
}

// FromTable converts a parsed annotation table.
func FromTable(t *tabular.Table) (*Annotation, error) {
	cols := make(map[string]int, len(columnAliases))
	for key, names := range columnAliases {
		cols[key] = -1
		for _, n := range names {
			if i := t.Column(n); i >= 0 {
				cols[key] = i
				break
			}
		}
	}
	for _, key := range []string{"id", "symbol"} {
		if cols[key] < 0 {
			return nil, fmt.Errorf("%w: %s (one of %v)", ErrMissingColumn, key, columnAliases[key])
		}
	}

	genes := make([]Gene, 0, len(t.Rows))
	for _, rec := range t.Rows {
		g := Gene{ID: rec[cols["id"]], Symbol: rec[cols["symbol"]]}
		if i := cols["contig"]; i >= 0 {
			g.Contig = rec[i]
		}
		if i := cols["biotype"]; i >= 0 {
			g.Biotype = rec[i]
		}
		if g.ID == "" {
			continue
		}
		genes = append(genes, g)
	}
	return New(genes), nil
}

func normaliseContig(c string) string {
	c = strings.TrimSpace(c)
	if len(c) > 3 && strings.EqualFold(c[:3], "chr") {
		c = c[3:]
	}
	if strings.EqualFold(c, "M") || strings.EqualFold(c, "MT") {
		return "MT"
	}
	return c
}

// Len returns the number of genes.
func (a *Annotation) Len() int { return len(a.byID) }

// GeneByID looks up a gene by Ensembl ID.
func (a *Annotation) GeneByID(id string) (Gene, bool) {
	g, ok := a.byID[id]
	return g, ok
}

// GenesByName returns all genes carrying symbol (case-insensitive).
func (a *Annotation) GenesByName(symbol string) []Gene {
	return a.bySymbol[a.upper.String(symbol)]
}

// Conversion is the result of mapping gene symbols to Ensembl IDs.
type Conversion struct {
	// Confirmed maps an input symbol to its Ensembl ID.
	Confirmed map[string]string
	// Unconfirmed lists ambiguous symbols followed by unknown ones.
	Unconfirmed []string
}

// ConvertSymbols maps symbols to Ensembl IDs. Symbols with one matching gene
// are confirmed directly; ambiguous ones are resolved by repeatedly discarding
// candidates already claimed by a confirmed symbol. A gene ID is claimed by at
// most one symbol.
func (a *Annotation) ConvertSymbols(symbols []string) Conversion {
	conv := Conversion{Confirmed: make(map[string]string)}
	claimed := make(map[string]struct{})
	var ambiguous, unknown []string

	for _, s := range symbols {
		genes := a.GenesByName(s)
		switch {
		case len(genes) == 0:
			unknown = append(unknown, s)
		case len(genes) == 1:
			if _, taken := claimed[genes[0].ID]; taken {
				ambiguous = append(ambiguous, s)
				continue
			}
			conv.Confirmed[s] = genes[0].ID
			claimed[genes[0].ID] = struct{}{}
		default:
			ambiguous = append(ambiguous, s)
		}
	}

	for fixed := true; fixed; {
		fixed = false
		var remaining []string
		for _, s := range ambiguous {
			var free []Gene
			for _, g := range a.GenesByName(s) {
				if _, taken := claimed[g.ID]; !taken {
					free = append(free, g)
				}
			}
			if len(free) == 1 {
				conv.Confirmed[s] = free[0].ID
				claimed[free[0].ID] = struct{}{}
				fixed = true
				continue
			}
			remaining = append(remaining, s)
		}
		ambiguous = remaining
	}

	conv.Unconfirmed = append(ambiguous, unknown...)
	return conv
}

// FilterCandidates keeps genes that are annotated, protein coding and neither
// on the Y chromosome, mitochondrial, nor XIST. The result is sorted.
func (a *Annotation) FilterCandidates(genes []string) []string {
	out := make([]string, 0, len(genes))
	for _, id := range genes {
		g, ok := a.byID[id]
		if !ok {
			continue
		}
		if g.Contig == "Y" || g.Contig == "MT" {
			continue
		}
		if a.upper.String(g.Symbol) == "XIST" {
			continue
		}
		if g.Biotype != BiotypeProteinCoding {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
