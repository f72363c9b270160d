// SPDX-License-Identifier: MIT

// Package tabular opens the delimited text files tallsorts consumes
// (counts matrices, sample sheets, hierarchies, annotations).
package tabular

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is a fully read delimited file.
type Table struct {
	Header []string
	Rows   [][]string
}

// Delimiter infers the field separator from a file name. A trailing .gz is ignored.
func Delimiter(path string) rune {
	name := strings.TrimSuffix(strings.ToLower(path), ".gz")
	switch filepath.Ext(name) {
	case ".tsv", ".tab", ".txt":
		return '\t'
	default:
		return ','
	}
}

// ReadFile reads a CSV/TSV file, transparently decompressing .gz files.
func ReadFile(path string) (*Table, error) {
	// #nosec G304 -- input paths are provided by the operator via CLI/config
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip %s: %w", path, err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	t, err := Read(r, Delimiter(path))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

// Read parses delimited text. The first record is the header. Rows shorter than
// the header are padded with empty cells; longer rows are an error.
func Read(r io.Reader, delim rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("line %d: %d fields, header has %d", line, len(rec), len(header))
		}
		for len(rec) < len(header) {
			rec = append(rec, "")
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// ErrEmpty is returned for input without a header row.
var ErrEmpty = errors.New("empty table")

// Column returns the index of name in the header, or -1.
func (t *Table) Column(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}
