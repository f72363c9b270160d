// SPDX-License-Identifier: MIT

package model

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Encode writes the model as JSON.
func (m *Model) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(m)
}

// Decode reads and validates a JSON model.
func Decode(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save writes the model atomically, creating the parent directory when
// needed. Paths ending in .gz are gzip-compressed.
func (m *Model) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create model directory: %w", err)
	}
	// renameio handles: temp file creation, fsync, atomic rename, cleanup on error
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending model file: %w", err)
	}
	defer func() { _ = pendingFile.Cleanup() }()

	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(pendingFile)
		if err := m.Encode(gz); err != nil {
			return fmt.Errorf("write model data: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("flush model data: %w", err)
		}
	} else if err := m.Encode(pendingFile); err != nil {
		return fmt.Errorf("write model data: %w", err)
	}

	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace model file: %w", err)
	}
	return nil
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	// #nosec G304 -- model paths are provided by the operator via CLI/config
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gunzip model: %w", err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	m, err := Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
