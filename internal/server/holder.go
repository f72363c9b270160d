// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/metrics"
	"github.com/tallsorts/tallsorts/internal/model"
)

const (
	// reloadDebounce coalesces the burst of events an atomic rename produces.
	reloadDebounce = 250 * time.Millisecond
	// minReloadInterval bounds reloads when the file keeps changing.
	minReloadInterval = 2 * time.Second
)

// ModelHolder owns the model served by the API and swaps it on reload.
type ModelHolder struct {
	path      string
	threshold float64

	mu       sync.RWMutex
	current  *model.Model
	loadedAt time.Time
}

// NewModelHolder loads the model at path. A threshold in (0, 1) overrides the
// one stored in the model file, including after reloads.
func NewModelHolder(path string, threshold float64) (*ModelHolder, error) {
	h := &ModelHolder{path: path, threshold: threshold}
	if err := h.Reload(); err != nil {
		return nil, err
	}
	return h, nil
}

// Current returns the active model. Callers must not mutate it.
func (h *ModelHolder) Current() (*model.Model, time.Time) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current, h.loadedAt
}

// Path returns the watched model file.
func (h *ModelHolder) Path() string { return h.path }

// Reload reads the model file again. On failure the active model is kept.
func (h *ModelHolder) Reload() error {
	m, err := model.Load(h.path)
	if err != nil {
		metrics.RecordModelReload(0, err)
		return fmt.Errorf("load model: %w", err)
	}
	if h.threshold > 0 && h.threshold < 1 {
		m.Threshold = h.threshold
	}

	h.mu.Lock()
	h.current = m
	h.loadedAt = time.Now().UTC()
	h.mu.Unlock()
	metrics.RecordModelReload(len(m.Labels()), nil)
	return nil
}

// Watch reloads the model whenever its file changes, until ctx is done. The
// parent directory is watched so atomic replacements are seen.
func (h *ModelHolder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	logger := log.WithComponentFromContext(ctx, "model-watcher")
	target := filepath.Base(h.path)
	limiter := rate.NewLimiter(rate.Every(minReloadInterval), 1)
	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target || event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := h.Reload(); err != nil {
				logger.Warn().Err(err).Str(log.FieldModelPath, h.path).Msg("model reload failed, keeping previous model")
				continue
			}
			m, _ := h.Current()
			logger.Info().Str(log.FieldModelPath, h.path).Int("labels", len(m.Labels())).Msg("model reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("fsnotify watcher error")
		}
	}
}
