// SPDX-License-Identifier: MIT

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallsorts/tallsorts/internal/app"
	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/log"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/metrics"
	"github.com/tallsorts/tallsorts/internal/model"
	"github.com/tallsorts/tallsorts/internal/store"
	"github.com/tallsorts/tallsorts/internal/tabular"
	"github.com/tallsorts/tallsorts/internal/telemetry"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	resp := errorResponse{Error: code}
	if err != nil {
		resp.Detail = err.Error()
	}
	writeJSON(w, status, resp)
}

type modelResponse struct {
	Name      string    `json:"name,omitempty"`
	Version   int       `json:"format_version"`
	IsDefault bool      `json:"is_default"`
	Threshold float64   `json:"threshold"`
	TrainedAt time.Time `json:"trained_at"`
	LoadedAt  time.Time `json:"loaded_at"`
	Labels    []string  `json:"labels"`
	Levels    []string  `json:"levels"`
	Genes     int       `json:"genes"`
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	m, loadedAt := s.models.Current()
	writeJSON(w, http.StatusOK, modelResponse{
		Name:      m.Name,
		Version:   m.FormatVersion,
		IsDefault: m.IsDefault,
		Threshold: m.Threshold,
		TrainedAt: m.TrainedAt,
		LoadedAt:  loadedAt,
		Labels:    m.Labels(),
		Levels:    m.Levels(),
		Genes:     len(m.Genes()),
	})
}

type predictResponse struct {
	RunID string `json:"run_id,omitempty"`
	Model string `json:"model,omitempty"`
	*model.Results
}

// handlePredict scores an uploaded counts matrix. The body is CSV, or TSV
// when the content type says so or format=tsv is given. The genesByRows and
// geneLabels query parameters override the configured defaults.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := telemetry.Start(r.Context(), tracerName, "api.predict", telemetry.RunAttributes("", config.ModeServe)...)
	var err error
	defer func() {
		telemetry.End(span, err)
		metrics.RecordRun(config.ModeServe, err, time.Since(start))
	}()

	if s.cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	}
	counts, err := s.readCounts(ctx, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_counts", err)
		return
	}

	m, _ := s.models.Current()
	var runID string
	if s.store != nil {
		run, berr := s.store.BeginRun(ctx, config.ModeServe, s.models.Path(), "")
		if berr != nil {
			err = berr
			writeError(w, http.StatusInternalServerError, "store_unavailable", nil)
			return
		}
		runID = run.ID
		ctx = log.ContextWithRunID(ctx, runID)
		defer func() {
			if ferr := s.store.FinishRun(context.WithoutCancel(ctx), runID, counts.Rows(), err); ferr != nil {
				log.FromContext(ctx).Warn().Err(ferr).Msg("failed to finish run record")
			}
		}()
	}

	res, err := app.Predict(ctx, m, counts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction_failed", err)
		return
	}
	if s.store != nil {
		if err = s.store.RecordCalls(ctx, runID, res); err != nil {
			writeError(w, http.StatusInternalServerError, "store_unavailable", nil)
			return
		}
	}
	log.FromContext(ctx).Info().
		Str(log.FieldRunID, runID).
		Int(log.FieldSamples, len(res.Samples)).
		Int("levels", len(res.Levels)).
		Msg("api prediction served")
	writeJSON(w, http.StatusOK, predictResponse{RunID: runID, Model: m.Name, Results: res})
}

func (s *Server) readCounts(ctx context.Context, r *http.Request) (*matrix.Matrix, error) {
	q := r.URL.Query()
	delim := ','
	if q.Get("format") == "tsv" || strings.Contains(r.Header.Get("Content-Type"), "tab-separated") {
		delim = '\t'
	}
	t, err := tabular.Read(r.Body, delim)
	if err != nil {
		return nil, err
	}
	counts, err := matrix.FromTable(t)
	if err != nil {
		return nil, err
	}

	genesByRows := s.cfg.GenesByRows
	if v := q.Get("genesByRows"); v != "" {
		if genesByRows, err = strconv.ParseBool(v); err != nil {
			return nil, errors.New("genesByRows must be a boolean")
		}
	}
	if genesByRows {
		counts = counts.Transpose()
	}

	labels := s.cfg.GeneLabels
	if v := q.Get("geneLabels"); v != "" {
		labels = strings.ToLower(v)
	}
	switch labels {
	case config.GeneLabelsSymbol:
		if s.ann == nil {
			return nil, errors.New("gene symbols require the server to be configured with an annotation file")
		}
		return app.RelabelSymbols(ctx, counts, s.ann)
	case config.GeneLabelsEnsembl, "":
		return counts, nil
	default:
		return nil, errors.New("geneLabels must be ensembl or symbol")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "store_disabled", nil)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", nil)
			return
		}
		limit = min(n, 500)
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable", nil)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "store_disabled", nil)
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run_not_found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRunCalls(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "store_disabled", nil)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run_not_found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "store_unavailable", nil)
		return
	}
	calls, err := s.store.Calls(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable", nil)
		return
	}
	if calls == nil {
		calls = []store.CallRecord{}
	}
	writeJSON(w, http.StatusOK, calls)
}
