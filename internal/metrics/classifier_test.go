// SPDX-License-Identifier: MIT

package metrics_test

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/metrics"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestRecordRun(t *testing.T) {
	tests := []struct {
		name string
		mode string
		err  error
		want string
	}{
		{name: "train success", mode: "train", want: `tallsorts_runs_total{mode="train",outcome="success"}`},
		{name: "predict failure", mode: "PREDICT", err: errors.New("x"), want: `tallsorts_runs_total{mode="predict",outcome="failure"}`},
		{name: "unknown mode", mode: "bogus", want: `tallsorts_runs_total{mode="unknown",outcome="success"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.RecordRun(tt.mode, tt.err, time.Second)
			assert.Contains(t, scrape(t), tt.want)
		})
	}
}

func TestRecordCalls(t *testing.T) {
	metrics.AddSamplesPredicted(3)
	metrics.IncCall("Level_1", "ETP-like")
	metrics.IncMultiCall("Level_1")
	metrics.RecordLabelFit(10*time.Millisecond, false)
	metrics.RecordScalerGenes("Level0", 42)
	metrics.RecordModelReload(7, nil)

	body := scrape(t)
	for _, want := range []string{
		"tallsorts_samples_predicted_total",
		`tallsorts_calls_total{label="ETP-like",level="Level_1"}`,
		`tallsorts_multi_calls_total{level="Level_1"}`,
		`tallsorts_label_fits_total{outcome="max_iter"}`,
		`tallsorts_scaler_genes{parent="Level0"} 42`,
		"tallsorts_model_labels 7",
	} {
		assert.Contains(t, body, want)
	}
}

func TestWriteTextfile(t *testing.T) {
	metrics.IncCall("Level_1", "TAL1")
	path := filepath.Join(t.TempDir(), "nested", "tallsorts.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "tallsorts_calls_total"))

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, "tallsorts_calls_total")
	require.NoError(t, err)
	assert.Positive(t, n)

	assert.NoError(t, metrics.WriteTextfile(""), "empty path is a no-op")
}

func TestRecordLabelFit_Histogram(t *testing.T) {
	before := fitSampleCount(t)
	metrics.RecordLabelFit(20*time.Millisecond, true)
	metrics.RecordLabelFit(30*time.Millisecond, true)
	assert.Equal(t, before+2, fitSampleCount(t))
}

func fitSampleCount(t *testing.T) uint64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	var mf *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "tallsorts_label_fit_duration_seconds" {
			mf = f
		}
	}
	if mf == nil {
		return 0
	}
	require.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
	require.Len(t, mf.GetMetric(), 1)
	return mf.GetMetric()[0].GetHistogram().GetSampleCount()
}
