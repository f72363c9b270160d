// SPDX-License-Identifier: MIT

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/annotation"
	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/matrix"
	"github.com/tallsorts/tallsorts/internal/report"
	"github.com/tallsorts/tallsorts/internal/store"
	"github.com/tallsorts/tallsorts/internal/testutil"
)

func baseConfig(t *testing.T) (config.AppConfig, testutil.CohortFiles) {
	t.Helper()
	dir := t.TempDir()
	files := testutil.NewCohort(t).WriteFiles(t, dir)
	cfg := config.Defaults()
	cfg.Samples = files.Counts
	cfg.GeneLabels = config.GeneLabelsEnsembl
	cfg.Destination = filepath.Join(dir, "out")
	cfg.StorePath = filepath.Join(dir, "runs.sqlite")
	cfg.MetricsTextfile = filepath.Join(dir, "metrics", "tallsorts.prom")
	cfg.NoFigures = true
	return cfg, files
}

func newApp(t *testing.T, cfg config.AppConfig) *App {
	t.Helper()
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestTrainThenPredict(t *testing.T) {
	ctx := context.Background()
	cfg, files := baseConfig(t)

	cfg.Mode = config.ModeTrain
	cfg.SampleSheet = files.Sheet
	cfg.Hierarchy = files.Hierarchy
	cfg.Filter = false
	cfg.ModelName = "cohort"
	require.NoError(t, newApp(t, cfg).Run(ctx))

	modelPath := filepath.Join(cfg.Destination, ModelFileName)
	require.FileExists(t, modelPath)

	cfg.Mode = config.ModePredict
	cfg.ModelPath = modelPath
	a := newApp(t, cfg)
	require.NoError(t, a.Run(ctx))

	for _, name := range []string{report.ProbabilitiesFile, report.PredictionsFile} {
		assert.FileExists(t, filepath.Join(cfg.Destination, "Level_1", name))
		assert.FileExists(t, filepath.Join(cfg.Destination, "Level_2_A", name))
	}
	assert.NoFileExists(t, filepath.Join(cfg.Destination, "Level_1", report.ScatterSVGFile))
	assert.FileExists(t, cfg.MetricsTextfile)

	runs, err := a.Store().ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2, "the train run and the predict run share the registry")
	assert.Equal(t, config.ModePredict, runs[0].Mode)
	assert.Equal(t, store.StatusSucceeded, runs[0].Status)
	assert.Equal(t, 24, runs[0].Samples)

	calls, err := a.Store().Calls(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, calls, 24+12)
}

func TestTrain_CreatesDestination(t *testing.T) {
	cfg, files := baseConfig(t)
	cfg.Mode = config.ModeTrain
	cfg.SampleSheet = files.Sheet
	cfg.Hierarchy = files.Hierarchy
	cfg.Filter = false
	cfg.StorePath = ""
	cfg.Destination = filepath.Join(t.TempDir(), "fresh", "out")

	require.NoError(t, newApp(t, cfg).Run(context.Background()))
	assert.FileExists(t, filepath.Join(cfg.Destination, ModelFileName))
}

func TestPredict_FailedRunIsRecorded(t *testing.T) {
	ctx := context.Background()
	cfg, _ := baseConfig(t)
	cfg.Mode = config.ModePredict
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.json.gz")

	a := newApp(t, cfg)
	require.Error(t, a.Run(ctx))

	runs, err := a.Store().ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestPredict_ThresholdOverride(t *testing.T) {
	cfg, _ := baseConfig(t)
	m := testutil.NewCohort(t).TrainedModel(t)
	path := filepath.Join(t.TempDir(), "m.json.gz")
	require.NoError(t, m.Save(path))

	cfg.ModelPath = path
	cfg.Threshold = 0.9
	got, err := LoadModel(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, got.Threshold, 1e-12)
}

func TestPredict_DefaultKeepsModelThreshold(t *testing.T) {
	cfg, _ := baseConfig(t)
	require.Zero(t, cfg.Threshold)

	m := testutil.NewCohort(t).TrainedModel(t)
	m.Threshold = 0.35
	path := filepath.Join(t.TempDir(), "m.json.gz")
	require.NoError(t, m.Save(path))

	cfg.ModelPath = path
	got, err := LoadModel(cfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.35, got.Threshold, 1e-12)
}

func TestRelabelSymbols(t *testing.T) {
	ctx := context.Background()
	cfg, files := baseConfig(t)
	cfg.Samples = files.Symbols
	cfg.GeneLabels = config.GeneLabelsSymbol
	cfg.Annotation = files.Annotation
	a := newApp(t, cfg)

	counts, err := a.LoadCounts(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, testutil.CohortGenes, counts.Genes)
}

func TestRelabelSymbols_DropsUnknown(t *testing.T) {
	ann := annotation.New([]annotation.Gene{{ID: "ENSG1", Symbol: "KNOWN", Biotype: "protein_coding"}})
	counts, err := matrix.New([]string{"S1"}, []string{"KNOWN", "MYSTERY"}, [][]float64{{1, 2}})
	require.NoError(t, err)

	out, err := RelabelSymbols(context.Background(), counts, ann)
	require.NoError(t, err)
	assert.Equal(t, []string{"ENSG1"}, out.Genes)

	counts, err = matrix.New([]string{"S1"}, []string{"MYSTERY"}, [][]float64{{1}})
	require.NoError(t, err)
	_, err = RelabelSymbols(context.Background(), counts, ann)
	assert.ErrorIs(t, err, ErrNoGenesLeft)
}

func TestRelabel_SymbolsNeedAnnotation(t *testing.T) {
	cfg, files := baseConfig(t)
	cfg.Samples = files.Symbols
	cfg.GeneLabels = config.GeneLabelsSymbol
	cfg.StorePath = ""
	a := newApp(t, cfg)
	_, err := a.LoadCounts(context.Background())
	assert.Error(t, err)
}

func TestRun_RejectsServeMode(t *testing.T) {
	cfg, _ := baseConfig(t)
	cfg.Mode = config.ModeServe
	cfg.StorePath = ""
	assert.Error(t, newApp(t, cfg).Run(context.Background()))
}

func TestNew_BadAnnotation(t *testing.T) {
	cfg, _ := baseConfig(t)
	bad := filepath.Join(t.TempDir(), "ann.csv")
	require.NoError(t, os.WriteFile(bad, []byte("foo,bar\n1,2\n"), 0o600))
	cfg.Annotation = bad
	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, annotation.ErrMissingColumn)
}
