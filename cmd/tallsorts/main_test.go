// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/report"
	"github.com/tallsorts/tallsorts/internal/store"
	"github.com/tallsorts/tallsorts/internal/testutil"
	"github.com/tallsorts/tallsorts/internal/version"
)

func TestMain(m *testing.M) {
	for _, e := range os.Environ() {
		if strings.HasPrefix(e, config.EnvPrefix) {
			kv := strings.SplitN(e, "=", 2)
			if err := os.Unsetenv(kv[0]); err != nil {
				panic("failed to unset env: " + err.Error())
			}
		}
	}
	os.Exit(m.Run())
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Dispatch(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version.Version)

	code, _, errOut := runCLI(t, "classify")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: classify")

	code, _, _ = runCLI(t)
	assert.Equal(t, 2, code)

	code, out, _ = runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "tallsorts predict")
}

func TestLoadModeConfig_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	samples := filepath.Join(dir, "counts.csv")
	modelPath := filepath.Join(dir, "m.json.gz")
	for _, p := range []string{samples, modelPath} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	t.Setenv("TALLSORTS_THRESHOLD", "0.8")
	t.Setenv("TALLSORTS_LOG_LEVEL", "debug")

	var stderr bytes.Buffer
	cfg, code, err := loadModeConfig(config.ModePredict, []string{
		"-s", samples, "-model", modelPath, "-d", filepath.Join(dir, "out"), "-no-figures",
	}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, config.ModePredict, cfg.Mode)
	assert.Equal(t, samples, cfg.Samples)
	assert.True(t, cfg.NoFigures)
	assert.InDelta(t, 0.8, cfg.Threshold, 1e-12, "unset flags keep the environment value")
	assert.Equal(t, "debug", cfg.LogLevel)

	cfg, _, err = loadModeConfig(config.ModePredict, []string{
		"-samples", samples, "-m", modelPath, "-threshold", "0.65", "-log-level", "warn",
	}, &stderr)
	require.NoError(t, err)
	assert.InDelta(t, 0.65, cfg.Threshold, 1e-12)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadModeConfig_Errors(t *testing.T) {
	var stderr bytes.Buffer
	_, code, err := loadModeConfig(config.ModePredict, []string{"-nope"}, &stderr)
	require.Error(t, err)
	assert.Equal(t, 2, code)

	_, code, err = loadModeConfig(config.ModePredict, []string{"stray"}, &stderr)
	require.Error(t, err)
	assert.Equal(t, 2, code)

	_, code, err = loadModeConfig(config.ModeTrain, []string{"-samples", "/does/not/exist.csv"}, &stderr)
	require.Error(t, err)
	assert.Equal(t, 1, code)

	_, code, err = loadModeConfig(config.ModeServe, []string{"-h"}, &stderr)
	require.Error(t, err)
	assert.Equal(t, 0, code)
}

func TestTrainPredictRuns(t *testing.T) {
	dir := t.TempDir()
	files := testutil.NewCohort(t).WriteFiles(t, dir)
	dbPath := filepath.Join(dir, "runs.sqlite")
	out := filepath.Join(dir, "out")

	code, _, errOut := runCLI(t, "train",
		"-s", files.Counts, "-l", files.Sheet, "-hierarchy", files.Hierarchy,
		"-filter=false", "-c", "2", "-name", "cohort", "-d", out,
		"-store", dbPath, "-log-format", "json")
	require.Equal(t, 0, code, errOut)
	modelPath := filepath.Join(out, "custom.json.gz")
	require.FileExists(t, modelPath)

	code, _, errOut = runCLI(t, "predict",
		"-s", files.Symbols, "-gene-labels", "symbol", "-annotation", files.Annotation,
		"-m", modelPath, "-d", out, "-seed", "7", "-store", dbPath, "-log-format", "json")
	require.Equal(t, 0, code, errOut)
	assert.FileExists(t, filepath.Join(out, "Level_1", report.PredictionsFile))
	assert.FileExists(t, filepath.Join(out, "Level_1", report.WaterfallHTMLFile))

	code, stdout, errOut := runCLI(t, "runs", "-store", dbPath, "-json")
	require.Equal(t, 0, code, errOut)
	var runs []store.Run
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, config.ModePredict, runs[0].Mode)
	assert.Equal(t, config.ModeTrain, runs[1].Mode)

	code, stdout, _ = runCLI(t, "runs", "-store", dbPath, "-calls", runs[0].ID)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Level_2_A")

	code, stdout, _ = runCLI(t, "runs", "-store", dbPath, "-verify", "quick")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "passed quick integrity check")

	code, _, _ = runCLI(t, "runs", "-store", dbPath, "-verify", "deep")
	assert.Equal(t, 2, code)
}

func TestPredict_MissingModelFails(t *testing.T) {
	dir := t.TempDir()
	files := testutil.NewCohort(t).WriteFiles(t, dir)
	code, _, errOut := runCLI(t, "predict", "-s", files.Counts, "-m", filepath.Join(dir, "none.json.gz"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "ModelPath")
}

func TestResolveStorePath(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "tallsorts.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  path: /var/lib/tallsorts/runs.sqlite\n"), 0o600))

	got, err := resolveStorePath("", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tallsorts/runs.sqlite", got)

	t.Setenv("TALLSORTS_STORE_PATH", "/env/runs.sqlite")
	got, err = resolveStorePath("", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/env/runs.sqlite", got)

	got, err = resolveStorePath("/flag/runs.sqlite", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "/flag/runs.sqlite", got)

	t.Setenv("TALLSORTS_STORE_PATH", "")
	_, err = resolveStorePath("", "")
	assert.Error(t, err)
}

func TestConfigDump_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "m.json.gz")
	require.NoError(t, os.WriteFile(model, []byte("x"), 0o600))
	cfgPath := filepath.Join(dir, "tallsorts.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("mode: serve\npredict:\n  model: "+model+"\nserver:\n  rateLimit: 5\n"), 0o600))

	code, out, errOut := runCLI(t, "config", "validate", "-f", cfgPath)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "valid for serve")

	code, out, errOut = runCLI(t, "config", "dump", "-f", cfgPath)
	require.Equal(t, 0, code, errOut)

	dumped := filepath.Join(dir, "dumped.yaml")
	require.NoError(t, os.WriteFile(dumped, []byte(out), 0o600))
	cfg, err := config.NewLoader(dumped, version.Version).Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Server.RateLimit)
	assert.Equal(t, model, cfg.ModelPath)

	code, _, _ = runCLI(t, "config", "dump", "-f", cfgPath, "-format", "toml")
	assert.Equal(t, 2, code)
}
