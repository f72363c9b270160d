// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallsorts/tallsorts/internal/testutil"
	"github.com/tallsorts/tallsorts/internal/validate"
)

// inputs creates placeholder input files and returns their paths.
func inputs(t *testing.T) (dir, samples, modelPath string) {
	t.Helper()
	dir = t.TempDir()
	samples = filepath.Join(dir, "counts.csv")
	modelPath = filepath.Join(dir, "model.json.gz")
	for _, p := range []string{samples, modelPath} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	return dir, samples, modelPath
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tallsorts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileEnvOverridePrecedence(t *testing.T) {
	dir, samples, modelPath := inputs(t)
	path := writeYAML(t, `
mode: predict
samples: `+samples+`
predict:
  model: `+modelPath+`
  destination: `+filepath.Join(dir, "out-file")+`
  threshold: 0.6
  noFigures: true
log:
  level: debug
server:
  shutdownTimeout: 3s
`)
	t.Setenv("TALLSORTS_THRESHOLD", "0.7")
	t.Setenv("TALLSORTS_DESTINATION", filepath.Join(dir, "out-env"))

	cfg, err := NewLoader(path, "v-test").Load(func(c *AppConfig) {
		c.Destination = filepath.Join(dir, "out-flag")
	})
	require.NoError(t, err)

	assert.Equal(t, "v-test", cfg.Version)
	assert.Equal(t, ModePredict, cfg.Mode)
	assert.Equal(t, samples, cfg.Samples)
	assert.Equal(t, modelPath, cfg.ModelPath)
	assert.InDelta(t, 0.7, cfg.Threshold, 1e-12, "env beats file")
	assert.Equal(t, filepath.Join(dir, "out-flag"), cfg.Destination, "override beats env")
	assert.True(t, cfg.NoFigures)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, time.Minute, cfg.Server.ReadTimeout, "default kept")
	assert.DirExists(t, filepath.Join(dir, "out-flag"))
}

func TestLoad_UnknownKeyFails(t *testing.T) {
	path := writeYAML(t, "mode: predict\nbogus: 1\n")
	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "test").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_MultipleDocumentsFail(t *testing.T) {
	path := writeYAML(t, "mode: train\n---\nmode: predict\n")
	_, err := NewLoader(path, "test").Load()
	assert.ErrorContains(t, err, "multiple documents")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeYAML(t, "server:\n  readTimeout: soon\n")
	_, err := NewLoader(path, "test").Load()
	assert.ErrorContains(t, err, "server.readTimeout")
}

func TestValidate_PerMode(t *testing.T) {
	dir, samples, modelPath := inputs(t)

	tests := []struct {
		name   string
		mutate func(*AppConfig)
		fields []string
	}{
		{
			name: "valid predict",
			mutate: func(c *AppConfig) {
				c.Samples, c.ModelPath, c.Destination = samples, modelPath, dir
			},
		},
		{
			name: "negative threshold",
			mutate: func(c *AppConfig) {
				c.Samples, c.ModelPath, c.Destination = samples, modelPath, dir
				c.Threshold = -0.2
			},
			fields: []string{"Threshold"},
		},
		{
			name:   "predict without inputs",
			mutate: func(c *AppConfig) {},
			fields: []string{"Samples", "ModelPath"},
		},
		{
			name: "train without sheet",
			mutate: func(c *AppConfig) {
				c.Mode, c.Samples, c.Destination = ModeTrain, samples, dir
				c.TrainingCores = 0
			},
			fields: []string{"SampleSheet", "Hierarchy", "TrainingCores"},
		},
		{
			name: "symbol labels need annotation",
			mutate: func(c *AppConfig) {
				c.Samples, c.ModelPath, c.Destination = samples, modelPath, dir
				c.GeneLabels = GeneLabelsSymbol
			},
			fields: []string{"Annotation"},
		},
		{
			name: "bad threshold and mode-independent fields",
			mutate: func(c *AppConfig) {
				c.Samples, c.ModelPath, c.Destination = samples, modelPath, dir
				c.Threshold = 1
				c.LogLevel = "loud"
				c.LogFormat = "xml"
			},
			fields: []string{"Threshold", "LogLevel", "LogFormat"},
		},
		{
			name: "serve",
			mutate: func(c *AppConfig) {
				c.Mode, c.ModelPath = ModeServe, modelPath
				c.Server.RateLimit = -1
			},
			fields: []string{"Server.RateLimit"},
		},
		{
			name: "tracing",
			mutate: func(c *AppConfig) {
				c.Samples, c.ModelPath, c.Destination = samples, modelPath, dir
				c.Telemetry.Enabled = true
				c.Telemetry.Exporter = "zipkin"
				c.Telemetry.SamplingRate = 2
			},
			fields: []string{"Telemetry.Exporter", "Telemetry.SamplingRate"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if len(tt.fields) == 0 {
				require.NoError(t, err)
				return
			}
			var verr validate.ValidationError
			require.ErrorAs(t, err, &verr)
			var got []string
			for _, e := range verr.Errors() {
				got = append(got, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, got)
		})
	}
}

func TestParseEnv_Fallbacks(t *testing.T) {
	t.Setenv("TALLSORTS_X_INT", "many")
	t.Setenv("TALLSORTS_X_BOOL", "YES")
	t.Setenv("TALLSORTS_X_FLOAT", " 0.25 ")
	t.Setenv("TALLSORTS_X_EMPTY", "")
	t.Setenv("TALLSORTS_X_DUR", "90s")

	assert.Equal(t, 4, ParseInt("TALLSORTS_X_INT", 4))
	assert.True(t, ParseBool("TALLSORTS_X_BOOL", false))
	assert.InDelta(t, 0.25, ParseFloat("TALLSORTS_X_FLOAT", 0), 1e-12)
	assert.Equal(t, "keep", ParseString("TALLSORTS_X_EMPTY", "keep"))
	assert.Equal(t, 90*time.Second, ParseDuration("TALLSORTS_X_DUR", 0))
	assert.Equal(t, uint64(9), ParseUint("TALLSORTS_X_UNSET", 9))
}

func TestLoader_TracksConsumedEnv(t *testing.T) {
	_, samples, modelPath := inputs(t)
	t.Setenv("TALLSORTS_SAMPLES", samples)
	t.Setenv("TALLSORTS_MODEL", modelPath)
	t.Setenv("TALLSORTS_DESTINATION", t.TempDir())

	l := NewLoader("", "test")
	_, err := l.Load()
	require.NoError(t, err)
	assert.Contains(t, l.ConsumedEnvKeys, "TALLSORTS_SAMPLES")
	assert.Contains(t, l.ConsumedEnvKeys, "TALLSORTS_RATE_LIMIT")
}

func TestExampleConfigParses(t *testing.T) {
	path := filepath.Join(testutil.MustRepoRoot(t), "configs", "tallsorts.example.yaml")
	fc, err := LoadFileConfig(path)
	require.NoError(t, err)

	cfg := Defaults()
	require.NoError(t, NewLoader(path, "test").mergeFileConfig(&cfg, fc))
	assert.Equal(t, "/var/lib/tallsorts/runs.sqlite", cfg.StorePath)
	assert.Equal(t, 5*time.Minute, cfg.Server.WriteTimeout)
	assert.Equal(t, 4, cfg.TrainingCores)
}
