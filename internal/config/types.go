// SPDX-License-Identifier: MIT

// Package config loads tallsorts settings from defaults, a YAML file,
// TALLSORTS_* environment variables and command-line flags.
package config

import "time"

// Run modes.
const (
	ModePredict = "predict"
	ModeTrain   = "train"
	ModeServe   = "serve"
)

// Gene label kinds of the counts matrix.
const (
	GeneLabelsEnsembl = "ensembl"
	GeneLabelsSymbol  = "symbol"
)

// AppConfig is the resolved runtime configuration.
type AppConfig struct {
	Version string
	Mode    string

	// Inputs
	Samples     string
	GenesByRows bool
	GeneLabels  string
	Annotation  string

	// Prediction
	ModelPath   string
	Destination string
	Threshold   float64
	NoFigures   bool
	FigureSeed  uint64

	// Training
	SampleSheet    string
	Hierarchy      string
	TrainingParams string
	TrainingCores  int
	Filter         bool
	ModelName      string

	// Observability
	LogLevel        string
	LogFormat       string
	LogService      string
	MetricsTextfile string
	Telemetry       TelemetryConfig

	// Run registry (SQLite); empty disables it
	StorePath string

	Server ServerConfig
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	Exporter     string
	Endpoint     string
	SamplingRate float64
	Environment  string
}

// ServerConfig configures the prediction API.
type ServerConfig struct {
	ListenAddr      string
	RateLimit       int // requests per minute per client IP; 0 disables
	MaxBodyBytes    int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	WatchModel      bool
}

// FileConfig is the YAML file layout. Pointer fields distinguish an explicit
// false or zero from an absent key.
type FileConfig struct {
	Mode        string `yaml:"mode,omitempty"`
	Samples     string `yaml:"samples,omitempty"`
	GenesByRows *bool  `yaml:"genesByRows,omitempty"`
	GeneLabels  string `yaml:"geneLabels,omitempty"`
	Annotation  string `yaml:"annotation,omitempty"`

	Predict PredictFileConfig `yaml:"predict,omitempty"`
	Train   TrainFileConfig   `yaml:"train,omitempty"`
	Log     LogFileConfig     `yaml:"log,omitempty"`
	Metrics MetricsFileConfig `yaml:"metrics,omitempty"`
	Tracing TracingFileConfig `yaml:"tracing,omitempty"`
	Store   StoreFileConfig   `yaml:"store,omitempty"`
	Server  ServerFileConfig  `yaml:"server,omitempty"`
}

type PredictFileConfig struct {
	Model       string   `yaml:"model,omitempty"`
	Destination string   `yaml:"destination,omitempty"`
	Threshold   *float64 `yaml:"threshold,omitempty"`
	NoFigures   *bool    `yaml:"noFigures,omitempty"`
	FigureSeed  *uint64  `yaml:"figureSeed,omitempty"`
}

type TrainFileConfig struct {
	SampleSheet string `yaml:"sampleSheet,omitempty"`
	Hierarchy   string `yaml:"hierarchy,omitempty"`
	Params      string `yaml:"params,omitempty"`
	Cores       *int   `yaml:"cores,omitempty"`
	Filter      *bool  `yaml:"filter,omitempty"`
	Name        string `yaml:"name,omitempty"`
}

type LogFileConfig struct {
	Level   string `yaml:"level,omitempty"`
	Format  string `yaml:"format,omitempty"`
	Service string `yaml:"service,omitempty"`
}

type MetricsFileConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

type TracingFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
}

type StoreFileConfig struct {
	Path string `yaml:"path,omitempty"`
}

type ServerFileConfig struct {
	ListenAddr      string `yaml:"listenAddr,omitempty"`
	RateLimit       *int   `yaml:"rateLimit,omitempty"`
	MaxBodyBytes    *int64 `yaml:"maxBodyBytes,omitempty"`
	ReadTimeout     string `yaml:"readTimeout,omitempty"`
	WriteTimeout    string `yaml:"writeTimeout,omitempty"`
	ShutdownTimeout string `yaml:"shutdownTimeout,omitempty"`
	WatchModel      *bool  `yaml:"watchModel,omitempty"`
}
