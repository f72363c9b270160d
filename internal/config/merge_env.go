// SPDX-License-Identifier: MIT

package config

// mergeEnvConfig merges environment variables into cfg.
// ENV variables take precedence over the file.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	l.mergeEnvCore(cfg)
	l.mergeEnvPredict(cfg)
	l.mergeEnvTrain(cfg)
	l.mergeEnvObservability(cfg)
	l.mergeEnvServer(cfg)
}

func (l *Loader) mergeEnvCore(cfg *AppConfig) {
	cfg.Mode = l.envString(EnvPrefix+"MODE", cfg.Mode)
	cfg.Samples = l.envString(EnvPrefix+"SAMPLES", cfg.Samples)
	cfg.GenesByRows = l.envBool(EnvPrefix+"GENES_BY_ROWS", cfg.GenesByRows)
	cfg.GeneLabels = l.envString(EnvPrefix+"GENE_LABELS", cfg.GeneLabels)
	cfg.Annotation = l.envString(EnvPrefix+"ANNOTATION", cfg.Annotation)
	cfg.StorePath = l.envString(EnvPrefix+"STORE_PATH", cfg.StorePath)
}

func (l *Loader) mergeEnvPredict(cfg *AppConfig) {
	cfg.ModelPath = l.envString(EnvPrefix+"MODEL", cfg.ModelPath)
	cfg.Destination = l.envString(EnvPrefix+"DESTINATION", cfg.Destination)
	cfg.Threshold = l.envFloat(EnvPrefix+"THRESHOLD", cfg.Threshold)
	cfg.NoFigures = l.envBool(EnvPrefix+"NO_FIGURES", cfg.NoFigures)
	cfg.FigureSeed = l.envUint(EnvPrefix+"FIGURE_SEED", cfg.FigureSeed)
}

func (l *Loader) mergeEnvTrain(cfg *AppConfig) {
	cfg.SampleSheet = l.envString(EnvPrefix+"SAMPLE_SHEET", cfg.SampleSheet)
	cfg.Hierarchy = l.envString(EnvPrefix+"HIERARCHY", cfg.Hierarchy)
	cfg.TrainingParams = l.envString(EnvPrefix+"TRAINING_PARAMS", cfg.TrainingParams)
	cfg.TrainingCores = l.envInt(EnvPrefix+"TRAINING_CORES", cfg.TrainingCores)
	cfg.Filter = l.envBool(EnvPrefix+"FILTER", cfg.Filter)
	cfg.ModelName = l.envString(EnvPrefix+"MODEL_NAME", cfg.ModelName)
}

func (l *Loader) mergeEnvObservability(cfg *AppConfig) {
	cfg.LogLevel = l.envString(EnvPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = l.envString(EnvPrefix+"LOG_FORMAT", cfg.LogFormat)
	cfg.LogService = l.envString(EnvPrefix+"LOG_SERVICE", cfg.LogService)
	cfg.MetricsTextfile = l.envString(EnvPrefix+"METRICS_TEXTFILE", cfg.MetricsTextfile)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"TRACING_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"TRACING_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TRACING_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
	cfg.Telemetry.Environment = l.envString(EnvPrefix+"TRACING_ENVIRONMENT", cfg.Telemetry.Environment)
}

func (l *Loader) mergeEnvServer(cfg *AppConfig) {
	cfg.Server.ListenAddr = l.envString(EnvPrefix+"LISTEN", cfg.Server.ListenAddr)
	cfg.Server.RateLimit = l.envInt(EnvPrefix+"RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.ReadTimeout = l.envDuration(EnvPrefix+"READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = l.envDuration(EnvPrefix+"WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = l.envDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.WatchModel = l.envBool(EnvPrefix+"WATCH_MODEL", cfg.Server.WatchModel)
}
