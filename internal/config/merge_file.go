// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"time"
)

// mergeFileConfig merges file configuration into cfg.
func (l *Loader) mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	l.mergeFileCore(dst, src)
	l.mergeFilePredict(dst, src)
	l.mergeFileTrain(dst, src)
	l.mergeFileObservability(dst, src)
	return l.mergeFileServer(dst, src)
}

func (l *Loader) mergeFileCore(dst *AppConfig, src *FileConfig) {
	if src.Mode != "" {
		dst.Mode = src.Mode
	}
	if src.Samples != "" {
		dst.Samples = expandEnv(src.Samples)
	}
	if src.GenesByRows != nil {
		dst.GenesByRows = *src.GenesByRows
	}
	if src.GeneLabels != "" {
		dst.GeneLabels = src.GeneLabels
	}
	if src.Annotation != "" {
		dst.Annotation = expandEnv(src.Annotation)
	}
	if src.Store.Path != "" {
		dst.StorePath = expandEnv(src.Store.Path)
	}
}

func (l *Loader) mergeFilePredict(dst *AppConfig, src *FileConfig) {
	p := src.Predict
	if p.Model != "" {
		dst.ModelPath = expandEnv(p.Model)
	}
	if p.Destination != "" {
		dst.Destination = expandEnv(p.Destination)
	}
	// pointer types allow false/0 values from YAML
	if p.Threshold != nil {
		dst.Threshold = *p.Threshold
	}
	if p.NoFigures != nil {
		dst.NoFigures = *p.NoFigures
	}
	if p.FigureSeed != nil {
		dst.FigureSeed = *p.FigureSeed
	}
}

func (l *Loader) mergeFileTrain(dst *AppConfig, src *FileConfig) {
	t := src.Train
	if t.SampleSheet != "" {
		dst.SampleSheet = expandEnv(t.SampleSheet)
	}
	if t.Hierarchy != "" {
		dst.Hierarchy = expandEnv(t.Hierarchy)
	}
	if t.Params != "" {
		dst.TrainingParams = expandEnv(t.Params)
	}
	if t.Cores != nil {
		dst.TrainingCores = *t.Cores
	}
	if t.Filter != nil {
		dst.Filter = *t.Filter
	}
	if t.Name != "" {
		dst.ModelName = t.Name
	}
}

func (l *Loader) mergeFileObservability(dst *AppConfig, src *FileConfig) {
	if src.Log.Level != "" {
		dst.LogLevel = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.LogFormat = src.Log.Format
	}
	if src.Log.Service != "" {
		dst.LogService = src.Log.Service
	}
	if src.Metrics.Textfile != "" {
		dst.MetricsTextfile = expandEnv(src.Metrics.Textfile)
	}

	tr := src.Tracing
	if tr.Enabled != nil {
		dst.Telemetry.Enabled = *tr.Enabled
	}
	if tr.Exporter != "" {
		dst.Telemetry.Exporter = tr.Exporter
	}
	if tr.Endpoint != "" {
		dst.Telemetry.Endpoint = tr.Endpoint
	}
	if tr.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *tr.SamplingRate
	}
	if tr.Environment != "" {
		dst.Telemetry.Environment = tr.Environment
	}
}

func (l *Loader) mergeFileServer(dst *AppConfig, src *FileConfig) error {
	s := src.Server
	if s.ListenAddr != "" {
		dst.Server.ListenAddr = s.ListenAddr
	}
	if s.RateLimit != nil {
		dst.Server.RateLimit = *s.RateLimit
	}
	if s.MaxBodyBytes != nil {
		dst.Server.MaxBodyBytes = *s.MaxBodyBytes
	}
	if s.WatchModel != nil {
		dst.Server.WatchModel = *s.WatchModel
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.readTimeout", s.ReadTimeout, &dst.Server.ReadTimeout},
		{"server.writeTimeout", s.WriteTimeout, &dst.Server.WriteTimeout},
		{"server.shutdownTimeout", s.ShutdownTimeout, &dst.Server.ShutdownTimeout},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}
