// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"io"

	"github.com/tallsorts/tallsorts/internal/config"
)

// flagSet records, per flag, how it changes the configuration. Only flags
// given on the command line become overrides, so unset flags never mask
// file or environment values.
type flagSet struct {
	*flag.FlagSet
	apply map[string]config.Override
}

func newFlagSet(name string, output io.Writer) *flagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return &flagSet{FlagSet: fs, apply: make(map[string]config.Override)}
}

func (f *flagSet) bind(names []string, o config.Override) {
	for _, n := range names {
		f.apply[n] = o
	}
}

func (f *flagSet) str(names []string, usage string, set func(*config.AppConfig, string)) {
	v := new(string)
	for _, n := range names {
		f.StringVar(v, n, "", usage)
	}
	f.bind(names, func(c *config.AppConfig) { set(c, *v) })
}

func (f *flagSet) boolean(names []string, usage string, set func(*config.AppConfig, bool)) {
	v := new(bool)
	for _, n := range names {
		f.BoolVar(v, n, false, usage)
	}
	f.bind(names, func(c *config.AppConfig) { set(c, *v) })
}

func (f *flagSet) integer(names []string, usage string, set func(*config.AppConfig, int)) {
	v := new(int)
	for _, n := range names {
		f.IntVar(v, n, 0, usage)
	}
	f.bind(names, func(c *config.AppConfig) { set(c, *v) })
}

func (f *flagSet) unsigned(names []string, usage string, set func(*config.AppConfig, uint64)) {
	v := new(uint64)
	for _, n := range names {
		f.Uint64Var(v, n, 0, usage)
	}
	f.bind(names, func(c *config.AppConfig) { set(c, *v) })
}

func (f *flagSet) float(names []string, usage string, set func(*config.AppConfig, float64)) {
	v := new(float64)
	for _, n := range names {
		f.Float64Var(v, n, 0, usage)
	}
	f.bind(names, func(c *config.AppConfig) { set(c, *v) })
}

// overrides returns the overrides of the flags that were set. Aliases share
// one value, so giving both applies the last one.
func (f *flagSet) overrides() []config.Override {
	var out []config.Override
	f.Visit(func(fl *flag.Flag) {
		if o, ok := f.apply[fl.Name]; ok {
			out = append(out, o)
		}
	})
	return out
}

// registerModeFlags declares the flags of predict, train and serve.
func registerModeFlags(fs *flagSet, mode string) {
	fs.str([]string{"samples", "s"}, "counts matrix (CSV/TSV, optionally .gz); samples as rows", func(c *config.AppConfig, v string) { c.Samples = v })
	fs.boolean([]string{"genes-by-rows"}, "the counts matrix has genes as rows", func(c *config.AppConfig, v bool) { c.GenesByRows = v })
	fs.str([]string{"gene-labels"}, "gene identifiers of the counts matrix: ensembl or symbol", func(c *config.AppConfig, v string) { c.GeneLabels = v })
	fs.str([]string{"annotation"}, "gene annotation table (gene_id, gene_name, contig, biotype)", func(c *config.AppConfig, v string) { c.Annotation = v })
	fs.str([]string{"store"}, "SQLite run registry; empty disables it", func(c *config.AppConfig, v string) { c.StorePath = v })
	fs.str([]string{"log-level"}, "log level (trace, debug, info, warn, error)", func(c *config.AppConfig, v string) { c.LogLevel = v })
	fs.str([]string{"log-format"}, "log format: console or json", func(c *config.AppConfig, v string) { c.LogFormat = v })
	fs.str([]string{"metrics-textfile"}, "write Prometheus metrics to this file after each run", func(c *config.AppConfig, v string) { c.MetricsTextfile = v })
	fs.boolean([]string{"tracing"}, "export OpenTelemetry traces", func(c *config.AppConfig, v bool) { c.Telemetry.Enabled = v })

	switch mode {
	case config.ModePredict:
		fs.str([]string{"model", "m"}, "model file", func(c *config.AppConfig, v string) { c.ModelPath = v })
		fs.str([]string{"destination", "d"}, "output directory", func(c *config.AppConfig, v string) { c.Destination = v })
		fs.float([]string{"threshold"}, "call threshold in (0, 1); 0 keeps the model's threshold", func(c *config.AppConfig, v float64) { c.Threshold = v })
		fs.boolean([]string{"no-figures"}, "skip the HTML/SVG figures", func(c *config.AppConfig, v bool) { c.NoFigures = v })
		fs.unsigned([]string{"seed"}, "seed of the figure jitter", func(c *config.AppConfig, v uint64) { c.FigureSeed = v })
	case config.ModeTrain:
		fs.str([]string{"samplesheet", "l"}, "sample sheet: one 0/1 column per label", func(c *config.AppConfig, v string) { c.SampleSheet = v })
		fs.str([]string{"hierarchy"}, "label hierarchy with a Parent column", func(c *config.AppConfig, v string) { c.Hierarchy = v })
		fs.str([]string{"params"}, "per-label training parameters", func(c *config.AppConfig, v string) { c.TrainingParams = v })
		fs.integer([]string{"cores", "c"}, "parallel fits", func(c *config.AppConfig, v int) { c.TrainingCores = v })
		fs.boolean([]string{"filter"}, "filter genes before scaling (use -filter=false to disable)", func(c *config.AppConfig, v bool) { c.Filter = v })
		fs.str([]string{"name"}, "model name", func(c *config.AppConfig, v string) { c.ModelName = v })
		fs.str([]string{"destination", "d"}, "output directory for the model", func(c *config.AppConfig, v string) { c.Destination = v })
	case config.ModeServe:
		fs.str([]string{"model", "m"}, "model file", func(c *config.AppConfig, v string) { c.ModelPath = v })
		fs.float([]string{"threshold"}, "call threshold in (0, 1); 0 keeps the model's threshold", func(c *config.AppConfig, v float64) { c.Threshold = v })
		fs.str([]string{"listen"}, "listen address", func(c *config.AppConfig, v string) { c.Server.ListenAddr = v })
		fs.integer([]string{"rate-limit"}, "API requests per minute per client IP; 0 disables", func(c *config.AppConfig, v int) { c.Server.RateLimit = v })
		fs.boolean([]string{"watch"}, "reload the model when its file changes", func(c *config.AppConfig, v bool) { c.Server.WatchModel = v })
	}
}
