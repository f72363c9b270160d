// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/tallsorts/tallsorts/internal/config"
	"github.com/tallsorts/tallsorts/internal/store"
)

func runRunsCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tallsorts runs", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		configPath string
		storePath  string
		limit      int
		callsOf    string
		verify     string
		asJSON     bool
	)
	fs.StringVar(&configPath, "config", "", "path to config file (YAML) holding store.path")
	fs.StringVar(&storePath, "store", "", "SQLite run registry")
	fs.IntVar(&limit, "limit", 20, "number of runs to list")
	fs.StringVar(&callsOf, "calls", "", "print the calls of this run instead of listing runs")
	fs.StringVar(&verify, "verify", "", "check registry integrity: quick or full")
	fs.BoolVar(&asJSON, "json", false, "print JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	path, err := resolveStorePath(storePath, configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	st, err := store.Open(ctx, path)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = st.Close() }()

	switch {
	case verify != "":
		return runsVerify(ctx, st, verify, stdout, stderr)
	case callsOf != "":
		calls, err := st.Calls(ctx, callsOf)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if asJSON {
			return printJSON(stdout, stderr, calls)
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "LEVEL\tSAMPLE\tPRED\tPROBA\tMULTI")
		for _, c := range calls {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%t\n", c.Level, c.Sample, c.Pred, c.ProbaRaw, c.MultiCall)
		}
		_ = tw.Flush()
		return 0
	default:
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if asJSON {
			return printJSON(stdout, stderr, runs)
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tMODE\tSTATUS\tSAMPLES\tSTARTED\tDURATION")
		for _, r := range runs {
			dur := "-"
			if !r.FinishedAt.IsZero() {
				dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.Mode, r.Status, r.Samples, r.StartedAt.Format(time.RFC3339), dur)
		}
		_ = tw.Flush()
		return 0
	}
}

// resolveStorePath applies flag > TALLSORTS_STORE_PATH > config file.
func resolveStorePath(flagPath, configPath string) (string, error) {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(config.ParseString(config.EnvPrefix+"STORE_PATH", "")); p != "" {
		return p, nil
	}
	if configPath != "" {
		fc, err := config.LoadFileConfig(configPath)
		if err != nil {
			return "", err
		}
		if p := strings.TrimSpace(fc.Store.Path); p != "" {
			return p, nil
		}
	}
	return "", errors.New("no run registry configured (use -store, TALLSORTS_STORE_PATH or store.path)")
}

func runsVerify(ctx context.Context, st *store.SqliteStore, mode string, stdout, stderr io.Writer) int {
	if mode != "quick" && mode != "full" {
		_, _ = fmt.Fprintf(stderr, "Error: -verify must be quick or full, got %q\n", mode)
		return 2
	}
	issues, err := st.Verify(ctx, mode)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(issues) > 0 {
		for _, issue := range issues {
			_, _ = fmt.Fprintf(stdout, "  %s\n", issue)
		}
		_, _ = fmt.Fprintf(stdout, "run registry FAILED %s integrity check (%d issues)\n", mode, len(issues))
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "run registry passed %s integrity check\n", mode)
	return 0
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
