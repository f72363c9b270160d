// SPDX-License-Identifier: MIT

// Command tallsorts classifies T-ALL samples into subtypes from gene
// expression counts, trains custom classifiers and serves predictions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tallsorts/tallsorts/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a sub-command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "predict", "train", "serve":
		return runMode(ctx, args[0], args[1:], stdout, stderr)
	case "runs":
		return runRunsCLI(ctx, args[1:], stdout, stderr)
	case "config":
		return runConfigCLI(args[1:], stdout, stderr)
	case "version", "-version", "--version":
		_, _ = fmt.Fprintln(stdout, version.String())
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintln(w, "  tallsorts predict -samples counts.csv -model model.json.gz [-destination DIR] [flags]")
	_, _ = fmt.Fprintln(w, "  tallsorts train -samples counts.csv -samplesheet labels.csv -hierarchy hierarchy.csv [flags]")
	_, _ = fmt.Fprintln(w, "  tallsorts serve -model model.json.gz [-listen :8080] [flags]")
	_, _ = fmt.Fprintln(w, "  tallsorts runs [-store runs.sqlite] [-limit N] [-calls RUN_ID] [-verify quick|full]")
	_, _ = fmt.Fprintln(w, "  tallsorts config validate|dump [-f config.yaml]")
	_, _ = fmt.Fprintln(w, "  tallsorts version")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Run 'tallsorts <command> -h' for the flags of a command.")
}
