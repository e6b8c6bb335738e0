// Package main provides the CLI entry point for lampd, the behavioral
// core of a programmable smart-lamp controller.
//
// lampd owns the State Registry, Rule Store, Transition Engine, Trigger
// Scheduler, and Pipeline Executor described in spec.md, and optionally
// drives an Anthropic-backed agent loop over the tool surface. It does
// not drive LED hardware, a microphone, or a speaker — those are left to
// whatever process binds a state.Sink implementation other than the
// default LogSink.
//
// # Basic usage
//
//	lampd seed --config lampd.yaml
//	lampd run --config lampd.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lampd",
		Short: "lampd - programmable smart-lamp controller core",
		Long: `lampd is the behavioral core of a programmable smart-lamp controller:
a State Registry, Rule Store, Expression Sandbox, Transition Engine,
Trigger Scheduler, and Pipeline Executor, optionally driven by an agent
tool-use loop.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildRunCmd(),
		buildSeedCmd(),
		buildSafetyPassCmd(),
	)

	return rootCmd
}
