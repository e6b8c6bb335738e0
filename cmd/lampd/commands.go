package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/adaptlight/lampcore/internal/config"
	"github.com/adaptlight/lampcore/internal/lamp/tools"
)

func buildRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine, scheduler, and (if configured) the agent loop",
		Long: `Start the Transition Engine's lane goroutine and the Trigger
Scheduler's timer/data-source pollers. If llm.api_key is set in the
config, also runs one agent turn per invocation of "lampd run --prompt".

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := cmd.Flags().GetString("prompt")
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), configPath, prompt)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "lampd.yaml", "Path to YAML configuration file")
	cmd.Flags().String("prompt", "", "Run a single agent turn with this user message, then exit")

	return cmd
}

func buildSeedCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Install default off/on states and starter rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sys, err := buildSystem(cfg)
			if err != nil {
				return fmt.Errorf("build system: %w", err)
			}
			if err := seedDefaults(sys); err != nil {
				return fmt.Errorf("seed defaults: %w", err)
			}
			slog.Info("seeded default states and rules", "states", len(sys.States.List()), "rules", len(sys.Rules.List()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "lampd.yaml", "Path to YAML configuration file")
	return cmd
}

func buildSafetyPassCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "safety-pass",
		Short: "Run the spec's exit-rule safety pass once, offline",
		Long: `Every non-off state must be the "from" of at least one rule; a state
that is not gets a button_click rule back to off. This command runs that check against the configured state/rule
stores without starting the agent loop, and reports how many exit rules
it added.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sys, err := buildSystem(cfg)
			if err != nil {
				return fmt.Errorf("build system: %w", err)
			}
			added := tools.RunSafetyPass(sys.States, sys.Rules)
			slog.Info("safety pass complete", "exit_rules_added", added)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "lampd.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath, prompt string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sys, err := buildSystem(cfg)
	if err != nil {
		return fmt.Errorf("build system: %w", err)
	}

	sys.Engine.Start()
	defer sys.Engine.Stop()
	defer sys.Scheduler.Shutdown()

	slog.Info("lampd started", "memory_path", cfg.Storage.MemoryPath, "pipelines_path", cfg.Storage.PipelinesPath)

	if prompt != "" {
		if sys.Agent == nil {
			return fmt.Errorf("--prompt given but llm.api_key is not configured")
		}
		outcome, err := sys.Agent.Run(ctx, "", prompt)
		if err != nil {
			return fmt.Errorf("agent turn failed: %w", err)
		}
		switch {
		case outcome.Done:
			fmt.Println(outcome.DoneMessage)
		case outcome.Question != "":
			fmt.Println(outcome.Question)
		default:
			slog.Info("agent turn ended without done/askUser", "tool_turns", outcome.ToolTurns)
		}
		return nil
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-runCtx.Done()
	slog.Info("shutdown signal received, draining lane")
	return nil
}
