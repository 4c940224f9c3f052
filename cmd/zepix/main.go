package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raykavin/zepix"
	"github.com/raykavin/zepix/pkg/config"
	"github.com/spf13/cobra"
)

// Command line flags shared by every command
var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "zepix",
		Short:   "Re-entry and profit chain tracker for MT5 orders",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultConfigPath, "Configuration file")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildChainsCmd(),
		buildReportCmd(),
		buildLadderCmd(),
		buildReplayCmd(),
		buildOptimizeCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor closed orders and manage re-entry chains",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zepix.NewLogger(settings.Log)
	if err != nil {
		return fmt.Errorf("invalid log settings: %w", err)
	}

	bot, err := zepix.NewBot(settings, zepix.WithLogger(log))
	if err != nil {
		return err
	}
	defer bot.Close()

	return bot.Run(cmd.Context())
}
