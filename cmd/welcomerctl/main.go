// Command welcomerctl is the operator tool for the welcomer: it publishes
// membership events to the bus, renders card previews and lists the
// delivery log.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/obs"
)

var rootCmd = &cobra.Command{
	Use:          "welcomerctl",
	Short:        "Operate the membership card welcomer",
	SilenceUsage: true,
}

var logger *zap.Logger

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	l, err := obs.NewLogger(obs.LogConfig{Level: env("LOG_LEVEL", "info"), Pretty: true, App: "welcomerctl"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	logger = l

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newEmitCommand())
	rootCmd.AddCommand(newPreviewCommand())
	rootCmd.AddCommand(newHistoryCommand())
}
