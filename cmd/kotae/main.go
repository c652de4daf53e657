// Command kotae runs the question-answering webhook service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bdobrica/Kotae/common/version"
	"github.com/bdobrica/Kotae/internal/kotae/app"
	"github.com/bdobrica/Kotae/internal/kotae/config"
)

var (
	promptsPath string
	logLevel    string
)

func main() {
	root := &cobra.Command{
		Use:           "kotae",
		Short:         "Conversational question answering over a pre-indexed corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&promptsPath, "prompts", "", "path to a YAML prompt pack (optional)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	root.AddCommand(serveCommand(), versionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the webhook HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A local .env is a development convenience; its absence is fine.
			_ = godotenv.Load()

			setupLogging(logLevel)

			settings, err := config.Load(promptsPath)
			if err != nil {
				return err
			}

			service, err := app.New(settings)
			if err != nil {
				return err
			}
			defer service.Stop()

			return service.Run()
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.Info())
		},
	}
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})
	slog.SetDefault(slog.New(handler))
}
