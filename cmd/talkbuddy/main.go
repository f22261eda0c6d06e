// Command talkbuddy is the main entry point for the TalkBuddy voice coaching
// backend.
//
// Usage:
//
//	talkbuddy [--config config.yaml] <command> [args]
//
// Commands:
//
//	serve    - Run the HTTP and WebSocket server
//	enroll   - Enroll the speaker from a 16 kHz WAV recording (or stdin)
//	version  - Print the build version
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/talkbuddy/internal/app"
	"github.com/MrWong99/talkbuddy/internal/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "talkbuddy",
	Short: "Real-time voice English coaching backend",
	Long: `TalkBuddy listens to a learner over a WebSocket, verifies that the
enrolled speaker is talking, transcribes each utterance and answers as a
friendly English coach.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "talkbuddy", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "talkbuddy:", err)
		os.Exit(1)
	}
}

// newApp builds the configured providers and wires them into an App.
func newApp(ctx context.Context, cfg *config.Config) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}
	a, err := app.New(ctx, cfg, providers)
	if err != nil {
		return nil, fmt.Errorf("initialise application: %w", err)
	}
	return a, nil
}

// loadConfig reads the config named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", configPath)
	}
	return cfg, err
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// logLevel is shared by the default logger so hot reloads can change it.
var logLevel = new(slog.LevelVar)

func newLogger(level config.LogLevel) *slog.Logger {
	logLevel.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
