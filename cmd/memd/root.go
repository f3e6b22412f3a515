package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentmemory/memd/internal/config"
	"github.com/agentmemory/memd/internal/project"
)

var (
	flagProjectDir string
	flagJSON       bool
	flagLogLevel   string
	flagConfigPath string

	rootCtx context.Context

	resolvedProjectDir string
	cfg                *config.Config
	logger             *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memd",
	Short: "memd - agent memory daemon",
	Long: "memd ingests agent conversational event streams, builds a hierarchical\n" +
		"table of contents, indexes it for lexical, vector, and topic-graph\n" +
		"retrieval, and answers queries through an explainable, tiered fallback\n" +
		"chain.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx = context.Background()

		dir, err := project.ResolveDir(flagProjectDir)
		if err != nil {
			return invalidArgf("resolving project directory: %v", err)
		}
		resolvedProjectDir = dir

		configPath := flagConfigPath
		if configPath == "" {
			candidate := filepath.Join(dir, "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				configPath = candidate
			}
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return invalidArgf("loading config: %v", err)
		}
		if err := loaded.BindFlags(cmd.Flags()); err != nil {
			return invalidArgf("binding flags: %v", err)
		}
		cfg = loaded

		level := flagLogLevel
		if !cmd.Flags().Changed("log-level") {
			if fromCfg := cfg.GetString("log.level"); fromCfg != "" {
				level = fromCfg
			}
		}
		logger = newLogger(level)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProjectDir, "project", "", "project directory (default: ./.memd)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config.yaml (default: <project>/config.yaml if present)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, queryCmd, adminCmd, schedulerCmd, versionCmd)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// invalidArgf builds an error exitCodeFor maps to exit code 2.
func invalidArgf(format string, args ...any) error {
	return &cliError{code: 2, err: fmt.Errorf(format, args...)}
}

// runtimeErrf builds an error exitCodeFor maps to exit code 1.
func runtimeErrf(format string, args ...any) error {
	return &cliError{code: 1, err: fmt.Errorf(format, args...)}
}

// cliError pairs an error with the exit code main() should use, letting
// any subcommand opt into a specific code without main() re-inspecting
// error contents for every call site.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }
