package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ineyio/creditsync"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	envFile    string
	verbose    bool

	cfg    creditsync.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "creditctl",
		Short:         "Inspect credit balances and plan-limit refusals",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", envOr("CREDITSYNC_CONFIG", "creditsync.yaml"), "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newBalanceCmd(a),
		newClassifyCmd(),
		newEstimateCmd(a),
		newPrefsCmd(a),
		newVersionCmd(),
	)
	return root
}

// init loads the dotenv file and the config. Both are optional: a missing config
// file means defaults.
func (a *app) init(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, err := creditsync.LoadConfig(a.configPath)
	switch {
	case err == nil:
		a.cfg = cfg
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Debug("config file not found, using defaults", "path", a.configPath)
		a.cfg = creditsync.DefaultConfig()
	default:
		return err
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "creditctl %s\n", Version)
			if GitCommit != "unknown" {
				fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", GitCommit)
			}
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
