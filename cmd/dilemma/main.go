// Package main provides the dilemma CLI for running social dilemma simulations.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/logging"
	"github.com/signalnine/dilemmalab/store"
	"github.com/signalnine/dilemmalab/strategy"
)

// Version information (set by build flags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	settings *config.Settings
	logger   *slog.Logger
	registry *strategy.Registry
	jsonOut  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "dilemma",
		Short: "Social dilemma simulator",
		Long: `dilemma runs populations of strategies through social dilemma games:
the prisoner's dilemma, the game of chicken, the tragedy of the commons,
the free-rider problem and the public goods game.

Configurations are JSON or YAML documents naming the game, the number of
rounds and how many agents play each strategy.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("settings", "", "Settings file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides settings)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("extended", false, "Also register the optional strategies")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(a),
		newValidateCmd(a),
		newStrategiesCmd(a),
		newServeCmd(a),
		newHistoryCmd(a),
		newSnapshotsCmd(a),
		newSummaryCmd(a),
		newMCPCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("settings")
	settings, err := config.LoadSettings(path)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		settings.Logging.Level = level
	}
	if extended, _ := cmd.Flags().GetBool("extended"); extended {
		settings.Extensions = true
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	a.settings = settings
	a.jsonOut, _ = cmd.Flags().GetBool("json")

	// Logs always go to stderr so stdout stays parseable.
	logOut := cmd.ErrOrStderr()
	if logJSON, _ := cmd.Flags().GetBool("log-json"); logJSON {
		a.logger = logging.NewJSON(settings.Logging.Level, logOut)
	} else {
		a.logger = logging.New(settings.Logging.Level, logOut, settings.Logging.Color && isTerminal(logOut))
	}
	slog.SetDefault(a.logger)

	var opts []strategy.Option
	if settings.Extensions {
		opts = append(opts, strategy.WithExtensions())
	}
	a.registry = strategy.NewRegistry(opts...)
	return nil
}

func (a *app) openStore() (*store.Store, error) {
	st, err := store.Open(a.settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", a.settings.DBPath, err)
	}
	return st, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": Version, "build_time": BuildTime})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dilemma %s (built %s)\n", Version, BuildTime)
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
