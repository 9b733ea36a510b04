package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/engine"
	"github.com/signalnine/dilemmalab/export"
	"github.com/signalnine/dilemmalab/simulation"
	"github.com/signalnine/dilemmalab/snapshot"
	"github.com/signalnine/dilemmalab/store"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run a simulation from a configuration file",
		Long: `Run a simulation and print its final statistics.

Examples:
  dilemma run pd.yaml                       # Run and print a table
  dilemma run pd.yaml --rounds 500 --seed 7 # Override rounds, fix the seed
  dilemma run pd.yaml --out results.json    # Write the full results
  dilemma run pd.yaml --replicates 20       # Aggregate 20 independent runs
  dilemma run pd.yaml --snapshot --save     # Keep a snapshot and a database record`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}

			replicates, _ := cmd.Flags().GetInt("replicates")
			if replicates > 1 {
				return a.runReplicates(cmd, cfg, replicates)
			}

			opts := a.simOptions(cmd)
			if cmd.Flags().Changed("seed") {
				seed, _ := cmd.Flags().GetInt64("seed")
				opts = append(opts, simulation.WithSeed(seed))
			}
			sim, err := simulation.New(cfg, a.registry, opts...)
			if err != nil {
				return err
			}
			if err := a.checkRounds(sim.Rounds()); err != nil {
				return err
			}
			res := sim.Run()

			if err := a.writeOutputs(cmd, cfg, res); err != nil {
				return err
			}
			if res.Error != "" {
				return errors.New(res.Error)
			}
			return nil
		},
	}

	cmd.Flags().Int("rounds", 0, "Override the configured number of rounds")
	cmd.Flags().Int64("seed", 0, "Random seed (default: the configured seed, else the current time)")
	cmd.Flags().Int("replicates", 1, "Number of independent runs to aggregate")
	cmd.Flags().Int("workers", 0, "Worker goroutines for replicates (0 = settings, then CPU count)")
	cmd.Flags().String("out", "", "Write the full results as JSON to this file")
	cmd.Flags().String("summary", "", "Write a binary summary to this file")
	cmd.Flags().Bool("snapshot", false, "Save configuration and results to the snapshot directory")
	cmd.Flags().Bool("save", false, "Save the results to the database")
	cmd.Flags().String("name", "", "Name for the saved results")
	cmd.Flags().String("description", "", "Description for the saved results")
	return cmd
}

// simOptions are the options every CLI run shares: logger, round override
// and the configured population limit.
func (a *app) simOptions(cmd *cobra.Command) []simulation.Option {
	rounds, _ := cmd.Flags().GetInt("rounds")
	return []simulation.Option{
		simulation.WithLogger(a.logger),
		simulation.WithRounds(rounds),
		simulation.WithMaxAgents(a.settings.MaxAgents),
	}
}

func (a *app) checkRounds(n int) error {
	if a.settings.MaxRounds > 0 && n > a.settings.MaxRounds {
		return fmt.Errorf("%d rounds exceeds max_rounds %d", n, a.settings.MaxRounds)
	}
	return nil
}

func (a *app) writeOutputs(cmd *cobra.Command, cfg *config.Config, res *engine.Results) error {
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := writeJSON(f, res); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		a.logger.Info("results written", "path", out)
	}

	if path, _ := cmd.Flags().GetString("summary"); path != "" {
		if err := os.WriteFile(path, export.EncodeSummary(res), 0644); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		a.logger.Info("summary written", "path", path)
	}

	if snap, _ := cmd.Flags().GetBool("snapshot"); snap {
		dir := snapshot.NewDir(a.settings.SnapshotDir)
		configFile, err := dir.SaveConfig(cfg, "")
		if err != nil {
			return err
		}
		resultsFile, err := dir.SaveResults(cfg, res, "", "")
		if err != nil {
			return err
		}
		a.logger.Info("snapshots saved", "dir", dir.Path(), "config", configFile, "results", resultsFile)
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		id, err := a.saveResult(cmd.Context(), name, description, cfg, res)
		if err != nil {
			return err
		}
		a.logger.Info("results saved", "id", id, "db", a.settings.DBPath)
	}

	if a.jsonOut {
		return writeJSON(cmd.OutOrStdout(), export.Summarize(res))
	}
	printSummary(cmd.OutOrStdout(), export.Summarize(res))
	return nil
}

func (a *app) saveResult(ctx context.Context, name, description string, cfg *config.Config, res *engine.Results) (string, error) {
	st, err := a.openStore()
	if err != nil {
		return "", err
	}
	defer st.Close()

	record, err := store.NewResult(name, description, cfg, res, nil)
	if err != nil {
		return "", err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := st.SaveResult(ctx, record); err != nil {
		return "", err
	}
	return record.ID, nil
}

func (a *app) runReplicates(cmd *cobra.Command, cfg *config.Config, n int) error {
	workers, _ := cmd.Flags().GetInt("workers")
	if workers == 0 {
		workers = a.settings.Workers
	}
	seed, _ := cmd.Flags().GetInt64("seed")
	if rounds, _ := cmd.Flags().GetInt("rounds"); rounds > 0 {
		cfg.Rounds = config.Int(rounds)
	}

	// Build one copy up front so limits apply before any replicate runs.
	first, err := simulation.New(cfg, a.registry, append(a.simOptions(cmd), simulation.WithSeed(seed))...)
	if err != nil {
		return err
	}
	if err := a.checkRounds(first.Rounds()); err != nil {
		return err
	}

	summary, err := simulation.RunReplicates(cfg, a.registry, n, workers, seed, a.logger)
	if summary.Replicates == 0 {
		return err
	}
	if err != nil {
		a.logger.Warn("some replicates failed", "error", err)
	}

	if a.jsonOut {
		return writeJSON(cmd.OutOrStdout(), summary)
	}
	printReplicates(cmd.OutOrStdout(), summary)
	return nil
}

func printSummary(w io.Writer, s export.Summary) {
	fmt.Fprintf(w, "Game: %s  Rounds: %d  Seed: %d\n", s.GameType, s.Rounds, s.Seed)
	if s.FailedRounds > 0 {
		fmt.Fprintf(w, "Failed rounds: %d\n", s.FailedRounds)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", s.Error)
	}
	if s.FinalError != "" {
		fmt.Fprintf(w, "Final statistics error: %s\n", s.FinalError)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tAGENTS\tSCORE\tSUSTAINABILITY\tWELFARE\tRESOURCES")
	for _, st := range s.Strategies {
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			st.Name, st.Agents, st.Score, st.SustainabilityImpact, st.SocialWelfare, st.TotalResources)
	}
	tw.Flush()
}

func printReplicates(w io.Writer, s simulation.ReplicateSummary) {
	fmt.Fprintf(w, "Game: %s  Replicates: %d  Errors: %d  Failed rounds: %d\n",
		s.GameType, s.Replicates, s.Errors, s.FailedRounds)

	names := make([]string, 0, len(s.Strategies))
	for name := range s.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tRUNS\tMEAN\tMIN\tMAX\tSUSTAINABILITY\tWELFARE")
	for _, name := range names {
		st := s.Strategies[name]
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			name, st.Runs, st.MeanScore, st.MinScore, st.MaxScore, st.MeanSustainability, st.MeanWelfare)
	}
	tw.Flush()
}
