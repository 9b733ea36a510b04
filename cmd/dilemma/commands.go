package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/signalnine/dilemmalab/api"
	"github.com/signalnine/dilemmalab/config"
	"github.com/signalnine/dilemmalab/export"
	"github.com/signalnine/dilemmalab/simulation"
	"github.com/signalnine/dilemmalab/snapshot"
	"github.com/signalnine/dilemmalab/store"
	"github.com/signalnine/dilemmalab/strategy"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>...",
		Short: "Check configuration files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				cfg, err := config.LoadFile(path)
				if err == nil {
					err = simulation.Validate(cfg, a.registry)
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: invalid\n", path)
					for _, e := range multierr.Errors(err) {
						fmt.Fprintf(out, "  - %v\n", e)
					}
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d configurations are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newStrategiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies [family]",
		Short: "List the available strategies",
		Long: `List strategies by family: pairwise (prisoner's dilemma, chicken),
harvest (tragedy of the commons), fund (free-rider) and pool (public goods).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			families := strategy.Families
			if len(args) == 1 {
				family := strategy.Family(strategy.Normalize(args[0]))
				if len(a.registry.Specs(family)) == 0 {
					return fmt.Errorf("unknown strategy family %q", args[0])
				}
				families = []strategy.Family{family}
			}

			if a.jsonOut {
				out := make(map[strategy.Family][]strategy.Spec, len(families))
				for _, f := range families {
					out[f] = a.registry.Specs(f)
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FAMILY\tSTRATEGY\tDESCRIPTION")
			for _, f := range families {
				for _, s := range a.registry.Specs(f) {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", f, s.Name, s.Description)
				}
			}
			return tw.Flush()
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.settings.Addr
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := api.NewServer(st, a.registry, a.logger,
				api.WithMaxRounds(a.settings.MaxRounds),
				api.WithMaxAgents(a.settings.MaxAgents),
				api.WithWorkers(a.settings.Workers))
			return server.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from settings)")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved simulation results",
		Long: `List results saved in the database, newest first.

Examples:
  dilemma history                          # First page
  dilemma history --game-type public_goods # Filter by game
  dilemma history --search baseline --sort name`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.ResultsQuery{}
			q.GameType, _ = cmd.Flags().GetString("game-type")
			q.Search, _ = cmd.Flags().GetString("search")
			q.Sort, _ = cmd.Flags().GetString("sort")
			q.Page, _ = cmd.Flags().GetInt("page")
			q.PerPage, _ = cmd.Flags().GetInt("per-page")

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.ListResults(cmd.Context(), q)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if len(list.Results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tGAME\tROUNDS\tAGENTS\tCOMPLETE\tCREATED")
			for _, r := range list.Results {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%t\t%s\n",
					r.ID, r.Name, r.GameType, r.TotalRounds, r.NumAgents, r.IsComplete, r.CreatedAt.Format("2006-01-02 15:04"))
			}
			tw.Flush()
			fmt.Fprintf(cmd.OutOrStdout(), "Page %d of %d (%d results)\n", list.Page, list.TotalPages, list.TotalCount)
			return nil
		},
	}
	cmd.Flags().String("game-type", "", "Only show this game type")
	cmd.Flags().String("search", "", "Match name or description")
	cmd.Flags().String("sort", store.SortNewest, "Sort order: newest, oldest, name")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("per-page", 10, "Results per page")
	return cmd
}

func newSnapshotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List saved snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := snapshot.NewDir(a.settings.SnapshotDir)
			entries, err := dir.List()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			if len(entries) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No snapshots in %s.\n", dir.Path())
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tKIND\tNAME\tGAME\tCREATED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Filename, e.Kind, e.Name, e.GameType, e.Created.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <file>",
		Short: "Print the summary of a results snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.NewDir(a.settings.SnapshotDir).Load(args[0])
			if err != nil {
				return err
			}
			if snap.Results == nil {
				if a.jsonOut {
					return writeJSON(cmd.OutOrStdout(), snap.Config)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is a configuration snapshot (%s)\n", args[0], snap.GameType)
				return nil
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), export.Summarize(snap.Results))
			}
			printSummary(cmd.OutOrStdout(), export.Summarize(snap.Results))
			return nil
		},
	})
	return cmd
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <file>",
		Short: "Decode a binary summary written by run --summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, err := export.DecodeSummary(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if a.jsonOut {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			printSummary(cmd.OutOrStdout(), s)
			return nil
		},
	}
}
