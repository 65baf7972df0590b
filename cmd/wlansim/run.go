// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbmk-project/wlansim/config"
	"github.com/rbmk-project/wlansim/logging"
	"github.com/rbmk-project/wlansim/sim"
	"github.com/rbmk-project/wlansim/trace"
	"github.com/rbmk-project/wlansim/trace/sqlitestore"
)

// runFlags contains the flags overriding the scenario file.
type runFlags struct {
	configFile string
	duration   time.Duration
	seed       uint64
	tracePath  string
}

func newRunCommand() *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario",
		Long: `Run a scenario and print the per-mobile traffic counters.

When a trace database is configured, every protocol event is stored into
it and the number of events of each kind is printed as well.

Examples:
  wlansim run -c scenario.yaml
  wlansim run -c scenario.yaml --seed 7 --duration 30s --trace events.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = flags.seed
			}
			if cmd.Flags().Changed("duration") {
				if flags.duration <= 0 {
					return fmt.Errorf("invalid duration: %s", flags.duration)
				}
				cfg.Duration = flags.duration
			}
			if cmd.Flags().Changed("trace") {
				cfg.Trace.Path = flags.tracePath
			}
			return runScenario(cmd, cfg)
		},
	}
	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "scenario file (required)")
	cmd.Flags().DurationVar(&flags.duration, "duration", 0, "override the simulated duration")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "override the random seed")
	cmd.Flags().StringVar(&flags.tracePath, "trace", "", "store the trace events into this SQLite database")
	cmd.MarkFlagRequired("config")
	return cmd
}

func runScenario(cmd *cobra.Command, cfg *config.Scenario) (err error) {
	logger, logCloser, err := logging.New(&cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, logCloser.Close()) }()

	var (
		recorder trace.Recorder
		store    *sqlitestore.Store
	)
	if cfg.Trace.Path != "" {
		store, err = sqlitestore.Open(cfg.Trace.Path, logger)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, store.Close()) }()
		recorder = store
	}

	sc, err := sim.NewScenario(cfg, logger, recorder)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, sc.Close()) }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := sc.Run(ctx); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printStats(w, sc.Stats())
	if store != nil {
		counts, err := store.Counts()
		if err != nil {
			return err
		}
		printCounts(w, counts)
	}
	return nil
}

func printStats(w io.Writer, stats sim.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "node\taddress\tsent\tdelivered")
	for _, ns := range stats.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", ns.Name, ns.Address, ns.Sent, ns.Delivered)
	}
	tw.Flush()
	fmt.Fprintf(w, "total: sent=%d delivered=%d t=%s\n", stats.Sent, stats.Delivered, stats.At)
}

func printCounts(w io.Writer, counts map[trace.Kind]int64) {
	kinds := make([]trace.Kind, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "events: %s=%d\n", kind, counts[kind])
	}
}
