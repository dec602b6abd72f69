package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/spf13/cobra"
)

func runsCmd() *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recent runs, or the failures of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				return showRun(cmd, st, args[0])
			}

			runs, err := st.ListRecentRuns(cmd.Context(), limitFlag)
			if err != nil {
				return err
			}
			if wantJSON() {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			if len(runs) == 0 {
				fmt.Println("no runs yet")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tPROCESSED\tSKIPPED\tFAILED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
					r.ID, humanize.Time(r.StartedAt), r.Status, r.Processed, r.Skipped, r.Failed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func showRun(cmd *cobra.Command, st *store.Store, id string) error {
	run, err := st.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	failures, err := st.ListFailuresByRun(cmd.Context(), id)
	if err != nil {
		return err
	}

	if wantJSON() {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*store.Run
			Failures []*store.Failure
		}{run, failures})
	}

	fmt.Printf("run %s (%s)\n", run.ID, run.Status)
	fmt.Printf("  model:     %s\n", run.Model)
	fmt.Printf("  started:   %s\n", humanize.Time(run.StartedAt))
	if run.FinishedAt != nil {
		fmt.Printf("  took:      %s\n", run.FinishedAt.Sub(run.StartedAt))
	}
	fmt.Printf("  processed: %d, skipped: %d, failed: %d\n", run.Processed, run.Skipped, run.Failed)
	if len(failures) == 0 {
		return nil
	}
	fmt.Println()
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MUSIC ID\tKIND\tPATH\tERROR")
	for _, f := range failures {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.MusicID, f.Kind, f.Path, f.Detail)
	}
	return tw.Flush()
}
