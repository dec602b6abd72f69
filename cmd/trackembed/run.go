package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/trackembed/internal/pipeline"
	"github.com/ehrlich-b/trackembed/internal/scanner"
	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Embed every pending track once, then exit",
		Long:  "Makes one pass over the catalog. Tracks that fail are reported and left pending; the command only fails when the run cannot start.",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			gw, closeGateway, err := openGateway(cfg)
			if err != nil {
				return err
			}
			defer closeGateway()

			p := pipeline.New(scanner.New(st, cfg.Storage.Dir), gw, st)
			rep, err := p.Run(cmd.Context())
			if rep != nil {
				if perr := printReport(os.Stdout, rep, wantJSON()); perr != nil {
					return perr
				}
			}
			// Interrupted runs already printed their partial report.
			if err != nil && cmd.Context().Err() == nil {
				return err
			}
			return nil
		},
	}
}

func printReport(w io.Writer, rep *pipeline.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "run %s (%s)\n", rep.RunID, rep.Status)
	fmt.Fprintf(w, "  model:     %s\n", rep.Model)
	fmt.Fprintf(w, "  processed: %s\n", humanize.Comma(int64(rep.Processed)))
	fmt.Fprintf(w, "  skipped:   %s\n", humanize.Comma(int64(rep.Skipped)))
	fmt.Fprintf(w, "  failed:    %s\n", humanize.Comma(int64(rep.Failed)))
	fmt.Fprintf(w, "  took:      %s\n", rep.Finished.Sub(rep.Started).Round(time.Millisecond))
	if len(rep.Failures) == 0 {
		return nil
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MUSIC ID\tKIND\tPATH\tERROR")
	for _, f := range rep.Failures {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", f.MusicID, f.Kind, f.Path, f.Detail)
	}
	return tw.Flush()
}
