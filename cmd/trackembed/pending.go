package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/trackembed/internal/scanner"
	"github.com/spf13/cobra"
)

type pendingTrack struct {
	MusicID int64  `json:"music_id"`
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Missing bool   `json:"missing,omitempty"`
}

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List tracks that still need an embedding",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := scanner.New(st, cfg.Storage.Dir).Scan(cmd.Context())
			if err != nil {
				return err
			}

			tracks := make([]pendingTrack, 0, len(res.Candidates))
			for _, c := range res.Candidates {
				t := pendingTrack{MusicID: c.MusicID, Path: c.Path}
				if info, err := os.Stat(c.Path); err == nil {
					t.Size = info.Size()
				} else {
					t.Missing = true
				}
				tracks = append(tracks, t)
			}

			if wantJSON() {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(tracks)
			}

			fmt.Printf("%d pending, %d embedded\n", len(tracks), res.Embedded)
			if len(tracks) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MUSIC ID\tSIZE\tPATH")
			for _, t := range tracks {
				size := humanize.Bytes(uint64(t.Size))
				if t.Missing {
					size = "missing"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\n", t.MusicID, size, t.Path)
			}
			return tw.Flush()
		},
	}
}
