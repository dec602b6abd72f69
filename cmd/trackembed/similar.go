package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ehrlich-b/trackembed/internal/embedding"
	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/spf13/cobra"
)

type similarResult struct {
	MusicID    int64   `json:"music_id"`
	Similarity float32 `json:"similarity"`
	Path       string  `json:"path,omitempty"`
}

func similarCmd() *cobra.Command {
	var nFlag int

	cmd := &cobra.Command{
		Use:   "similar <music-id>",
		Short: "List the tracks whose embeddings are closest to a track's",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if nFlag < 1 {
				return fmt.Errorf("-n must be at least 1, got %d", nFlag)
			}
			id, err := parseMusicID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			vecs, err := loadEmbeddings(cmd.Context(), st)
			if err != nil {
				return err
			}
			query, ok := vecs[id]
			if !ok {
				return fmt.Errorf("track %d has no embedding", id)
			}

			matches := embedding.Nearest(id, query, vecs, nFlag)
			results := make([]similarResult, len(matches))
			for i, m := range matches {
				results[i] = similarResult{MusicID: m.MusicID, Similarity: m.Similarity}
				if tag, err := st.GetTag(cmd.Context(), m.MusicID, store.KeyLocalMP3); err == nil && tag != nil && tag.Text != nil {
					results[i].Path = *tag.Text
				}
			}

			if wantJSON() {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "MUSIC ID\tSIMILARITY\tPATH")
			for _, r := range results {
				fmt.Fprintf(tw, "%d\t%.4f\t%s\n", r.MusicID, r.Similarity, r.Path)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&nFlag, "n", "n", 10, "Number of tracks to list")
	return cmd
}

// loadEmbeddings decodes every stored embedding. Blobs that do not decode
// are logged and left out.
func loadEmbeddings(ctx context.Context, st *store.Store) (map[int64][]float32, error) {
	blobs, err := st.ListEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	vecs := make(map[int64][]float32, len(blobs))
	for id, b := range blobs {
		v, err := embedding.Decode(b)
		if err != nil {
			logger.Warn("skipping undecodable embedding", "music_id", id, "error", err)
			continue
		}
		vecs[id] = v
	}
	return vecs, nil
}
