package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/trackembed/internal/embedding"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/spf13/cobra"
)

type embeddingResult struct {
	MusicID   int64     `json:"music_id"`
	Dims      int       `json:"dims"`
	Embedding []float32 `json:"embedding"`
}

func showCmd() *cobra.Command {
	var rawFlag bool

	cmd := &cobra.Command{
		Use:   "show <music-id>",
		Short: "Print a track's stored embedding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMusicID(args[0])
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			tag, err := st.GetTag(cmd.Context(), id, store.KeyEmbedding)
			if err != nil {
				return err
			}
			if tag == nil {
				return fmt.Errorf("track %d has no embedding", id)
			}

			if rawFlag {
				_, err := os.Stdout.Write(tag.Vector)
				return err
			}

			vec, err := embedding.Decode(tag.Vector)
			if err != nil {
				return fmt.Errorf("track %d: %w", id, err)
			}

			if wantJSON() {
				return json.NewEncoder(os.Stdout).Encode(embeddingResult{MusicID: id, Dims: len(vec), Embedding: vec})
			}

			fmt.Printf("track %d: %d dims, %s\n", id, len(vec), humanize.Bytes(uint64(len(tag.Vector))))
			parts := make([]string, len(vec))
			for i, x := range vec {
				parts[i] = strconv.FormatFloat(float64(x), 'g', 6, 32)
			}
			fmt.Println(strings.Join(parts, " "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&rawFlag, "raw", false, "Write the stored little-endian float32 blob as is")
	return cmd
}

func parseMusicID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid music id %q", s)
	}
	return id, nil
}
