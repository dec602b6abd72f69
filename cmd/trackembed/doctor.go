package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ehrlich-b/trackembed/internal/extract"
	"github.com/ehrlich-b/trackembed/internal/scanner"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the database, storage dir, and extraction model",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ok := true

			fmt.Println("trackembed doctor")
			fmt.Println()

			// Config
			fmt.Println("Config:")
			fmt.Printf("  database:  %s\n", cfg.Database.Path)
			fmt.Printf("  storage:   %s\n", cfg.Storage.Dir)
			fmt.Printf("  model:     %s (%s, %d dims)\n", cfg.Model.Name, cfg.Model.Channel, cfg.Model.Dims)
			switch cfg.Model.Provider {
			case "http":
				fmt.Printf("  provider:  http %s\n", cfg.Model.BaseURL)
			default:
				fmt.Printf("  provider:  command %s\n", cfg.Model.Command)
			}
			if cfg.Cache.Dir != "" {
				fmt.Printf("  cache:     %s\n", cfg.Cache.Dir)
			}
			fmt.Println()

			// Storage
			fmt.Println("Storage:")
			if files, size, err := audioUsage(cfg.Storage.Dir); err != nil {
				fmt.Printf("  %-10s %v\n", "dir", err)
				ok = false
			} else {
				fmt.Printf("  %-10s %d files, %s\n", "audio", files, humanize.Bytes(uint64(size)))
			}
			fmt.Println()

			// Database
			fmt.Println("Database:")
			if !checkDatabase(ctx) {
				ok = false
			}
			fmt.Println()

			// Model
			fmt.Println("Extractor:")
			if !checkExtractor(ctx) {
				ok = false
			}

			if !ok {
				return fmt.Errorf("some checks failed")
			}
			return nil
		},
	}
}

func checkDatabase(ctx context.Context) bool {
	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("  %-10s %v\n", "open", err)
		return false
	}
	defer st.Close()

	if err := st.Ping(ctx); err != nil {
		fmt.Printf("  %-10s %v\n", "ping", err)
		return false
	}
	if info, err := os.Stat(cfg.Database.Path); err == nil {
		fmt.Printf("  %-10s %s, modified %s\n", "file", humanize.Bytes(uint64(info.Size())), humanize.Time(info.ModTime()))
	}

	tracks, err := st.ListTagsByKey(ctx, store.KeyLocalMP3)
	if err != nil {
		fmt.Printf("  %-10s %v\n", "tracks", err)
		return false
	}
	res, err := scanner.New(st, cfg.Storage.Dir).Scan(ctx)
	if err != nil {
		fmt.Printf("  %-10s %v\n", "scan", err)
		return false
	}
	fmt.Printf("  %-10s %d with audio, %d embedded, %d pending\n", "tracks", len(tracks), res.Embedded, len(res.Candidates))
	return true
}

func checkExtractor(ctx context.Context) bool {
	gw, closeGateway, err := openGateway(cfg)
	if err != nil {
		fmt.Printf("  %-10s %v\n", "setup", err)
		return false
	}
	defer closeGateway()

	ex := gw.Extractor()
	ch, ok := ex.(extract.Checker)
	if !ok {
		fmt.Printf("  %-10s no health check available\n", ex.Name())
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := ch.Check(ctx); err != nil {
		fmt.Printf("  %-10s %v\n", ex.Name(), err)
		return false
	}
	fmt.Printf("  %-10s ok\n", ex.Name())
	return true
}

// audioUsage counts the audio files under dir and their total size.
func audioUsage(dir string) (int, int64, error) {
	var files int
	var size int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isAudio(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files++
		size += info.Size()
		return nil
	})
	return files, size, err
}

var audioExts = map[string]bool{".mp3": true, ".flac": true, ".ogg": true, ".wav": true, ".m4a": true}

func isAudio(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}
