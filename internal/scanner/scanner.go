// Package scanner finds the catalog tracks that still need an embedding.
package scanner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/ehrlich-b/trackembed/internal/store"
)

// Catalog is the part of the store the scanner reads.
type Catalog interface {
	ListTagsByKey(ctx context.Context, key string) ([]*store.Tag, error)
	EmbeddedIDs(ctx context.Context) (map[int64]bool, error)
	HasPendingEmbedding(ctx context.Context) (bool, error)
}

// Candidate is a track with a local file and no embedding yet.
type Candidate struct {
	MusicID int64
	Path    string // local_mp3 value joined onto the storage dir; empty if unset
}

// Result is one scan of the catalog.
type Result struct {
	Candidates []Candidate
	Embedded   int // tracks with a local file that are already embedded
}

type Scanner struct {
	catalog    Catalog
	storageDir string
}

func New(catalog Catalog, storageDir string) *Scanner {
	return &Scanner{catalog: catalog, storageDir: storageDir}
}

// Scan lists pending tracks in ascending music id order. It only reads.
// Files are not checked here: a missing file, or a tag with no path at all,
// is still a candidate and fails loudly at extraction.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	tags, err := s.catalog.ListTagsByKey(ctx, store.KeyLocalMP3)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	embedded, err := s.catalog.EmbeddedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	res := &Result{}
	for _, t := range tags {
		if embedded[t.MusicID] {
			res.Embedded++
			continue
		}
		c := Candidate{MusicID: t.MusicID}
		if t.Text == nil || *t.Text == "" {
			// Kept so the run reports it as a missing file.
			logger.Warn("local_mp3 tag without a path", "music_id", t.MusicID)
		} else {
			c.Path = s.resolve(*t.Text)
		}
		res.Candidates = append(res.Candidates, c)
	}
	return res, nil
}

// Pending reports whether a Scan would find at least one candidate.
func (s *Scanner) Pending(ctx context.Context) (bool, error) {
	ok, err := s.catalog.HasPendingEmbedding(ctx)
	if err != nil {
		return false, fmt.Errorf("scan: %w", err)
	}
	return ok, nil
}

func (s *Scanner) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.storageDir, p)
}
