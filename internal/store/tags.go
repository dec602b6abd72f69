package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	KeyLocalMP3  = "local_mp3"
	KeyEmbedding = "embedding"
)

// ErrDuplicate is returned when a track already has a write-once tag.
var ErrDuplicate = errors.New("store: tag already exists")

// Tag is one (music_id, key) fact about a track.
type Tag struct {
	MusicID int64
	Key     string
	Text    *string
	Integer *int64
	Date    *string
	Vector  []byte
}

// CreateMusic inserts a new track and returns its id.
func (s *Store) CreateMusic(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO musics DEFAULT VALUES")
	if err != nil {
		return 0, fmt.Errorf("create music: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create music: %w", err)
	}
	return id, nil
}

// SetTag inserts or replaces a tag. Embeddings are write-once and must go
// through InsertEmbedding.
func (s *Store) SetTag(ctx context.Context, t *Tag) error {
	if t.Key == KeyEmbedding {
		return fmt.Errorf("set tag: %s is write-once, use InsertEmbedding", KeyEmbedding)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tags (music_id, key, text, integer, date, vector)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (music_id, key) DO UPDATE SET
			text = excluded.text,
			integer = excluded.integer,
			date = excluded.date,
			vector = excluded.vector`,
		t.MusicID, t.Key, t.Text, t.Integer, t.Date, t.Vector)
	if err != nil {
		return fmt.Errorf("set tag %d/%s: %w", t.MusicID, t.Key, err)
	}
	return nil
}

func (s *Store) GetTag(ctx context.Context, musicID int64, key string) (*Tag, error) {
	t := &Tag{}
	err := s.db.QueryRowContext(ctx, `SELECT music_id, key, text, integer, date, vector
		FROM tags WHERE music_id = ? AND key = ?`, musicID, key).Scan(
		&t.MusicID, &t.Key, &t.Text, &t.Integer, &t.Date, &t.Vector)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

// ListTagsByKey returns every tag with the given key, ascending by music id.
func (s *Store) ListTagsByKey(ctx context.Context, key string) ([]*Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT music_id, key, text, integer, date, vector
		FROM tags WHERE key = ? ORDER BY music_id`, key)
	if err != nil {
		return nil, fmt.Errorf("list tags by key: %w", err)
	}
	defer rows.Close()
	var tags []*Tag
	for rows.Next() {
		t := &Tag{}
		if err := rows.Scan(&t.MusicID, &t.Key, &t.Text, &t.Integer, &t.Date, &t.Vector); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (s *Store) CountTags(ctx context.Context, musicID int64, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM tags WHERE music_id = ? AND key = ?", musicID, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tags: %w", err)
	}
	return n, nil
}

// EmbeddedIDs returns the set of tracks that already carry an embedding.
func (s *Store) EmbeddedIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT music_id FROM tags WHERE key = ?", KeyEmbedding)
	if err != nil {
		return nil, fmt.Errorf("list embedded ids: %w", err)
	}
	defer rows.Close()
	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan embedded id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// HasPendingEmbedding reports whether any track with a local file still
// lacks an embedding.
func (s *Store) HasPendingEmbedding(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tags l
		WHERE l.key = ? AND NOT EXISTS (
			SELECT 1 FROM tags e WHERE e.music_id = l.music_id AND e.key = ?)
		LIMIT 1`, KeyLocalMP3, KeyEmbedding).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("probe pending embeddings: %w", err)
	}
	return true, nil
}

// InsertEmbedding writes the embedding for musicID in its own transaction.
// It never replaces an existing embedding: if one is present, or another
// writer commits one first, it returns ErrDuplicate and writes nothing.
func (s *Store) InsertEmbedding(ctx context.Context, musicID int64, vector []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert embedding: begin: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM tags WHERE music_id = ? AND key = ?",
		musicID, KeyEmbedding).Scan(&n); err != nil {
		return fmt.Errorf("insert embedding: check existing: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("insert embedding for %d: %w", musicID, ErrDuplicate)
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO tags (music_id, key, vector) VALUES (?, ?, ?)",
		musicID, KeyEmbedding, vector); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert embedding for %d: %w", musicID, ErrDuplicate)
		}
		return fmt.Errorf("insert embedding for %d: %w", musicID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("insert embedding for %d: commit: %w", musicID, err)
	}
	return nil
}

// ListEmbeddings returns every stored embedding blob keyed by music id.
func (s *Store) ListEmbeddings(ctx context.Context) (map[int64][]byte, error) {
	tags, err := s.ListTagsByKey(ctx, KeyEmbedding)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]byte, len(tags))
	for _, t := range tags {
		out[t.MusicID] = t.Vector
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Without extended result codes only the primary code is set.
	return serr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(serr.Error(), "UNIQUE")
}
