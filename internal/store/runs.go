package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const timeFmt = "2006-01-02T15:04:05Z"

const (
	RunRunning     = "running"
	RunDone        = "done"
	RunInterrupted = "interrupted"
	RunAborted     = "aborted"
)

// Run is one pass of the embedding pipeline.
type Run struct {
	ID         string
	Model      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Processed  int
	Skipped    int
	Failed     int
}

// Failure is one track a run could not embed.
type Failure struct {
	ID        int64
	RunID     string
	MusicID   int64
	Path      string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

func (s *Store) StartRun(ctx context.Context, id, model string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO embed_runs (id, model, started_at, status) VALUES (?, ?, ?, ?)",
		id, model, startedAt.UTC().Format(timeFmt), RunRunning)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, r *Run) error {
	finished := time.Now()
	if r.FinishedAt != nil {
		finished = *r.FinishedAt
	}
	_, err := s.db.ExecContext(ctx, `UPDATE embed_runs
		SET finished_at = ?, status = ?, processed = ?, skipped = ?, failed = ?
		WHERE id = ?`,
		finished.UTC().Format(timeFmt), r.Status, r.Processed, r.Skipped, r.Failed, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

func (s *Store) AppendFailure(ctx context.Context, f *Failure) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO embed_failures (run_id, music_id, path, kind, detail) VALUES (?, ?, ?, ?, ?)",
		f.RunID, f.MusicID, f.Path, f.Kind, f.Detail)
	if err != nil {
		return fmt.Errorf("append failure: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	var startedAt string
	var finishedAt *string
	err := s.db.QueryRowContext(ctx, `SELECT id, model, started_at, finished_at, status, processed, skipped, failed
		FROM embed_runs WHERE id = ?`, id).Scan(
		&r.ID, &r.Model, &startedAt, &finishedAt, &r.Status, &r.Processed, &r.Skipped, &r.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.StartedAt = parseTime(startedAt)
	r.FinishedAt = parseTimePtr(finishedAt)
	return r, nil
}

// ListRecentRuns returns up to limit runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, model, started_at, finished_at, status, processed, skipped, failed
		FROM embed_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r := &Run{}
		var startedAt string
		var finishedAt *string
		if err := rows.Scan(&r.ID, &r.Model, &startedAt, &finishedAt, &r.Status, &r.Processed, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(startedAt)
		r.FinishedAt = parseTimePtr(finishedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) ListFailuresByRun(ctx context.Context, runID string) ([]*Failure, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, music_id, path, kind, detail, created_at
		FROM embed_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("list failures by run: %w", err)
	}
	defer rows.Close()
	var failures []*Failure
	for rows.Next() {
		f := &Failure{}
		var createdAt string
		if err := rows.Scan(&f.ID, &f.RunID, &f.MusicID, &f.Path, &f.Kind, &f.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.CreatedAt = parseTime(createdAt)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeFmt, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	if t.IsZero() {
		return nil
	}
	return &t
}
