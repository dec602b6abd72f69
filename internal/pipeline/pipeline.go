// Package pipeline embeds every pending catalog track, one at a time.
//
// Each track moves Pending → Extracted → Reduced → Encoded → Committed and
// is committed in its own transaction before the next one starts. A failed
// track writes nothing and stays pending for the next run, so a run can be
// interrupted at any point and simply started again.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehrlich-b/trackembed/internal/embedding"
	"github.com/ehrlich-b/trackembed/internal/extract"
	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/ehrlich-b/trackembed/internal/scanner"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/google/uuid"
)

// ErrDimensionMismatch means a reduced vector's length differs from the
// configured model's dimensionality. Nothing is written.
var ErrDimensionMismatch = errors.New("pipeline: embedding length does not match model dims")

// Gateway extracts the configured feature channel for one file.
type Gateway interface {
	Extract(ctx context.Context, path string) (extract.Matrix, error)
	Spec() extract.ModelSpec
}

// Store is where embeddings and run history are written.
type Store interface {
	InsertEmbedding(ctx context.Context, musicID int64, vector []byte) error
	StartRun(ctx context.Context, id, model string, startedAt time.Time) error
	FinishRun(ctx context.Context, r *store.Run) error
	AppendFailure(ctx context.Context, f *store.Failure) error
}

// Scanner lists pending tracks.
type Scanner interface {
	Scan(ctx context.Context) (*scanner.Result, error)
}

type Pipeline struct {
	scanner Scanner
	gateway Gateway
	store   Store
	now     func() time.Time
}

func New(sc Scanner, gw Gateway, st Store) *Pipeline {
	return &Pipeline{scanner: sc, gateway: gw, store: st, now: time.Now}
}

// Run makes one catch-up pass over the catalog. Per-track failures are
// recorded in the report and never stop the run. Run returns an error only
// when it cannot start (run log or scan failure) or when ctx is cancelled;
// in the latter case the partial report is returned too.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	spec := p.gateway.Spec()
	rep := &Report{RunID: uuid.NewString(), Model: spec.Name, Started: p.now()}
	log := logger.With("run_id", rep.RunID)

	if err := p.store.StartRun(ctx, rep.RunID, spec.Name, rep.Started); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	res, err := p.scanner.Scan(ctx)
	if err != nil {
		p.finish(rep, store.RunAborted)
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	rep.Skipped = res.Embedded
	log.Info("embedding run started", "model", spec.Name, "pending", len(res.Candidates), "skipped", rep.Skipped)

	for _, c := range res.Candidates {
		if err := ctx.Err(); err != nil {
			p.finish(rep, store.RunInterrupted)
			log.Warn("embedding run interrupted", "processed", rep.Processed, "remaining", len(res.Candidates)-rep.Processed-rep.Failed)
			return rep, err
		}

		start := time.Now()
		err := p.embed(ctx, c)
		if err != nil && ctx.Err() != nil {
			// Cut short by cancellation, not by the track: leave it pending
			// without blaming it.
			p.finish(rep, store.RunInterrupted)
			log.Warn("embedding run interrupted", "music_id", c.MusicID, "processed", rep.Processed)
			return rep, ctx.Err()
		}
		if err != nil {
			f := Failure{MusicID: c.MusicID, Path: c.Path, Kind: Classify(err), Detail: err.Error(), Err: err}
			rep.Failures = append(rep.Failures, f)
			rep.Failed++
			log.Error("embedding failed", "music_id", c.MusicID, "path", c.Path, "kind", f.Kind, "error", err)
			p.recordFailure(rep.RunID, f)
			continue
		}
		rep.Processed++
		log.Info("embedded track", "music_id", c.MusicID, "path", c.Path, "took", time.Since(start).Round(time.Millisecond))
	}

	p.finish(rep, store.RunDone)
	log.Info("embedding run finished", "processed", rep.Processed, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

// embed takes one track from Pending to Committed.
func (p *Pipeline) embed(ctx context.Context, c scanner.Candidate) error {
	m, err := p.gateway.Extract(ctx, c.Path)
	if err != nil {
		return err
	}

	vec, err := embedding.Reduce(m)
	if err != nil {
		return err
	}
	if dims := p.gateway.Spec().Dims; len(vec) != dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dims)
	}

	blob := embedding.Encode(vec)
	if err := p.store.InsertEmbedding(ctx, c.MusicID, blob); err != nil {
		return &persistError{err: err}
	}
	return nil
}

// Run bookkeeping must not fail the run, and still has to be written when
// ctx is already cancelled.
func (p *Pipeline) finish(rep *Report, status string) {
	rep.Finished = p.now()
	rep.Status = status
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.store.FinishRun(ctx, &store.Run{
		ID:         rep.RunID,
		Status:     status,
		Processed:  rep.Processed,
		Skipped:    rep.Skipped,
		Failed:     rep.Failed,
		FinishedAt: &rep.Finished,
	})
	if err != nil {
		logger.Warn("could not record run result", "run_id", rep.RunID, "error", err)
	}
}

func (p *Pipeline) recordFailure(runID string, f Failure) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.store.AppendFailure(ctx, &store.Failure{
		RunID:   runID,
		MusicID: f.MusicID,
		Path:    f.Path,
		Kind:    string(f.Kind),
		Detail:  f.Detail,
	})
	if err != nil {
		logger.Warn("could not record failure", "run_id", runID, "music_id", f.MusicID, "error", err)
	}
}
