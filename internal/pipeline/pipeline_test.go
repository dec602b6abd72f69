package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/trackembed/internal/embedding"
	"github.com/ehrlich-b/trackembed/internal/extract"
	"github.com/ehrlich-b/trackembed/internal/scanner"
	"github.com/ehrlich-b/trackembed/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSpec = extract.ModelSpec{Name: "test_model", Channel: "penultimate", Dims: 2}

// hookStore counts committed embeddings and lets tests inject failures.
type hookStore struct {
	*store.Store
	inserts     int
	failInsert  func(musicID int64) error
	afterInsert func(n int)
}

func (h *hookStore) InsertEmbedding(ctx context.Context, musicID int64, vector []byte) error {
	if h.failInsert != nil {
		if err := h.failInsert(musicID); err != nil {
			return err
		}
	}
	if err := h.Store.InsertEmbedding(ctx, musicID, vector); err != nil {
		return err
	}
	h.inserts++
	if h.afterInsert != nil {
		h.afterInsert(h.inserts)
	}
	return nil
}

type env struct {
	t     *testing.T
	dir   string
	store *hookStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &env{t: t, dir: t.TempDir(), store: &hookStore{Store: s}}
}

// track adds a catalog entry for name, writing the audio file first when
// withFile is set.
func (e *env) track(name string, withFile bool) int64 {
	e.t.Helper()
	if withFile {
		require.NoError(e.t, os.WriteFile(filepath.Join(e.dir, name), []byte("mp3:"+name), 0644))
	}
	ctx := context.Background()
	id, err := e.store.CreateMusic(ctx)
	require.NoError(e.t, err)
	require.NoError(e.t, e.store.SetTag(ctx, &store.Tag{MusicID: id, Key: store.KeyLocalMP3, Text: &name}))
	return id
}

func (e *env) pipeline(ex extract.Extractor) *Pipeline {
	return New(scanner.New(e.store.Store, e.dir), extract.NewGateway(ex, testSpec, 0), e.store)
}

func (e *env) embeddings() map[int64][]byte {
	e.t.Helper()
	m, err := e.store.ListEmbeddings(context.Background())
	require.NoError(e.t, err)
	return m
}

func (e *env) embeddingRows(id int64) int {
	e.t.Helper()
	n, err := e.store.CountTags(context.Background(), id, store.KeyEmbedding)
	require.NoError(e.t, err)
	return n
}

// fakeModel emits two frames whose mean is [len(basename)+1, 2].
func fakeModel() extract.Func {
	return extract.Func{ID: "fake", Fn: func(ctx context.Context, path string) (*extract.Extraction, error) {
		n := float32(len(filepath.Base(path)))
		return &extract.Extraction{
			TimeFrames: []float32{0, 3},
			Labels:     []string{"rock"},
			Channels: map[string]extract.Matrix{
				"penultimate": {{n, 1}, {n + 2, 3}},
				"taggram":     {{0.9}, {0.1}},
			},
		}, nil
	}}
}

func TestRunFreshCatalog(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.track("a.mp3", true)
	b := e.track("b.mp3", true)
	existing := embedding.Encode([]float32{9, 9})
	require.NoError(t, e.store.Store.InsertEmbedding(ctx, b, existing))

	rep, err := e.pipeline(fakeModel()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, store.RunDone, rep.Status)

	got := e.embeddings()
	require.Len(t, got, 2)
	vec, err := embedding.Decode(got[a])
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 2}, vec)
	assert.Equal(t, existing, got[b], "pre-existing embedding must be untouched")
	assert.Equal(t, 1, e.embeddingRows(a))
	assert.Equal(t, 1, e.embeddingRows(b))

	run, err := e.store.GetRun(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunDone, run.Status)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, "test_model", run.Model)
}

func TestRunIdempotent(t *testing.T) {
	e := newEnv(t)
	for _, name := range []string{"a.mp3", "bb.mp3", "ccc.mp3"} {
		e.track(name, true)
	}
	p := e.pipeline(fakeModel())

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Processed)
	after1 := e.embeddings()
	inserts := e.store.inserts

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, inserts, e.store.inserts, "second run must not write")
	assert.Equal(t, after1, e.embeddings())
}

func TestRunMissingFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	c := e.track("missing.mp3", false)
	d := e.track("d.mp3", true)

	rep, err := e.pipeline(fakeModel()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Failures, 1)
	f := rep.Failures[0]
	assert.Equal(t, c, f.MusicID)
	assert.Equal(t, KindMissingFile, f.Kind)
	assert.Equal(t, filepath.Join(e.dir, "missing.mp3"), f.Path)
	assert.ErrorIs(t, f.Err, extract.ErrMissingFile)

	assert.Equal(t, 0, e.embeddingRows(c))
	assert.Equal(t, 1, e.embeddingRows(d))

	recorded, err := e.store.ListFailuresByRun(ctx, rep.RunID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, c, recorded[0].MusicID)
	assert.Equal(t, string(KindMissingFile), recorded[0].Kind)
}

func TestRunTrackWithoutPathFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	blank := e.track("", false)
	good := e.track("a.mp3", true)

	rep, err := e.pipeline(fakeModel()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 2, rep.Processed+rep.Skipped+rep.Failed, "every track is accounted for")
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, blank, rep.Failures[0].MusicID)
	assert.Equal(t, KindMissingFile, rep.Failures[0].Kind)
	assert.Equal(t, 1, e.embeddingRows(good))

	recorded, err := e.store.ListFailuresByRun(ctx, rep.RunID)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, blank, recorded[0].MusicID)
}

func TestRunResumesAfterInterruption(t *testing.T) {
	names := []string{"t1.mp3", "t2.mp3", "t3.mp3", "t4.mp3", "t5.mp3"}

	// Uninterrupted reference run.
	ref := newEnv(t)
	for _, n := range names {
		ref.track(n, true)
	}
	_, err := ref.pipeline(fakeModel()).Run(context.Background())
	require.NoError(t, err)

	// Same catalog, stopped right after the second commit.
	e := newEnv(t)
	for _, n := range names {
		e.track(n, true)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.store.afterInsert = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	p := e.pipeline(fakeModel())
	rep, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	assert.Equal(t, 2, rep.Processed)
	assert.Equal(t, store.RunInterrupted, rep.Status)
	assert.Len(t, e.embeddings(), 2)

	e.store.afterInsert = nil
	rep, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Processed)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, ref.embeddings(), e.embeddings())
}

func TestRunCancelledDuringExtraction(t *testing.T) {
	e := newEnv(t)
	id := e.track("slow.mp3", true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	model := extract.Func{ID: "slow", Fn: func(ctx context.Context, path string) (*extract.Extraction, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	rep, err := e.pipeline(model).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, rep.Failed, "an interrupted track is not a failure")
	assert.Equal(t, 0, e.embeddingRows(id))
}

func TestRunEmptyFeatureMatrix(t *testing.T) {
	e := newEnv(t)
	id := e.track("silence.mp3", true)
	model := extract.Func{ID: "empty", Fn: func(ctx context.Context, path string) (*extract.Extraction, error) {
		return &extract.Extraction{Channels: map[string]extract.Matrix{"penultimate": {}}}, nil
	}}

	rep, err := e.pipeline(model).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, KindEmptyMatrix, rep.Failures[0].Kind)
	assert.Equal(t, 0, e.embeddingRows(id))
}

func TestRunExtractionFailureContinues(t *testing.T) {
	e := newEnv(t)
	bad := e.track("corrupt.mp3", true)
	good := e.track("good.mp3", true)
	model := extract.Func{ID: "picky", Fn: func(ctx context.Context, path string) (*extract.Extraction, error) {
		if filepath.Base(path) == "corrupt.mp3" {
			return nil, extract.ErrUnreadableAudio
		}
		return fakeModel().Fn(ctx, path)
	}}

	rep, err := e.pipeline(model).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, bad, rep.Failures[0].MusicID)
	assert.Equal(t, KindExtraction, rep.Failures[0].Kind)
	assert.Equal(t, 1, e.embeddingRows(good))
}

// wideGateway skips the gateway's own checks to hand the pipeline a vector
// of the wrong length.
type wideGateway struct{}

func (wideGateway) Extract(ctx context.Context, path string) (extract.Matrix, error) {
	return extract.Matrix{{1, 2, 3}}, nil
}

func (wideGateway) Spec() extract.ModelSpec { return testSpec }

func TestRunDimensionMismatch(t *testing.T) {
	e := newEnv(t)
	id := e.track("a.mp3", true)
	p := New(scanner.New(e.store.Store, e.dir), wideGateway{}, e.store)

	rep, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, KindExtraction, rep.Failures[0].Kind)
	assert.ErrorIs(t, rep.Failures[0].Err, ErrDimensionMismatch)
	assert.Equal(t, 0, e.embeddingRows(id))
}

func TestRunConcurrentWriterKeepsOneEmbedding(t *testing.T) {
	e := newEnv(t)
	id := e.track("a.mp3", true)
	theirs := embedding.Encode([]float32{7, 7})
	model := extract.Func{ID: "racy", Fn: func(ctx context.Context, path string) (*extract.Extraction, error) {
		// Another writer commits an embedding while the model runs.
		require.NoError(t, e.store.Store.InsertEmbedding(ctx, id, theirs))
		return fakeModel().Fn(ctx, path)
	}}

	rep, err := e.pipeline(model).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, KindPersistence, rep.Failures[0].Kind)
	assert.ErrorIs(t, rep.Failures[0].Err, store.ErrDuplicate)
	assert.Equal(t, 1, e.embeddingRows(id))
	assert.Equal(t, theirs, e.embeddings()[id])
}

func TestRunPersistenceFailureRetriedNextRun(t *testing.T) {
	e := newEnv(t)
	id := e.track("a.mp3", true)
	e.store.failInsert = func(int64) error { return errors.New("database is locked") }

	p := e.pipeline(fakeModel())
	rep, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, KindPersistence, rep.Failures[0].Kind)
	assert.Equal(t, 0, e.embeddingRows(id))

	e.store.failInsert = nil
	rep, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Processed)
	assert.Equal(t, 1, e.embeddingRows(id))
}

type brokenScanner struct{}

func (brokenScanner) Scan(ctx context.Context) (*scanner.Result, error) {
	return nil, errors.New("no such table: tags")
}

func TestRunScanFailureAborts(t *testing.T) {
	e := newEnv(t)
	p := New(brokenScanner{}, extract.NewGateway(fakeModel(), testSpec, 0), e.store)

	rep, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, rep)

	runs, err := e.store.ListRecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunAborted, runs[0].Status)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{extract.ErrMissingFile, KindMissingFile},
		{extract.ErrExtraction, KindExtraction},
		{extract.ErrUnreadableAudio, KindExtraction},
		{embedding.ErrEmptyMatrix, KindEmptyMatrix},
		{embedding.ErrRaggedMatrix, KindExtraction},
		{ErrDimensionMismatch, KindExtraction},
		{&persistError{err: store.ErrDuplicate}, KindPersistence},
		{&persistError{err: errors.New("disk full")}, KindPersistence},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "Classify(%v)", c.err)
	}
}
