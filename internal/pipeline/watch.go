package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/trackembed/internal/logger"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Prober answers whether a run would find work.
type Prober interface {
	Pending(ctx context.Context) (bool, error)
}

// WatchOptions configures a Watcher.
type WatchOptions struct {
	Interval time.Duration // poll period
	MinGap   time.Duration // minimum time between two runs
	Dir      string        // storage dir to watch; empty disables notifications
	OnReport func(*Report) // called after every completed run

	// RetryAfter is how long polling leaves the catalog alone after a run in
	// which every track failed. A file event ends the wait early.
	RetryAfter time.Duration
}

// Watcher keeps the catalog embedded: it starts a run whenever the poll
// interval elapses or a file appears under the storage dir, provided there
// is pending work. Runs never overlap.
type Watcher struct {
	p       *Pipeline
	probe   Prober
	opts    WatchOptions
	limiter *rate.Limiter

	notified atomic.Bool // a file event arrived since the last step
	stalled  time.Time   // polls before this are skipped; worker only
}

func NewWatcher(p *Pipeline, probe Prober, opts WatchOptions) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MinGap <= 0 {
		opts.MinGap = opts.Interval
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 5 * time.Minute
	}
	return &Watcher{
		p:       p,
		probe:   probe,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.MinGap), 1),
	}
}

// Run blocks until ctx is cancelled or the file watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	var fw *fsnotify.Watcher
	if w.opts.Dir != "" {
		var err error
		fw, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		defer fw.Close()
		if err := addTree(fw, w.opts.Dir); err != nil {
			return fmt.Errorf("watch %s: %w", w.opts.Dir, err)
		}
	}

	trigger := make(chan struct{}, 1)
	fire := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		fire()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fire()
			}
		}
	})

	if fw != nil {
		g.Go(func() error { return w.notifyLoop(ctx, fw, fire) })
	}

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-trigger:
			}
			if err := w.limiter.Wait(ctx); err != nil {
				return nil
			}
			w.step(ctx, w.notified.Swap(false))
		}
	})

	return g.Wait()
}

// step runs the pipeline once if there is work. Errors are logged and the
// watcher keeps going, like a failed track inside a run.
func (w *Watcher) step(ctx context.Context, notified bool) {
	if !notified && w.p.now().Before(w.stalled) {
		return
	}
	pending, err := w.probe.Pending(ctx)
	if err != nil {
		logger.Error("probe for pending tracks failed", "error", err)
		return
	}
	if !pending {
		return
	}
	logger.Info("some tracks need embeddings")
	rep, err := w.p.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("embedding run failed", "error", err)
		}
		return
	}
	if rep.Processed == 0 && rep.Failed > 0 {
		w.stalled = w.p.now().Add(w.opts.RetryAfter)
		logger.Warn("every pending track failed, polling paused", "failed", rep.Failed, "retry_after", w.opts.RetryAfter)
	} else {
		w.stalled = time.Time{}
	}
	if w.opts.OnReport != nil {
		w.opts.OnReport(rep)
	}
}

func (w *Watcher) notifyLoop(ctx context.Context, fw *fsnotify.Watcher, fire func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// New sub-directories are watched too; fsnotify is not recursive.
				if err := addTree(fw, ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
					logger.Warn("cannot watch new directory", "path", ev.Name, "error", err)
				}
			}
			logger.Debug("storage changed", "path", ev.Name, "op", ev.Op.String())
			w.notified.Store(true)
			fire()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}

// addTree watches root and every directory below it. A non-directory root
// is ignored.
func addTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fw.Add(path)
	})
}
