package extract

import (
	"fmt"
	"io"
	"time"
)

// Options selects and configures an extractor.
type Options struct {
	Provider string   // "command" or "http"
	Model    string   // model identifier passed to the backend
	Command  []string // command provider: program and leading args
	BaseURL  string   // http provider: model server URL
	CacheDir string   // optional extraction cache
	Spec     ModelSpec
	Timeout  time.Duration
}

// New builds the Gateway for opts. The returned closer releases the cache,
// if any, and must be called when the gateway is no longer used.
func New(opts Options) (*Gateway, io.Closer, error) {
	var ex Extractor
	switch opts.Provider {
	case "command", "":
		ex = NewCommand(opts.Command, opts.Model)
	case "http":
		ex = NewHTTP(opts.Model, opts.BaseURL)
	default:
		return nil, nil, fmt.Errorf("unknown extractor provider %q (available: command, http)", opts.Provider)
	}

	var closer io.Closer = nopCloser{}
	if opts.CacheDir != "" {
		cached, err := NewCached(ex, CacheOptions{Dir: opts.CacheDir})
		if err != nil {
			return nil, nil, err
		}
		ex = cached
		closer = cached
	}
	return NewGateway(ex, opts.Spec, opts.Timeout), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
