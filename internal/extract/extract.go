// Package extract is the boundary to the external audio feature model. An
// Extractor runs the model on one file; the Gateway wraps it with the checks
// the pipeline relies on: the file exists, the configured channel is present,
// and every frame has the model's dimensionality.
package extract

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingFile means the audio file does not exist.
	ErrMissingFile = errors.New("extract: audio file not found")
	// ErrExtraction means the model failed or returned unusable output.
	ErrExtraction = errors.New("extract: extraction failed")
	// ErrUnreadableAudio means the model could not decode the audio. It is a
	// kind of ErrExtraction.
	ErrUnreadableAudio = fmt.Errorf("%w: audio could not be decoded", ErrExtraction)
)

// Matrix is a time-indexed feature matrix: Matrix[frame][dim].
type Matrix [][]float32

// Frames returns the number of time frames.
func (m Matrix) Frames() int { return len(m) }

// Extraction is everything a model returns for one file. Consumers pick the
// channel they need by name.
type Extraction struct {
	TimeFrames []float32         `json:"timeframes" msgpack:"timeframes"`
	Labels     []string          `json:"labels" msgpack:"labels"`
	Channels   map[string]Matrix `json:"channels" msgpack:"channels"`
}

// Extractor runs a feature extraction model on one audio file.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Extraction, error)
	Name() string // unique key for caching, e.g. "command-MTT_musicnn"
}

// Checker is implemented by extractors that can verify their backend is
// usable without running a full extraction.
type Checker interface {
	Check(ctx context.Context) error
}

// ModelSpec describes the configured model's output contract.
type ModelSpec struct {
	Name    string
	Channel string
	Dims    int
}

// Func adapts a plain function to the Extractor interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, path string) (*Extraction, error)
}

func (f Func) Extract(ctx context.Context, path string) (*Extraction, error) {
	return f.Fn(ctx, path)
}

func (f Func) Name() string { return "func-" + f.ID }
