package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"
)

// Gateway is the pipeline's only way to reach the model.
type Gateway struct {
	ex      Extractor
	spec    ModelSpec
	timeout time.Duration
}

// NewGateway wraps ex. A positive timeout bounds each Extract call.
func NewGateway(ex Extractor, spec ModelSpec, timeout time.Duration) *Gateway {
	return &Gateway{ex: ex, spec: spec, timeout: timeout}
}

func (g *Gateway) Spec() ModelSpec      { return g.spec }
func (g *Gateway) Extractor() Extractor { return g.ex }

// Extract returns the configured channel of the model's output for path.
// Errors wrap ErrMissingFile or ErrExtraction.
func (g *Gateway) Extract(ctx context.Context, path string) (Matrix, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: track has no file path", ErrMissingFile)
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrExtraction, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrExtraction, path)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.ex.Extract(ctx, path)
	if err != nil {
		if errors.Is(err, ErrExtraction) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, path, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: %s: model returned no output", ErrExtraction, path)
	}

	m, ok := out.Channels[g.spec.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s: model output has no %q channel", ErrExtraction, path, g.spec.Channel)
	}
	if err := g.validate(m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExtraction, path, err)
	}
	return m, nil
}

func (g *Gateway) validate(m Matrix) error {
	for i, frame := range m {
		if len(frame) != g.spec.Dims {
			return fmt.Errorf("frame %d has %d dims, model %s has %d", i, len(frame), g.spec.Name, g.spec.Dims)
		}
		for j, x := range frame {
			if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
				return fmt.Errorf("frame %d dim %d is not finite", i, j)
			}
		}
	}
	return nil
}
