package pipeline

import (
	"errors"
	"time"

	"github.com/ehrlich-b/trackembed/internal/embedding"
	"github.com/ehrlich-b/trackembed/internal/extract"
)

// Kind classifies why a track could not be embedded.
type Kind string

const (
	KindMissingFile Kind = "MissingFile"
	KindExtraction  Kind = "ExtractionFailure"
	KindEmptyMatrix Kind = "EmptyFeatureMatrix"
	KindPersistence Kind = "PersistenceFailure"
)

// Report summarizes one run.
type Report struct {
	RunID     string    `json:"run_id"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
}

// Failure is one track the run could not embed.
type Failure struct {
	MusicID int64  `json:"music_id"`
	Path    string `json:"path"`
	Kind    Kind   `json:"kind"`
	Detail  string `json:"error"`
	Err     error  `json:"-"`
}

// persistError marks errors from the write step.
type persistError struct{ err error }

func (e *persistError) Error() string { return "persist: " + e.err.Error() }
func (e *persistError) Unwrap() error { return e.err }

// Classify maps a per-track error to its Kind.
func Classify(err error) Kind {
	var pe *persistError
	switch {
	case errors.As(err, &pe):
		return KindPersistence
	case errors.Is(err, extract.ErrMissingFile):
		return KindMissingFile
	case errors.Is(err, embedding.ErrEmptyMatrix):
		return KindEmptyMatrix
	default:
		return KindExtraction
	}
}
