// Package embedding turns extracted feature matrices into fixed-length track
// embeddings and maps them to and from their stored blob form.
package embedding

import "errors"

var (
	// ErrEmptyMatrix is returned by Reduce when the matrix has no frames.
	ErrEmptyMatrix = errors.New("embedding: feature matrix has no frames")
	// ErrRaggedMatrix is returned by Reduce when frames differ in width.
	ErrRaggedMatrix = errors.New("embedding: feature matrix frames differ in width")
	// ErrBlobLength is returned by Decode for blobs that are not whole float32s.
	ErrBlobLength = errors.New("embedding: blob length is not a multiple of 4")
)
