package embedding

import (
	"math"
	"sort"
)

// Match is a candidate track and its cosine similarity to a query.
type Match struct {
	MusicID    int64
	Similarity float32
}

// Cosine returns the cosine similarity between two vectors, or 0 when their
// lengths differ or either has zero norm.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// Nearest returns the n candidates most similar to query, best first.
// Candidates whose length differs from the query are ignored, as is the
// query track itself.
func Nearest(queryID int64, query []float32, candidates map[int64][]float32, n int) []Match {
	matches := make([]Match, 0, len(candidates))
	for id, c := range candidates {
		if id == queryID || len(c) != len(query) {
			continue
		}
		matches = append(matches, Match{MusicID: id, Similarity: Cosine(query, c)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity == matches[j].Similarity {
			return matches[i].MusicID < matches[j].MusicID
		}
		return matches[i].Similarity > matches[j].Similarity
	})
	n = max(0, min(n, len(matches)))
	return matches[:n]
}
