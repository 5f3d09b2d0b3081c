// Package index is an in-memory similarity index over chunk embeddings.
// Brute-force cosine scoring is adequate at the document scale this
// service targets; the Build/Query contract leaves room to swap in an
// ANN structure later without touching callers.
package index

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"policyrag/internal/model"
)

var ErrEmptyIndex = errors.New("similarity index is empty")

// Entry is one (vector, chunk) pair owned by the index that holds it.
type Entry struct {
	Vector []float32   `json:"vector"`
	Chunk  model.Chunk `json:"chunk"`
}

// Index holds the entries for one document. It is immutable after Build,
// so concurrent Query calls need no locking.
type Index struct {
	dim     int
	entries []Entry
}

// Build constructs a fresh index from entries. All vectors must share one
// dimension; a mismatch is a configuration error, not a runtime one.
func Build(entries []Entry) (*Index, error) {
	ix := &Index{entries: entries}
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("entry %d has an empty vector", i)
		}
		if ix.dim == 0 {
			ix.dim = len(e.Vector)
			continue
		}
		if len(e.Vector) != ix.dim {
			return nil, fmt.Errorf("embedding dimension mismatch: entry %d has %d, index has %d", i, len(e.Vector), ix.dim)
		}
	}
	return ix, nil
}

// Len returns the number of stored entries.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Query returns up to topK chunks ranked by cosine similarity to vec,
// strictly descending by score with ties broken by ascending chunk ID.
// topK is clamped to the index size.
func (ix *Index) Query(vec []float32, topK int) ([]model.ScoredChunk, error) {
	if ix.Len() == 0 {
		return nil, ErrEmptyIndex
	}
	if len(vec) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(vec), ix.dim)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	scored := make([]model.ScoredChunk, len(ix.entries))
	for i, e := range ix.entries {
		scored[i] = model.ScoredChunk{
			Chunk: e.Chunk,
			Score: cosineSimilarity(vec, e.Vector),
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
