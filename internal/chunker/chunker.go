// Package chunker splits normalized document text into overlapping
// fixed-size segments with stable positional metadata.
package chunker

import (
	"errors"
	"unicode"

	"policyrag/internal/model"
)

// ErrInvalidChunkParams reports a chunk size / overlap combination that
// would make no progress or produce empty windows.
var ErrInvalidChunkParams = errors.New("invalid chunk parameters")

// Chunk slides a window of size runes across text, advancing by
// size-overlap each step. A chunk is emitted only when the window still
// contains at least one non-whitespace rune; the final chunk may be
// shorter than size. The function is pure: identical inputs always yield
// identical chunk boundaries.
func Chunk(text string, size, overlap int) ([]model.Chunk, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, ErrInvalidChunkParams
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	var chunks []model.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		window := runes[start:end]
		if hasNonSpace(window) {
			chunks = append(chunks, model.Chunk{
				ID:          len(chunks),
				Text:        string(window),
				StartOffset: start,
				EndOffset:   end,
			})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

func hasNonSpace(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
