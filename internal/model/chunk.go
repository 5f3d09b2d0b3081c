package model

// RawText is the extracted plain text of one document, tagged with the
// source format it was extracted from. It only exists between extraction
// and chunking.
type RawText struct {
	Text   string `json:"text"`
	Format string `json:"format"` // "pdf", "docx" or "txt"
}

// Chunk is a bounded contiguous slice of document text with positional
// metadata. ID is the chunk's sequence index within its document.
// Offsets are rune positions into the normalized document text, with
// EndOffset > StartOffset.
type Chunk struct {
	ID          int    `json:"id"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	DocumentRef string `json:"document_ref,omitempty"`
}

// ScoredChunk pairs a retrieved chunk with its cosine similarity score.
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
