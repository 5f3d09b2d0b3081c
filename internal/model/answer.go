package model

// Determination holds the structured fields produced for approval and
// coverage style questions.
type Determination struct {
	Decision      string `json:"decision"`
	Amount        string `json:"amount"`
	Justification string `json:"justification"`
}

// Answer is the result for one question. Structured is nil when the
// synthesizer answered in simple (free text) mode. CitedChunkIDs is
// always a subset of the chunk IDs that were retrieved for the question.
type Answer struct {
	Text          string         `json:"text"`
	Structured    *Determination `json:"structured,omitempty"`
	CitedChunkIDs []int          `json:"cited_chunk_ids,omitempty"`
}
