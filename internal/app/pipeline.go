package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"policyrag/internal/cache"
	"policyrag/internal/chunker"
	"policyrag/internal/extract"
	"policyrag/internal/index"
	"policyrag/internal/model"
)

var ErrInvalidInput = errors.New("invalid input")

// Placeholder answers for isolated per-question failures. The answer
// list always has one entry per question, even when individual questions
// fail.
const (
	timeoutAnswer = "This question could not be answered before the request deadline."
	failureAnswer = "This question could not be answered due to a provider failure."
)

// embeddingBatchSize bounds the number of chunks per embeddings call;
// providers commonly limit batch sizes.
const embeddingBatchSize = 10

// State is one stage of a pipeline run.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateExtracting State = "EXTRACTING"
	StateChunking   State = "CHUNKING"
	StateEmbedding  State = "EMBEDDING"
	StateIndexed    State = "INDEXED"
	StateAnswering  State = "ANSWERING"
	StateComplete   State = "COMPLETE"
	StateFailed     State = "FAILED"
)

// Extractor fetches a document reference and produces clean text.
type Extractor interface {
	Extract(ctx context.Context, reference string) (model.RawText, error)
}

// Embedder maps text to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options are the process-wide pipeline tunables.
type Options struct {
	ChunkSize            int
	ChunkOverlap         int
	TopK                 int
	MaxConcurrentAnswers int
	RequestDeadline      time.Duration
}

// Pipeline sequences extraction, chunking, embedding, indexing and
// answering for one request.
type Pipeline struct {
	extractor Extractor
	embedder  Embedder
	synth     *Synthesizer
	indexes   *cache.IndexCache
	documents *cache.DocumentCache // optional; nil disables the Redis layer
	opts      Options
}

func NewPipeline(extractor Extractor, embedder Embedder, synth *Synthesizer, indexes *cache.IndexCache, documents *cache.DocumentCache, opts Options) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap <= 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 5
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxConcurrentAnswers <= 0 {
		opts.MaxConcurrentAnswers = 4
	}
	if opts.RequestDeadline <= 0 {
		opts.RequestDeadline = 60 * time.Second
	}
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		synth:     synth,
		indexes:   indexes,
		documents: documents,
		opts:      opts,
	}
}

// run tracks the state machine for one request.
type run struct {
	ref   string
	state State
}

func newRun(ref string) *run {
	return &run{ref: ref, state: StateReceived}
}

func (r *run) advance(to State) {
	log.Printf("pipeline %s: %s -> %s", r.ref, r.state, to)
	r.state = to
}

func (r *run) fail(err error) {
	log.Printf("pipeline %s: %s -> %s (%v)", r.ref, r.state, StateFailed, err)
	r.state = StateFailed
}

// Run ingests the referenced document once and answers every question
// against the resulting index. The returned slice always has exactly one
// answer per question, in input order; per-question failures become
// placeholder answers while ingestion failures fail the whole request.
func (p *Pipeline) Run(ctx context.Context, reference string, questions []string) ([]model.Answer, error) {
	ref := NormalizeReference(reference)
	if ref == "" || len(questions) == 0 {
		return nil, ErrInvalidInput
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestDeadline)
	defer cancel()

	r := newRun(ref)
	ix, err := p.ensureIndex(ctx, r)
	if err != nil {
		r.fail(err)
		return nil, err
	}

	r.advance(StateAnswering)
	answers := make([]model.Answer, len(questions))
	sem := make(chan struct{}, p.opts.MaxConcurrentAnswers)
	var wg sync.WaitGroup
	for i, question := range questions {
		wg.Add(1)
		go func(i int, question string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			answers[i] = p.answerOne(ctx, ix, question, p.opts.TopK)
		}(i, question)
	}
	wg.Wait()

	r.advance(StateComplete)
	return answers, nil
}

// Ingest processes and indexes a document without answering anything,
// returning the number of indexed chunks.
func (p *Pipeline) Ingest(ctx context.Context, reference string) (int, error) {
	ref := NormalizeReference(reference)
	if ref == "" {
		return 0, ErrInvalidInput
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestDeadline)
	defer cancel()

	r := newRun(ref)
	ix, err := p.ensureIndex(ctx, r)
	if err != nil {
		r.fail(err)
		return 0, err
	}
	r.advance(StateComplete)
	return ix.Len(), nil
}

// Answer answers a single question against the referenced document.
// Unlike Run, failures surface as errors instead of placeholders. topK
// of zero uses the configured default.
func (p *Pipeline) Answer(ctx context.Context, reference, question string, topK int) (model.Answer, error) {
	ref := NormalizeReference(reference)
	question = strings.TrimSpace(question)
	if ref == "" || question == "" {
		return model.Answer{}, ErrInvalidInput
	}
	if topK <= 0 {
		topK = p.opts.TopK
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.RequestDeadline)
	defer cancel()

	r := newRun(ref)
	ix, err := p.ensureIndex(ctx, r)
	if err != nil {
		r.fail(err)
		return model.Answer{}, err
	}

	r.advance(StateAnswering)
	qVec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		r.fail(err)
		return model.Answer{}, err
	}
	retrieved, err := ix.Query(qVec, topK)
	if err != nil {
		r.fail(err)
		return model.Answer{}, err
	}
	answer, err := p.synth.Answer(ctx, question, retrieved)
	if err != nil {
		r.fail(err)
		return model.Answer{}, err
	}
	r.advance(StateComplete)
	return answer, nil
}

// ensureIndex returns the similarity index for r.ref, building it from
// scratch only when neither cache layer has it. The index is fully built
// and published before any question is dispatched against it.
func (p *Pipeline) ensureIndex(ctx context.Context, r *run) (*index.Index, error) {
	if ix, ok := p.indexes.Get(r.ref); ok {
		r.advance(StateIndexed)
		return ix, nil
	}

	if p.documents != nil {
		entries, ok, err := p.documents.Get(ctx, r.ref)
		if err != nil {
			log.Printf("document cache read failed for %s: %v", r.ref, err)
		} else if ok {
			ix, err := index.Build(entries)
			if err == nil {
				r.advance(StateIndexed)
				p.indexes.Put(r.ref, ix)
				return ix, nil
			}
			log.Printf("cached document for %s unusable, rebuilding: %v", r.ref, err)
		}
	}

	r.advance(StateExtracting)
	raw, err := p.extractor.Extract(ctx, r.ref)
	if err != nil {
		return nil, err
	}

	r.advance(StateChunking)
	chunks, err := chunker.Chunk(raw.Text, p.opts.ChunkSize, p.opts.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", extract.ErrEmptyDocument, r.ref)
	}
	for i := range chunks {
		chunks[i].DocumentRef = r.ref
	}

	r.advance(StateEmbedding)
	entries, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}

	ix, err := index.Build(entries)
	if err != nil {
		return nil, err
	}
	r.advance(StateIndexed)

	p.indexes.Put(r.ref, ix)
	if p.documents != nil {
		if err := p.documents.Set(ctx, r.ref, entries); err != nil {
			log.Printf("document cache write failed for %s: %v", r.ref, err)
		}
	}
	return ix, nil
}

// embedChunks embeds all chunks in provider-friendly batches, preserving
// chunk order. Any embedding failure aborts ingestion: a partial index
// is worse than no index.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []model.Chunk) ([]index.Entry, error) {
	entries := make([]index.Entry, 0, len(chunks))
	for start := 0; start < len(chunks); start += embeddingBatchSize {
		end := start + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d for %d chunks", len(vectors), len(batch))
		}
		for i := range batch {
			entries = append(entries, index.Entry{Vector: vectors[i], Chunk: batch[i]})
		}
	}
	return entries, nil
}

// answerOne resolves one question, mapping failures to placeholder
// answers so one bad question cannot poison the rest of the batch.
func (p *Pipeline) answerOne(ctx context.Context, ix *index.Index, question string, topK int) model.Answer {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Answer{Text: failureAnswer}
	}

	qVec, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return placeholderFor(question, err)
	}
	retrieved, err := ix.Query(qVec, topK)
	if err != nil {
		return placeholderFor(question, err)
	}
	answer, err := p.synth.Answer(ctx, question, retrieved)
	if err != nil {
		return placeholderFor(question, err)
	}
	return answer
}

func placeholderFor(question string, err error) model.Answer {
	log.Printf("question %q failed: %v", question, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.Answer{Text: timeoutAnswer}
	}
	return model.Answer{Text: failureAnswer}
}

// NormalizeReference is the cache key normalization for document
// references.
func NormalizeReference(reference string) string {
	return strings.TrimSpace(reference)
}
