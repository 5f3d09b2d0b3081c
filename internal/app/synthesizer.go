package app

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"policyrag/internal/model"
)

// NotFoundAnswer is returned verbatim when retrieval produced nothing to
// ground an answer on. Never answer ungrounded.
const NotFoundAnswer = "The provided document does not contain information relevant to this question."

const simpleSystemPrompt = "You are a policy document assistant. Answer the question using only the " +
	"information in the provided clauses. If the clauses do not contain the answer, say so plainly. " +
	"Reference the clause tags that support your answer, e.g. [CHUNK 2]. Be concise and accurate."

const structuredSystemPrompt = "You are a policy document analyzer. Based only on the provided policy clauses, " +
	"analyze the question and respond with a JSON object containing exactly these fields: " +
	"\"decision\" (approved, rejected, covered, not covered, or similar), " +
	"\"amount\" (the payout or limit amount, or \"N/A\"), " +
	"\"justification\" (explanation citing the specific clauses), " +
	"\"cited_chunks\" (array of the CHUNK numbers you relied on)."

// Generator is the LLM collaborator the synthesizer talks to.
type Generator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Synthesizer turns a question plus retrieved chunks into a grounded
// answer, with structured decision fields for determination questions.
type Synthesizer struct {
	gen Generator
}

func NewSynthesizer(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

var (
	jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)
	chunkTagRe   = regexp.MustCompile(`\[CHUNK (\d+)\]`)
)

type structuredResponse struct {
	Decision      string `json:"decision"`
	Amount        string `json:"amount"`
	Justification string `json:"justification"`
	CitedChunks   []int  `json:"cited_chunks"`
}

// Answer produces one answer for question given the retrieved chunks.
// With empty retrieval it returns the not-found answer without calling
// the provider. Cited chunk IDs are always filtered down to the set of
// retrieved IDs.
func (s *Synthesizer) Answer(ctx context.Context, question string, retrieved []model.ScoredChunk) (model.Answer, error) {
	if len(retrieved) == 0 {
		return model.Answer{Text: NotFoundAnswer}, nil
	}

	if wantsDetermination(question) {
		return s.structuredAnswer(ctx, question, retrieved)
	}
	return s.simpleAnswer(ctx, question, retrieved)
}

func (s *Synthesizer) simpleAnswer(ctx context.Context, question string, retrieved []model.ScoredChunk) (model.Answer, error) {
	text, err := s.gen.Complete(ctx, simpleSystemPrompt, buildUserPrompt(question, retrieved))
	if err != nil {
		return model.Answer{}, err
	}
	return model.Answer{
		Text:          text,
		CitedChunkIDs: citationsFromText(text, retrieved),
	}, nil
}

// structuredAnswer asks for JSON decision fields; when the response
// cannot be parsed it falls back to treating the raw text as a simple
// answer rather than failing the question.
func (s *Synthesizer) structuredAnswer(ctx context.Context, question string, retrieved []model.ScoredChunk) (model.Answer, error) {
	text, err := s.gen.Complete(ctx, structuredSystemPrompt, buildUserPrompt(question, retrieved))
	if err != nil {
		return model.Answer{}, err
	}

	parsed, ok := parseStructured(text)
	if !ok {
		return model.Answer{
			Text:          text,
			CitedChunkIDs: citationsFromText(text, retrieved),
		}, nil
	}

	cited := filterCitations(parsed.CitedChunks, retrieved)
	if len(cited) == 0 {
		cited = citationsFromText(parsed.Justification, retrieved)
	}
	return model.Answer{
		Text: composeDeterminationText(parsed),
		Structured: &model.Determination{
			Decision:      parsed.Decision,
			Amount:        parsed.Amount,
			Justification: parsed.Justification,
		},
		CitedChunkIDs: cited,
	}, nil
}

// wantsDetermination reports whether the question implies an approval or
// coverage determination rather than a plain lookup.
func wantsDetermination(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range []string{"approv", "cover", "claim", "eligib", "payout", "reimburs", "entitle"} {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// buildUserPrompt tags each retrieved chunk with its identifier so the
// generated answer can cite the clauses it used.
func buildUserPrompt(question string, retrieved []model.ScoredChunk) string {
	var sb strings.Builder
	sb.WriteString("Policy clauses:\n\n")
	for _, sc := range retrieved {
		fmt.Fprintf(&sb, "[CHUNK %d]\n%s\n\n", sc.Chunk.ID, sc.Chunk.Text)
	}
	fmt.Fprintf(&sb, "Question: %s\n\nAnswer:", question)
	return sb.String()
}

func parseStructured(text string) (structuredResponse, bool) {
	match := jsonObjectRe.FindString(text)
	if match == "" {
		return structuredResponse{}, false
	}
	var parsed structuredResponse
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return structuredResponse{}, false
	}
	if parsed.Decision == "" && parsed.Justification == "" {
		return structuredResponse{}, false
	}
	return parsed, true
}

func composeDeterminationText(parsed structuredResponse) string {
	parts := make([]string, 0, 3)
	if parsed.Decision != "" {
		parts = append(parts, "Decision: "+parsed.Decision+".")
	}
	if parsed.Amount != "" && !strings.EqualFold(parsed.Amount, "n/a") {
		parts = append(parts, "Amount: "+parsed.Amount+".")
	}
	if parsed.Justification != "" {
		parts = append(parts, parsed.Justification)
	}
	return strings.Join(parts, " ")
}

// citationsFromText collects [CHUNK n] tags present in text, keeping
// only IDs that were actually retrieved.
func citationsFromText(text string, retrieved []model.ScoredChunk) []int {
	var ids []int
	for _, m := range chunkTagRe.FindAllStringSubmatch(text, -1) {
		var id int
		fmt.Sscanf(m[1], "%d", &id)
		ids = append(ids, id)
	}
	return filterCitations(ids, retrieved)
}

// filterCitations enforces the traceability invariant: cited IDs must be
// a subset of the retrieved IDs.
func filterCitations(ids []int, retrieved []model.ScoredChunk) []int {
	allowed := make(map[int]bool, len(retrieved))
	for _, sc := range retrieved {
		allowed[sc.Chunk.ID] = true
	}
	seen := make(map[int]bool, len(ids))
	var out []int
	for _, id := range ids {
		if allowed[id] && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
