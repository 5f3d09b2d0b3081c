package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"policyrag/internal/ai"
	"policyrag/internal/app"
	"policyrag/internal/chunker"
	"policyrag/internal/extract"
	"policyrag/internal/model"
	"policyrag/internal/transport/http/response"
)

// PipelineService is the orchestrator surface the transport depends on.
type PipelineService interface {
	Run(ctx context.Context, reference string, questions []string) ([]model.Answer, error)
	Ingest(ctx context.Context, reference string) (int, error)
	Answer(ctx context.Context, reference, question string, topK int) (model.Answer, error)
}

// AuditSink receives answered questions for out-of-band persistence.
type AuditSink interface {
	Publish(ctx context.Context, record model.QARecord) error
}

type RunHandler struct {
	pipeline PipelineService
	audit    AuditSink // nil when auditing is disabled
}

func NewRunHandler(pipeline PipelineService, audit AuditSink) *RunHandler {
	return &RunHandler{pipeline: pipeline, audit: audit}
}

type RunRequest struct {
	Documents string   `json:"documents" binding:"required"`
	Questions []string `json:"questions" binding:"required,min=1"`
}

// RunResponse is the boundary contract: one answer string per question,
// in input order.
type RunResponse struct {
	Answers []string `json:"answers"`
}

type IngestRequest struct {
	Document string `json:"document" binding:"required"`
}

type AnswerRequest struct {
	Document string `json:"document" binding:"required"`
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

// Run ingests the document once and answers every question against it.
func (h *RunHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest,
			"invalid request, expected JSON: {\"documents\":\"...\",\"questions\":[\"...\"]}")
		return
	}

	start := time.Now()
	answers, err := h.pipeline.Run(c.Request.Context(), req.Documents, req.Questions)
	if err != nil {
		writePipelineError(c, err)
		return
	}
	elapsed := time.Since(start)
	log.Printf("answered %d questions in %.2fs", len(answers), elapsed.Seconds())

	texts := make([]string, len(answers))
	for i, a := range answers {
		texts[i] = a.Text
	}

	if h.audit != nil {
		go h.publishAudit(req.Documents, req.Questions, answers, elapsed)
	}

	c.JSON(http.StatusOK, RunResponse{Answers: texts})
}

// IngestDocument processes and indexes a document without answering.
func (h *RunHandler) IngestDocument(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	count, err := h.pipeline.Ingest(c.Request.Context(), req.Document)
	if err != nil {
		writePipelineError(c, err)
		return
	}
	response.OK(c, gin.H{"document": req.Document, "chunks_indexed": count})
}

// AnswerQuestion answers one question, returning the full answer with
// structured fields and cited chunk IDs.
func (h *RunHandler) AnswerQuestion(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	answer, err := h.pipeline.Answer(c.Request.Context(), req.Document, req.Question, req.TopK)
	if err != nil {
		writePipelineError(c, err)
		return
	}
	response.OK(c, answer)
}

func (h *RunHandler) publishAudit(reference string, questions []string, answers []model.Answer, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	latencyMs := elapsed.Milliseconds()
	for i, q := range questions {
		record := model.QARecord{
			DocumentRef: reference,
			Question:    q,
			Answer:      answers[i].Text,
			LatencyMs:   latencyMs,
		}
		if answers[i].Structured != nil {
			record.Decision = answers[i].Structured.Decision
		}
		if err := h.audit.Publish(ctx, record); err != nil {
			log.Printf("publish audit record failed: %v", err)
		}
	}
}

// writePipelineError maps the pipeline error taxonomy to HTTP statuses.
// Ingestion failures are request-level: no index, no answers.
func writePipelineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, chunker.ErrInvalidChunkParams),
		errors.Is(err, extract.ErrUnsupportedFormat),
		errors.Is(err, extract.ErrEmptyDocument):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	// Checked before the provider sentinels: a fetch or embedding failure
	// caused by the request deadline is a timeout, not an upstream fault.
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "request deadline exceeded")
	case errors.Is(err, extract.ErrFetch):
		response.Error(c, http.StatusBadGateway, response.CodeDocumentFetch, err.Error())
	case errors.Is(err, ai.ErrEmbedding), errors.Is(err, ai.ErrGeneration):
		response.Error(c, http.StatusBadGateway, response.CodeProvider, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
	}
}
