package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"policyrag/internal/ai"
	"policyrag/internal/extract"
	"policyrag/internal/model"
)

type stubPipeline struct {
	runErr    error
	answerErr error
}

func (s *stubPipeline) Run(_ context.Context, _ string, questions []string) ([]model.Answer, error) {
	if s.runErr != nil {
		return nil, s.runErr
	}
	answers := make([]model.Answer, len(questions))
	for i, q := range questions {
		answers[i] = model.Answer{Text: "answer to " + q, CitedChunkIDs: []int{i}}
	}
	return answers, nil
}

func (s *stubPipeline) Ingest(_ context.Context, _ string) (int, error) {
	return 7, nil
}

func (s *stubPipeline) Answer(_ context.Context, _, question string, _ int) (model.Answer, error) {
	if s.answerErr != nil {
		return model.Answer{}, s.answerErr
	}
	return model.Answer{
		Text:       "answer to " + question,
		Structured: &model.Determination{Decision: "approved"},
	}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []model.QARecord
}

func (r *recordingSink) Publish(_ context.Context, record model.QARecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func newRunRouter(pipeline PipelineService, audit AuditSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewRunHandler(pipeline, audit)
	router.POST("/hackrx/run", h.Run)
	router.POST("/api/v1/documents", h.IngestDocument)
	router.POST("/api/v1/answer", h.AnswerQuestion)
	return router
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRunReturnsOneAnswerPerQuestion(t *testing.T) {
	router := newRunRouter(&stubPipeline{}, nil)

	w := postJSON(router, "/hackrx/run", gin.H{
		"documents": "https://example.com/policy.pdf",
		"questions": []string{"q1", "q2", "q3"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Answers, 3)
	assert.Equal(t, "answer to q1", resp.Answers[0])
	assert.Equal(t, "answer to q2", resp.Answers[1])
	assert.Equal(t, "answer to q3", resp.Answers[2])

	// The boundary response carries only the answers field.
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Len(t, raw, 1)
	assert.Contains(t, raw, "answers")
}

func TestRunRejectsMalformedRequests(t *testing.T) {
	router := newRunRouter(&stubPipeline{}, nil)

	cases := []struct {
		name string
		body any
	}{
		{"missing documents", gin.H{"questions": []string{"q"}}},
		{"missing questions", gin.H{"documents": "https://example.com/doc.pdf"}},
		{"empty questions", gin.H{"documents": "https://example.com/doc.pdf", "questions": []string{}}},
		{"questions not an array", gin.H{"documents": "https://example.com/doc.pdf", "questions": "q"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(router, "/hackrx/run", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestRunErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unsupported format", fmt.Errorf("wrap: %w", extract.ErrUnsupportedFormat), http.StatusBadRequest},
		{"empty document", fmt.Errorf("wrap: %w", extract.ErrEmptyDocument), http.StatusBadRequest},
		{"fetch failure", fmt.Errorf("wrap: %w", extract.ErrFetch), http.StatusBadGateway},
		{"provider failure", fmt.Errorf("wrap: %w", ai.ErrEmbedding), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"deadline inside provider error", fmt.Errorf("%w: %w", ai.ErrEmbedding, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"deadline inside fetch error", fmt.Errorf("%w: %w", extract.ErrFetch, context.DeadlineExceeded), http.StatusGatewayTimeout},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRunRouter(&stubPipeline{runErr: tc.err}, nil)
			w := postJSON(router, "/hackrx/run", gin.H{
				"documents": "https://example.com/policy.pdf",
				"questions": []string{"q"},
			})
			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestRunPublishesAuditRecords(t *testing.T) {
	sink := &recordingSink{}
	router := newRunRouter(&stubPipeline{}, sink)

	w := postJSON(router, "/hackrx/run", gin.H{
		"documents": "https://example.com/policy.pdf",
		"questions": []string{"q1", "q2"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Publishing happens off the request path.
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 10*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, "q1", sink.records[0].Question)
	assert.Equal(t, "answer to q1", sink.records[0].Answer)
	assert.Equal(t, "https://example.com/policy.pdf", sink.records[0].DocumentRef)
}

func TestIngestDocument(t *testing.T) {
	router := newRunRouter(&stubPipeline{}, nil)

	w := postJSON(router, "/api/v1/documents", gin.H{"document": "https://example.com/policy.pdf"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chunks_indexed":7`)
}

func TestAnswerQuestion(t *testing.T) {
	router := newRunRouter(&stubPipeline{}, nil)

	w := postJSON(router, "/api/v1/answer", gin.H{
		"document": "https://example.com/policy.pdf",
		"question": "Is surgery covered?",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "answer to Is surgery covered?")
	assert.Contains(t, w.Body.String(), "approved")
}

func TestAnswerQuestionRequiresFields(t *testing.T) {
	router := newRunRouter(&stubPipeline{}, nil)

	w := postJSON(router, "/api/v1/answer", gin.H{"document": "https://example.com/policy.pdf"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
