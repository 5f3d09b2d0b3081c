package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"policyrag/internal/repository"
	"policyrag/internal/transport/http/response"
)

type RecordsHandler struct {
	repo *repository.QARecordRepository
}

func NewRecordsHandler(repo *repository.QARecordRepository) *RecordsHandler {
	return &RecordsHandler{repo: repo}
}

// List returns the most recent audit records, newest first.
func (h *RecordsHandler) List(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.repo.ListRecent(limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list records failed")
		return
	}
	response.OK(c, records)
}
