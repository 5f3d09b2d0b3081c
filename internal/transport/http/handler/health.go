package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"policyrag/internal/bootstrap"
)

// ProviderPinger reports whether the embedding/generation provider
// endpoint is reachable.
type ProviderPinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	app *bootstrap.App
	llm ProviderPinger
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App, llm ProviderPinger) *HealthHandler {
	return &HealthHandler{app: app, llm: llm}
}

// Check reports the availability of each provider dependency without
// running the pipeline.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	providerStatus := h.checkProvider(ctx)
	deps := gin.H{
		// Extraction is outbound HTTP with no fixed endpoint to probe.
		"extractor":  dependencyStatus{OK: true},
		"embedding":  providerStatus,
		"generation": providerStatus,
	}
	allOK := providerStatus.OK

	if h.app.MySQL != nil {
		s := h.checkMySQL(ctx)
		deps["mysql"] = s
		allOK = allOK && s.OK
	}
	if h.app.Redis != nil {
		s := h.checkRedis(ctx)
		deps["redis"] = s
		allOK = allOK && s.OK
	}
	if h.app.MQConn != nil {
		s := h.checkRabbitMQ()
		deps["rabbitmq"] = s
		allOK = allOK && s.OK
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allOK {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"status":       status,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": deps,
	})
}

func (h *HealthHandler) checkProvider(ctx context.Context) dependencyStatus {
	if err := h.llm.Ping(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkMySQL(ctx context.Context) dependencyStatus {
	sqlDB, err := h.app.MySQL.DB()
	if err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRedis(ctx context.Context) dependencyStatus {
	if err := h.app.Redis.Ping(ctx).Err(); err != nil {
		return dependencyStatus{OK: false, Message: err.Error()}
	}
	return dependencyStatus{OK: true}
}

func (h *HealthHandler) checkRabbitMQ() dependencyStatus {
	if h.app.MQConn == nil || h.app.MQConn.IsClosed() {
		return dependencyStatus{OK: false, Message: "connection closed"}
	}
	return dependencyStatus{OK: true}
}
