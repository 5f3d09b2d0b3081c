package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"policyrag/internal/ai"
	appsvc "policyrag/internal/app"
	"policyrag/internal/bootstrap"
	"policyrag/internal/cache"
	"policyrag/internal/extract"
	"policyrag/internal/repository"
	"policyrag/internal/transport/http/handler"
	"policyrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	cfg := app.Config

	llm := ai.NewClient(cfg.LLM)
	extractor := extract.New(time.Duration(cfg.Pipeline.FetchTimeoutSec) * time.Second)
	synth := appsvc.NewSynthesizer(llm)
	indexes := cache.NewIndexCache(cfg.Pipeline.IndexCacheSize)

	var documents *cache.DocumentCache
	if app.Redis != nil {
		documents = cache.NewDocumentCache(app.Redis, time.Duration(cfg.Redis.DocumentTTLMinute)*time.Minute)
	}

	pipeline := appsvc.NewPipeline(extractor, llm, synth, indexes, documents, appsvc.Options{
		ChunkSize:            cfg.Pipeline.ChunkSize,
		ChunkOverlap:         cfg.Pipeline.ChunkOverlap,
		TopK:                 cfg.Pipeline.TopK,
		MaxConcurrentAnswers: cfg.Pipeline.MaxConcurrentAnswers,
		RequestDeadline:      time.Duration(cfg.Pipeline.RequestDeadlineSec) * time.Second,
	})

	var audit handler.AuditSink
	if app.AuditPublisher != nil {
		audit = app.AuditPublisher
	}
	runHandler := handler.NewRunHandler(pipeline, audit)
	healthHandler := handler.NewHealthHandler(app, llm)

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": cfg.App.Name,
			"version": "1.0.0",
			"endpoints": gin.H{
				"health": "/healthz",
				"run":    "/hackrx/run",
			},
		})
	})
	router.GET("/healthz", healthHandler.Check)

	auth := middleware.Auth(cfg.Auth)
	router.POST("/hackrx/run", auth, runHandler.Run)

	v1 := router.Group("/api/v1")
	v1.Use(auth)
	v1.POST("/documents", runHandler.IngestDocument)
	v1.POST("/answer", runHandler.AnswerQuestion)
	if app.MySQL != nil {
		recordsHandler := handler.NewRecordsHandler(repository.NewQARecordRepository(app.MySQL))
		v1.GET("/records", recordsHandler.List)
	}

	return router
}
