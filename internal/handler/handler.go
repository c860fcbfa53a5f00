package handler

import (
	"context"

	"ni225-oracle/internal/features"
	"ni225-oracle/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// SignalRunner is the slice of the signal service the API exposes.
type SignalRunner interface {
	Run(ctx context.Context, req service.RunRequest) (*service.Report, error)
	Latest(ctx context.Context, profile string) (*service.Report, error)
	Schema(profile string) (features.Profile, []string, error)
}

type Handler struct {
	tracer  trace.Tracer
	signals SignalRunner
}

func New(tracer trace.Tracer, signals SignalRunner) *Handler {
	return &Handler{
		tracer:  tracer,
		signals: signals,
	}
}

// RegisterRoutes mounts the API. Triggering a run requires apiKey when set.
func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	api := r.Group("/api/signal")
	api.GET("/latest", h.GetLatestSignal)
	api.GET("/schema", h.GetSchema)
	api.POST("/run", APIKeyAuth(apiKey), h.RunSignal)
}
