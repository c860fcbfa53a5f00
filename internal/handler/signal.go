package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"ni225-oracle/internal/features"
	"ni225-oracle/internal/lock"
	"ni225-oracle/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// RunSignalRequest is the optional body of POST /api/signal/run.
type RunSignalRequest struct {
	Profile    string   `json:"profile" example:"open-known"`
	ManualOpen *float64 `json:"manual_open,omitempty" binding:"omitempty,gt=0" example:"38512.5"`
}

// SchemaResponse lists a profile's ordered model input columns.
type SchemaResponse struct {
	Profile string   `json:"profile"`
	Columns []string `json:"columns"`
}

// RunSignal godoc
// @Summary      Run the signal pipeline
// @Description  Assembles today's feature panel, runs both classifiers and returns the decision with diagnostics
// @Tags         signal
// @Accept       json
// @Produce      json
// @Param        request  body      RunSignalRequest  false  "Profile and optional manual open"
// @Success      200      {object}  service.Report
// @Failure      400      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      422      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Failure      504      {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/signal/run [post]
func (h *Handler) RunSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-signal")
	defer span.End()

	var req RunSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := features.ProfileByName(req.Profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.String("profile", req.Profile), attribute.Bool("manual_open", req.ManualOpen != nil))

	report, err := h.signals.Run(ctx, service.RunRequest{
		Profile:    req.Profile,
		ManualOpen: req.ManualOpen,
		Trigger:    service.TriggerAPI,
	})
	if err != nil {
		c.JSON(runErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetLatestSignal godoc
// @Summary      Latest signal
// @Description  Returns the most recent completed run for a profile
// @Tags         signal
// @Produce      json
// @Param        profile  query     string  false  "Profile name (open-known or full)"
// @Success      200      {object}  service.Report
// @Failure      400      {object}  map[string]string
// @Failure      404      {object}  map[string]string
// @Router       /api/signal/latest [get]
func (h *Handler) GetLatestSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-signal")
	defer span.End()

	profile := c.Query("profile")
	if _, err := features.ProfileByName(profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.signals.Latest(ctx, profile)
	if errors.Is(err, service.ErrNoReport) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetSchema godoc
// @Summary      Model input schema
// @Description  Returns the ordered feature columns the classifiers receive for a profile
// @Tags         signal
// @Produce      json
// @Param        profile  query     string  false  "Profile name (open-known or full)"
// @Success      200      {object}  SchemaResponse
// @Failure      400      {object}  map[string]string
// @Router       /api/signal/schema [get]
func (h *Handler) GetSchema(c *gin.Context) {
	profile, columns, err := h.signals.Schema(c.Query("profile"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, SchemaResponse{Profile: profile.Name, Columns: columns})
}

func runErrorStatus(err error) int {
	var incomplete *service.IncompleteRowsError
	switch {
	case errors.Is(err, service.ErrManualOpenUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, lock.ErrHeld):
		return http.StatusConflict
	case errors.As(err, &incomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
