// Package api serves the document OCR API.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/domain"
	"github.com/xiaot623/ocrflow/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/ocr", h.ProcessOCR)

	e.GET("/api/chatbots", h.ListChatbots)
	e.GET("/api/maiagent/supported-file-types", h.SupportedFileTypes)

	e.GET("/api/logs/ocr", h.GetDayLog)
	e.GET("/api/health", h.Health)
}

// Health returns health status.
// GET /api/health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Health())
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Step      string `json:"step,omitempty"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// writeError maps err to its HTTP status. Workflow errors carry their kind;
// bare provider errors keep the upstream status.
func writeError(c echo.Context, err error) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var wfErr *domain.WorkflowError
	if errors.As(err, &wfErr) {
		return c.JSON(wfErr.Kind.HTTPStatus(), ErrorResponse{
			Error:     wfErr.Kind.Title(),
			Message:   wfErr.Message,
			Type:      wfErr.Kind.Label(),
			Step:      wfErr.Step,
			Timestamp: now,
		})
	}

	if apiErr, ok := maiagent.AsAPIError(err); ok {
		return c.JSON(apiErr.StatusCode, ErrorResponse{
			Error:     "MaiAgent API request failed",
			Message:   err.Error(),
			Type:      "maiagent_api_error",
			Details:   apiErr.Body,
			Timestamp: now,
		})
	}

	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:     domain.ErrorKindInternal.Title(),
		Message:   err.Error(),
		Type:      domain.ErrorKindInternal.Label(),
		Timestamp: now,
	})
}
