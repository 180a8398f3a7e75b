package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListChatbots lists the chatbots that can read documents.
// GET /api/chatbots
func (h *Handler) ListChatbots(c echo.Context) error {
	ctx := c.Request().Context()

	catalog, err := h.service.ListOCRChatbots(ctx)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":       true,
		"totalCount":    catalog.TotalCount,
		"filteredCount": catalog.FilteredCount,
		"chatbots":      catalog.Chatbots,
	})
}

// SupportedFileTypes passes the provider's supported file types through.
// GET /api/maiagent/supported-file-types
func (h *Handler) SupportedFileTypes(c echo.Context) error {
	ctx := c.Request().Context()

	types, err := h.service.SupportedFileTypes(ctx)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    types,
	})
}
