package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const dateLayout = "2006-01-02"

// GetDayLog returns one day of session logs grouped by session.
// GET /api/logs/ocr?date=YYYY-MM-DD (defaults to today)
func (h *Handler) GetDayLog(c echo.Context) error {
	day := time.Now()
	if raw := c.QueryParam("date"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, time.Local)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"success": false,
				"error":   "invalid date, expected YYYY-MM-DD",
			})
		}
		day = parsed
	}

	dayLog, err := h.service.ReadDayLog(day)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"success":      true,
		"date":         day.Format(dateLayout),
		"logFile":      dayLog.LogFile,
		"exists":       dayLog.Exists,
		"sessionCount": dayLog.SessionCount,
		"sessions":     dayLog.Sessions,
	})
}
