// Package http provides the HTTP server implementation for the OCR service.
package http

import (
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/ocrflow/internal/config"
	"github.com/xiaot623/ocrflow/internal/service"
	"github.com/xiaot623/ocrflow/internal/transport/http/api"
	v1 "github.com/xiaot623/ocrflow/internal/transport/http/v1"
	"github.com/xiaot623/ocrflow/internal/transport/ws"
)

// NewServer creates and configures the HTTP server.
// wsServer may be nil, in which case no progress stream is exposed.
func NewServer(cfg *config.Config, svc *service.Service, wsServer *ws.Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	// Moderately oversized uploads still reach the intake policy and get a
	// validation error; anything far beyond the limit is cut off here.
	e.Use(middleware.BodyLimit(bodyLimit(cfg.Upload.MaxBytes)))

	// Handlers
	apiHandler := api.NewHandler(svc)
	v1Handler := v1.NewHandler(svc)

	// Register Routes
	apiHandler.RegisterRoutes(e)
	v1Handler.RegisterRoutes(e)
	if wsServer != nil {
		e.GET("/v1/ws", wsServer.HandleWebSocket)
	}

	return e
}

func bodyLimit(maxBytes int64) string {
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return fmt.Sprintf("%dK", (2*maxBytes+(1<<20))/1024)
}
