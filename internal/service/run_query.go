package service

import (
	"context"
	"time"

	"github.com/xiaot623/ocrflow/internal/domain"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
)

// GetRun returns a run, or nil when it does not exist.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return s.store.GetRun(ctx, runID)
}

// ListRuns returns recent runs, optionally filtered by status.
func (s *Service) ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListRuns(ctx, status, limit)
}

// GetRunEvents returns a run's events after afterTs (Unix milliseconds).
func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	return s.store.GetEvents(ctx, runID, afterTs, types, limit)
}

// ReadDayLog returns the session log of the given day grouped by session.
func (s *Service) ReadDayLog(day time.Time) (*sessionlog.DayLog, error) {
	return s.logs.ReadDay(day)
}

// HealthStatus reports whether the service is configured.
type HealthStatus struct {
	Status                         string    `json:"status"`
	Timestamp                      time.Time `json:"timestamp"`
	Mode                           string    `json:"mode,omitempty"`
	MaiAgentAPIConfigured          bool      `json:"maiagentApiConfigured"`
	MaiAgentConversationConfigured bool      `json:"maiagentConversationConfigured"`
}

// Health returns the current health status.
func (s *Service) Health() HealthStatus {
	return HealthStatus{
		Status:                         "ok",
		Timestamp:                      s.now().UTC(),
		Mode:                           s.config.Mode,
		MaiAgentAPIConfigured:          s.config.Provider.APIKey != "",
		MaiAgentConversationConfigured: s.config.Provider.ConversationID != "",
	}
}
