// Package repository persists the OCR run audit trail.
package repository

import (
	"context"
	"time"

	"github.com/xiaot623/ocrflow/internal/domain"
)

// Store defines the persistence operations of the run audit trail.
type Store interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, status domain.RunStatus, limit int) ([]domain.Run, error)
	// UpdateRunCompleted finalizes a RUNNING run. It reports false when the
	// run was already finalized.
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, kind domain.ErrorKind, errData, result []byte) (bool, error)
	ListStaleRuns(ctx context.Context, startedBefore time.Time, limit int) ([]domain.Run, error)

	CreateEvent(ctx context.Context, event *domain.Event) error
	GetEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error)

	Close() error
}

// Ensure SQLiteStore implements Store interface.
var _ Store = (*SQLiteStore)(nil)
