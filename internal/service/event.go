package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/ocrflow/internal/domain"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID: "evt_" + uuid.New().String()[:8],
		RunID:   runID,
		Ts:      s.now().UnixMilli(),
		Type:    eventType,
		Payload: payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// persistContext detaches store writes from the workflow budget so the
// audit trail still records runs that ran out of time.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func (s *Service) recordEventBestEffort(ctx context.Context, runID string, eventType domain.EventType, payload interface{}) {
	pctx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.recordEvent(pctx, runID, eventType, payload); err != nil {
		log.Printf("WARN: failed to record %s event for run %s: %v", eventType, runID, err)
	}
}
