package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/xiaot623/ocrflow/internal/domain"
)

// RunStaleRunSweeper periodically fails runs that stayed RUNNING for more
// than twice the workflow budget, e.g. after a crash mid-workflow.
func (s *Service) RunStaleRunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweepStaleRuns(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepStaleRuns(ctx)
		}
	}
}

func (s *Service) sweepStaleRuns(ctx context.Context) int {
	sweepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	budget := s.config.Timing.WorkflowBudget
	if budget <= 0 {
		return 0
	}
	cutoff := s.now().Add(-2 * budget)

	stale, err := s.store.ListStaleRuns(sweepCtx, cutoff, 100)
	if err != nil {
		log.Printf("WARN: stale run sweep failed: %v", err)
		return 0
	}

	swept := 0
	for _, run := range stale {
		errData, _ := json.Marshal(map[string]interface{}{
			"code":      "abandoned",
			"message":   "run did not finish within twice the workflow budget",
			"budget_ms": budget.Milliseconds(),
		})

		updated, err := s.store.UpdateRunCompleted(sweepCtx, run.RunID, domain.RunStatusFailed, domain.ErrorKindInternal, errData, nil)
		if err != nil {
			log.Printf("WARN: failed to mark stale run %s: %v", run.RunID, err)
			continue
		}
		if !updated {
			continue
		}
		swept++

		payload := domain.StepPayload{Kind: domain.ErrorKindInternal, Message: "abandoned"}
		if err := s.recordEvent(sweepCtx, run.RunID, domain.EventTypeRunFailed, payload); err != nil {
			log.Printf("WARN: failed to record stale run event %s: %v", run.RunID, err)
		}
	}
	return swept
}
