package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/domain"
	"github.com/xiaot623/ocrflow/internal/progress"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
)

// pollReply waits for the chatbot's reply in conversationID. Each attempt
// sleeps one interval and then lists the latest messages; the first outgoing
// message with content wins. Listing failures use up an attempt and are not
// retried otherwise.
func (w *workflow) pollReply(ctx context.Context, conversationID string) (*maiagent.Message, int, error) {
	s := w.svc
	timing := s.config.Timing

	for attempt := 1; attempt <= timing.MaxPollAttempts; attempt++ {
		if err := s.sleep(ctx, timing.PollInterval); err != nil {
			return nil, attempt - 1, domain.NewError(domain.ErrorKindTimeout,
				"workflow time budget exhausted while waiting for the AI reply", err)
		}

		messages, err := s.provider.ListMessages(ctx, conversationID, timing.PollPageSize)
		payload := domain.PollAttemptPayload{Attempt: attempt, Messages: len(messages)}
		if err != nil {
			payload.Error = err.Error()
			w.sess.Log(sessionlog.LevelError, fmt.Sprintf("poll attempt %d/%d failed", attempt, timing.MaxPollAttempts),
				map[string]any{"conversationId": conversationID, "error": err.Error()})
		} else {
			w.sess.Log(sessionlog.LevelInfo, fmt.Sprintf("poll attempt %d/%d returned %d messages", attempt, timing.MaxPollAttempts, len(messages)),
				map[string]any{"conversationId": conversationID})
		}
		s.recordEventBestEffort(ctx, w.runID, domain.EventTypePollAttempt, payload)
		s.publish(w.req.ClientID, &progress.Message{
			Type:      progress.TypePoll,
			Ts:        s.now().UnixMilli(),
			RunID:     w.runID,
			SessionID: w.sess.ID(),
			Attempt:   attempt,
			Message:   payload.Error,
		})
		if err != nil {
			continue
		}

		if reply := firstReply(messages); reply != nil {
			w.sess.Log(sessionlog.LevelSuccess, "AI reply found", map[string]any{
				"messageId":     reply.ID,
				"contentLength": len(reply.Content),
				"createdAt":     reply.CreatedAt,
			})
			return reply, attempt, nil
		}
	}

	return nil, timing.MaxPollAttempts, domain.NewError(domain.ErrorKindTimeout,
		fmt.Sprintf("no AI reply after %d attempts", timing.MaxPollAttempts), nil)
}

// firstReply returns the first outgoing message with non-blank content, in
// listing order. The provider does not guarantee chronological order.
func firstReply(messages []maiagent.Message) *maiagent.Message {
	for i := range messages {
		m := &messages[i]
		if m.Type == string(domain.MessageTypeOutgoing) && strings.TrimSpace(m.Content) != "" {
			return m
		}
	}
	return nil
}
