package sessionlog

import (
	"fmt"
	"sync"
)

// Session is the log handle of one OCR request.
type Session struct {
	sink *Sink
	id   string

	mu   sync.Mutex
	step int
}

// ID returns the 8-character session id.
func (s *Session) ID() string {
	return s.id
}

// Log appends one record to the session.
func (s *Session) Log(level Level, message string, data any) {
	s.sink.write(s.id, level, message, data)
}

// Start opens the next numbered step and returns its id ("STEP-n").
func (s *Session) Start(name string) string {
	s.mu.Lock()
	s.step++
	stepID := fmt.Sprintf("STEP-%d", s.step)
	s.mu.Unlock()

	s.Log(LevelStep, fmt.Sprintf("%s: %s", stepID, name), nil)
	return stepID
}

// End closes a step with its outcome.
func (s *Session) End(stepID string, success bool, result any) {
	if success {
		s.Log(LevelSuccess, fmt.Sprintf("%s finished: success", stepID), result)
		return
	}
	s.Log(LevelError, fmt.Sprintf("%s finished: failure", stepID), result)
}
