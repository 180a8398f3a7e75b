// Package progress streams OCR workflow progress to websocket subscribers.
package progress

// Message types sent to subscribers.
const (
	TypeHelloAck    = "hello_ack"
	TypeRunStarted  = "run_started"
	TypeStepStarted = "step_started"
	TypeStepDone    = "step_done"
	TypeStepFailed  = "step_failed"
	TypePoll        = "poll"
	TypeDone        = "done"
	TypeError       = "error"
)

// Message types accepted from subscribers.
const (
	TypeHello = "hello"
)

// Message is a progress notification.
type Message struct {
	Type      string `json:"type"`
	Ts        int64  `json:"ts"`
	ClientID  string `json:"client_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Step      string `json:"step,omitempty"`
	Name      string `json:"name,omitempty"`
	Attempt   int    `json:"attempt,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// HelloMessage rebinds a connection to another client id.
type HelloMessage struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}
