// Package domain defines the core domain models for the OCR workflow.
package domain

// RunStatus represents the status of a workflow run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
	RunStatusTimeout RunStatus = "TIMEOUT"
)

// EventType represents the type of a recorded run event.
type EventType string

const (
	EventTypeRunStarted  EventType = "run_started"
	EventTypeStepStarted EventType = "step_started"
	EventTypeStepDone    EventType = "step_done"
	EventTypeStepFailed  EventType = "step_failed"
	EventTypePollAttempt EventType = "poll_attempt"
	EventTypeRunDone     EventType = "run_done"
	EventTypeRunFailed   EventType = "run_failed"
)

// MessageType distinguishes who authored a provider message.
type MessageType string

const (
	// MessageTypeIncoming is authored by the requester.
	MessageTypeIncoming MessageType = "incoming"
	// MessageTypeOutgoing is authored by the AI agent.
	MessageTypeOutgoing MessageType = "outgoing"
)

// AttachmentTypeImage is the type tag the provider expects for document attachments.
const AttachmentTypeImage = "image"

// MethodMessagesAPI names how the reply was obtained.
const MethodMessagesAPI = "messages_api"
