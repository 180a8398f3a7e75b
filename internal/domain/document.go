package domain

import (
	"encoding/json"
	"time"
)

// UploadedDocument is the document received from the caller. It is never persisted.
type UploadedDocument struct {
	Data      []byte
	MediaType string
	Filename  string
	Size      int64
}

// RemoteAttachment is the provider-side handle for the uploaded document.
// It is produced once per request and reused by every later step.
type RemoteAttachment struct {
	RawURI       string `json:"rawUri"`
	AttachmentID string `json:"attachmentId"`
	// FileURI is the canonical URI returned by registration.
	FileURI              string `json:"fileUri"`
	StandardizedFilename string `json:"standardizedFilename"`
}

// ConversationHandle identifies a provider conversation.
type ConversationHandle struct {
	ConversationID string `json:"conversationId"`
}

// OCRRequest is one submission to the workflow.
type OCRRequest struct {
	Document  *UploadedDocument
	ChatbotID string
	// ClientID, when set, receives step progress over the websocket hub.
	ClientID string
}

// OCRResult is the assembled result of a successful workflow.
type OCRResult struct {
	Success                bool            `json:"success"`
	SessionID              string          `json:"sessionId"`
	ConversationID         string          `json:"conversationId"`
	AttachedConversationID string          `json:"attachedConversationId"`
	MessageID              string          `json:"messageId"`
	AIResponseID           string          `json:"aiResponseId"`
	RawResponse            json.RawMessage `json:"rawResponse"`
	ExtractedData          json.RawMessage `json:"extractedData"`
	ProcessingTimeSeconds  float64         `json:"processingTimeSeconds"`
	Method                 string          `json:"method"`
}

// Run is the persisted audit record of one workflow execution.
type Run struct {
	RunID     string          `json:"run_id"`
	SessionID string          `json:"session_id"`
	ChatbotID string          `json:"chatbot_id"`
	Filename  string          `json:"filename"`
	MediaType string          `json:"media_type"`
	Size      int64           `json:"size"`
	Status    RunStatus       `json:"status"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// Event represents a step-level trace event of a run.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StepPayload is recorded for step events and pushed to progress subscribers.
type StepPayload struct {
	Step    string    `json:"step"`
	Name    string    `json:"name"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// PollAttemptPayload is recorded for each reply-listing attempt.
type PollAttemptPayload struct {
	Attempt  int    `json:"attempt"`
	Messages int    `json:"messages"`
	Error    string `json:"error,omitempty"`
}
