package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind tags a workflow failure at the step that produced it.
type ErrorKind string

const (
	ErrorKindConfiguration          ErrorKind = "ConfigurationError"
	ErrorKindValidation             ErrorKind = "ValidationError"
	ErrorKindAuthentication         ErrorKind = "AuthenticationError"
	ErrorKindUpload                 ErrorKind = "UploadError"
	ErrorKindRegistration           ErrorKind = "RegistrationError"
	ErrorKindConversationAttachment ErrorKind = "ConversationAttachmentError"
	ErrorKindCompletionRequest      ErrorKind = "CompletionRequestError"
	ErrorKindTimeout                ErrorKind = "TimeoutError"
	// ErrorKindInternal covers failures of the service itself.
	ErrorKindInternal ErrorKind = "OCRError"
)

type kindInfo struct {
	status int
	label  string
	title  string
}

var kinds = map[ErrorKind]kindInfo{
	ErrorKindConfiguration:          {http.StatusInternalServerError, "configuration_error", "provider configuration incomplete"},
	ErrorKindValidation:             {http.StatusBadRequest, "validation_error", "invalid request"},
	ErrorKindAuthentication:         {http.StatusUnauthorized, "authentication_error", "provider rejected the API key"},
	ErrorKindUpload:                 {http.StatusBadGateway, "file_upload_error", "file upload failed"},
	ErrorKindRegistration:           {http.StatusBadGateway, "attachment_registration_error", "attachment registration failed"},
	ErrorKindConversationAttachment: {http.StatusBadGateway, "conversation_attachment_error", "conversation attachment failed"},
	ErrorKindCompletionRequest:      {http.StatusBadGateway, "completion_request_error", "completion request failed"},
	ErrorKindTimeout:                {http.StatusRequestTimeout, "timeout_error", "AI processing timed out"},
}

// HTTPStatus is the status code surfaced to callers for this kind.
func (k ErrorKind) HTTPStatus() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Label is the snake_case type string used in error responses.
func (k ErrorKind) Label() string {
	if info, ok := kinds[k]; ok {
		return info.label
	}
	return "ocr_error"
}

// Title is a short human readable summary of the kind.
func (k ErrorKind) Title() string {
	if info, ok := kinds[k]; ok {
		return info.title
	}
	return "OCR processing failed"
}

// WorkflowError is a failure of one workflow step.
type WorkflowError struct {
	Kind    ErrorKind
	Step    string
	Message string

	// Upstream response details, when the failure came from the provider.
	StatusCode int
	Body       string
	Header     http.Header

	Err error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewError creates a WorkflowError of the given kind.
func NewError(kind ErrorKind, message string, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or "" when err is not a WorkflowError.
func KindOf(err error) ErrorKind {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	return ""
}
