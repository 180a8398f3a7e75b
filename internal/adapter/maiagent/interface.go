package maiagent

import (
	"context"
	"encoding/json"
)

// Provider defines the MaiAgent operations the OCR workflow depends on.
type Provider interface {
	// UploadAttachment stores raw bytes and returns the resolved file URI.
	UploadAttachment(ctx context.Context, filename, mediaType string, data []byte) (*UploadResult, error)

	// RegisterAttachment creates an attachment record for an uploaded URI.
	RegisterAttachment(ctx context.Context, req *RegisterRequest) (*Attachment, error)

	// AttachToConversation binds an attachment to an existing conversation.
	AttachToConversation(ctx context.Context, conversationID string, req *ConversationAttachment) error

	// CreateCompletion sends a prompt to a chatbot. The reply arrives asynchronously.
	CreateCompletion(ctx context.Context, chatbotID string, req *CompletionRequest) (*CompletionResponse, error)

	// ListMessages lists the latest messages of a conversation.
	ListMessages(ctx context.Context, conversationID string, pageSize int) ([]Message, error)

	// ListChatbots returns the full chatbot catalog.
	ListChatbots(ctx context.Context) ([]Chatbot, error)

	// SupportedFileTypes returns the provider's accepted file types as-is.
	SupportedFileTypes(ctx context.Context) (json.RawMessage, error)
}

// Ensure Client implements Provider interface.
var _ Provider = (*Client)(nil)
