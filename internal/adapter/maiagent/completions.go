package maiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CompletionRequest sends a message with attachments to a chatbot.
type CompletionRequest struct {
	Message     CompletionMessage `json:"message"`
	IsStreaming bool              `json:"isStreaming"`
}

// CompletionMessage is the user turn of a completion.
type CompletionMessage struct {
	Content     string                 `json:"content"`
	Attachments []CompletionAttachment `json:"attachments,omitempty"`
}

// CompletionAttachment references a registered attachment.
type CompletionAttachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
	File     string `json:"file"`
}

// CompletionResponse is the provider's acknowledgement. The reply itself is
// fetched later from the messages listing.
type CompletionResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}

// Message is one entry of a conversation listing.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Content   string          `json:"content"`
	CreatedAt string          `json:"createdAt"`
	Raw       json.RawMessage `json:"-"`
}

type messageList struct {
	Results []json.RawMessage `json:"results"`
}

var zhTWHeaders = http.Header{
	"Accept-Language":  {"zh-TW"},
	"Content-Language": {"zh-TW"},
}

// CreateCompletion starts a new conversation turn with the chatbot.
func (c *Client) CreateCompletion(ctx context.Context, chatbotID string, req *CompletionRequest) (*CompletionResponse, error) {
	path := fmt.Sprintf("/chatbots/%s/completions/", chatbotID)
	var out CompletionResponse
	if _, err := c.doJSON(ctx, "CreateCompletion", http.MethodPost, path, req, &out, zhTWHeaders); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMessages returns the most recent messages of a conversation, newest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, pageSize int) ([]Message, error) {
	q := url.Values{}
	q.Set("conversation", conversationID)
	q.Set("pageSize", strconv.Itoa(pageSize))

	var list messageList
	if _, err := c.doJSON(ctx, "ListMessages", http.MethodGet, "/messages/?"+q.Encode(), nil, &list, nil); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(list.Results))
	for _, raw := range list.Results {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("ListMessages: failed to unmarshal message: %w", err)
		}
		m.Raw = raw
		messages = append(messages, m)
	}
	return messages, nil
}
