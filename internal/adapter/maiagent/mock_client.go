package maiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// mockReply is what the mock chatbot answers for every document.
const mockReply = "以下是發票的結構化資訊：\n```json\n" + `{
  "invoice_number": "MK-20240101",
  "date": "2024-01-01",
  "unified_business_number": {"seller": "12345678", "buyer": "87654321"},
  "total_amount": 1580,
  "items": [
    {"description": "高鐵票 台北-台中", "quantity": 1, "unit_price": 700, "amount": 700},
    {"description": "計程車資", "quantity": 1, "unit_price": 280, "amount": 280},
    {"description": "午餐", "quantity": 2, "unit_price": 300, "amount": 600}
  ]
}` + "\n```"

// MockClient is an in-memory Provider for local development and tests.
// A completion's reply becomes visible on the second listing of its conversation.
type MockClient struct {
	mu      sync.Mutex
	polls   map[string]int
	replies map[string]string
}

// NewMockClient creates a new mock provider.
func NewMockClient() *MockClient {
	return &MockClient{
		polls:   make(map[string]int),
		replies: make(map[string]string),
	}
}

// Ensure MockClient implements Provider interface.
var _ Provider = (*MockClient)(nil)

// UploadAttachment returns a mock storage URI.
func (m *MockClient) UploadAttachment(ctx context.Context, filename, mediaType string, data []byte) (*UploadResult, error) {
	uri := fmt.Sprintf("https://mock.maiagent.local/uploads/%s", filename)
	body, _ := json.Marshal(map[string]string{"file": uri})
	return &UploadResult{URI: uri, Response: &Response{StatusCode: 201, Body: body}}, nil
}

// RegisterAttachment returns a fresh attachment id.
func (m *MockClient) RegisterAttachment(ctx context.Context, req *RegisterRequest) (*Attachment, error) {
	return &Attachment{ID: uuid.New().String(), File: req.File}, nil
}

// AttachToConversation accepts everything.
func (m *MockClient) AttachToConversation(ctx context.Context, conversationID string, req *ConversationAttachment) error {
	return nil
}

// CreateCompletion opens a new mock conversation.
func (m *MockClient) CreateCompletion(ctx context.Context, chatbotID string, req *CompletionRequest) (*CompletionResponse, error) {
	convID := uuid.New().String()
	m.mu.Lock()
	m.replies[convID] = mockReply
	m.mu.Unlock()
	return &CompletionResponse{ID: uuid.New().String(), ConversationID: convID}, nil
}

// ListMessages returns the incoming turn, plus the reply from the second call on.
func (m *MockClient) ListMessages(ctx context.Context, conversationID string, pageSize int) ([]Message, error) {
	m.mu.Lock()
	m.polls[conversationID]++
	n := m.polls[conversationID]
	reply, ok := m.replies[conversationID]
	m.mu.Unlock()

	if !ok {
		return nil, &APIError{Op: "ListMessages", StatusCode: 404, Body: `{"detail":"Not found."}`}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	msgs := []Message{{ID: conversationID + "-in", Type: "incoming", Content: "請幫我分析這張發票", CreatedAt: now}}
	if n >= 2 {
		msgs = append([]Message{{ID: conversationID + "-out", Type: "outgoing", Content: reply, CreatedAt: now}}, msgs...)
	}
	for i := range msgs {
		msgs[i].Raw, _ = json.Marshal(msgs[i])
	}
	return msgs, nil
}

// ListChatbots returns a small fixed catalog.
func (m *MockClient) ListChatbots(ctx context.Context) ([]Chatbot, error) {
	return []Chatbot{
		{ID: "mock-ocr", Name: "Invoice OCR", Description: "發票掃描"},
		{ID: "mock-scan", Name: "文件助理", Description: "掃描文件"},
		{ID: "mock-chat", Name: "General Chat", Description: "small talk"},
	}, nil
}

// SupportedFileTypes returns a fixed list.
func (m *MockClient) SupportedFileTypes(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[".pdf",".png",".jpg",".jpeg",".gif",".webp"]`), nil
}
