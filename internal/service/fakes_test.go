package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xiaot623/ocrflow/internal/adapter/maiagent"
	"github.com/xiaot623/ocrflow/internal/config"
	"github.com/xiaot623/ocrflow/internal/domain"
	"github.com/xiaot623/ocrflow/internal/policy"
	"github.com/xiaot623/ocrflow/internal/progress"
	"github.com/xiaot623/ocrflow/internal/repository"
	"github.com/xiaot623/ocrflow/internal/sessionlog"
	"github.com/xiaot623/ocrflow/tests/helpers"
)

const invoiceReply = "結果如下\n```json\n[{\"invoice_number\":\"AB123\",\"total_amount\":500,\"items\":[{\"description\":\"高鐵票\",\"amount\":1500},{\"description\":\"午餐\",\"amount\":200}]}]\n```"

// fakeProvider records calls in order and replies from canned values.
type fakeProvider struct {
	mu    sync.Mutex
	calls []string

	uploadResult *maiagent.UploadResult
	uploadErr    error
	registerResp *maiagent.Attachment
	registerErr  error
	attachErr    error
	completion   *maiagent.CompletionResponse
	completeErr  error
	// list answers the n-th (1-based) ListMessages call.
	list      func(n int) ([]maiagent.Message, error)
	listCalls int
	chatbots  []maiagent.Chatbot
	botCalls  int
	// botGate, when set, holds ListChatbots until it is closed.
	botGate   chan struct{}
	botCtxErr error

	lastRegister   *maiagent.RegisterRequest
	lastAttachConv string
	lastAttach     *maiagent.ConversationAttachment
	lastChatbotID  string
	lastCompletion *maiagent.CompletionRequest
	lastListConv   string
	lastPageSize   int
}

// newFakeProvider replies with content on the second listing.
func newFakeProvider(content string) *fakeProvider {
	return &fakeProvider{
		uploadResult: &maiagent.UploadResult{URI: "https://files/raw.png", Response: &maiagent.Response{StatusCode: 201}},
		registerResp: &maiagent.Attachment{ID: "att-1", File: "https://files/canonical.png"},
		completion:   &maiagent.CompletionResponse{ID: "msg-1", ConversationID: "conv-new"},
		list: func(n int) ([]maiagent.Message, error) {
			msgs := []maiagent.Message{{ID: "in-1", Type: "incoming", Content: "prompt"}}
			if n >= 2 {
				msgs = append([]maiagent.Message{outgoing("out-1", content)}, msgs...)
			}
			return msgs, nil
		},
	}
}

func outgoing(id, content string) maiagent.Message {
	m := maiagent.Message{ID: id, Type: "outgoing", Content: content}
	m.Raw, _ = json.Marshal(map[string]string{"id": id, "type": "outgoing", "content": content})
	return m
}

func (f *fakeProvider) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeProvider) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeProvider) UploadAttachment(ctx context.Context, filename, mediaType string, data []byte) (*maiagent.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("upload")
	if f.uploadErr != nil {
		return f.uploadResult, f.uploadErr
	}
	return f.uploadResult, nil
}

func (f *fakeProvider) RegisterAttachment(ctx context.Context, req *maiagent.RegisterRequest) (*maiagent.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("register")
	f.lastRegister = req
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.registerResp, nil
}

func (f *fakeProvider) AttachToConversation(ctx context.Context, conversationID string, req *maiagent.ConversationAttachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("attach")
	f.lastAttachConv = conversationID
	f.lastAttach = req
	return f.attachErr
}

func (f *fakeProvider) CreateCompletion(ctx context.Context, chatbotID string, req *maiagent.CompletionRequest) (*maiagent.CompletionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("complete")
	f.lastChatbotID = chatbotID
	f.lastCompletion = req
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return f.completion, nil
}

func (f *fakeProvider) ListMessages(ctx context.Context, conversationID string, pageSize int) ([]maiagent.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	f.listCalls++
	f.lastListConv = conversationID
	f.lastPageSize = pageSize
	return f.list(f.listCalls)
}

func (f *fakeProvider) ListChatbots(ctx context.Context) ([]maiagent.Chatbot, error) {
	f.mu.Lock()
	f.botCalls++
	gate := f.botGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.botCtxErr = ctx.Err()
	return f.chatbots, nil
}

func (f *fakeProvider) SupportedFileTypes(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`[".png"]`), nil
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.durations = append(r.durations, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total time.Duration
	for _, d := range r.durations {
		total += d
	}
	return total
}

// recordingPublisher collects progress messages.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []progress.Message
}

func (p *recordingPublisher) Publish(clientID string, msg *progress.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := *msg
	m.ClientID = clientID
	p.msgs = append(p.msgs, m)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Type
	}
	return out
}

type fakeInspector struct {
	pages int
	err   error
}

func (f fakeInspector) PageCount(data []byte) (int, error) {
	return f.pages, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Provider: config.ProviderConfig{
			BaseURL:        "https://api.example.test",
			APIKey:         "key",
			ConversationID: "conv-fixed",
			Prompt:         config.DefaultPrompt,
		},
		Upload: config.UploadConfig{
			MaxBytes:           1024,
			AcceptedMediaTypes: config.DefaultAcceptedMediaTypes(),
		},
		Timing: config.DefaultTiming(),
	}
}

type testEnv struct {
	svc      *Service
	provider *fakeProvider
	store    repository.Store
	sleeper  *sleepRecorder
	logs     *sessionlog.Sink
}

func newTestEnv(t *testing.T, cfg *config.Config, provider *fakeProvider, opts ...Option) *testEnv {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	store := helpers.NewTestSQLiteStore(t)
	logs := sessionlog.NewSink(t.TempDir(), nil)
	t.Cleanup(func() { _ = logs.Close() })

	sleeper := &sleepRecorder{}
	opts = append([]Option{WithSleepFunc(sleeper.Sleep)}, opts...)
	return &testEnv{
		svc:      New(cfg, provider, store, engine, logs, opts...),
		provider: provider,
		store:    store,
		sleeper:  sleeper,
		logs:     logs,
	}
}

func pngRequest() *domain.OCRRequest {
	return &domain.OCRRequest{
		Document: &domain.UploadedDocument{
			Data:      []byte("fake-png-bytes"),
			MediaType: "image/png",
			Filename:  "receipt.PNG",
			Size:      14,
		},
		ChatbotID: "bot-1",
	}
}

func requireKind(t *testing.T, err error, kind domain.ErrorKind) *domain.WorkflowError {
	t.Helper()
	require.Error(t, err)
	wfErr, ok := err.(*domain.WorkflowError)
	require.True(t, ok, "expected *domain.WorkflowError, got %T", err)
	require.Equal(t, kind, wfErr.Kind, "error: %v", err)
	return wfErr
}
