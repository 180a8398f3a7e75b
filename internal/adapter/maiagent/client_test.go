package maiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "secret", 5*time.Second)
}

func TestUploadAttachmentMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/attachments-upload/", r.URL.Path)
		assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)

		assert.Equal(t, "ocr-1.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("png-bytes"), data)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"url":"https://s3/u","file":"https://s3/f"}`)
	})

	res, err := client.UploadAttachment(context.Background(), "ocr-1.png", "image/png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://s3/u", res.URI)
}

func TestResolveUploadURI(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header http.Header
		want   string
	}{
		{"file_url first", `{"file":"b","file_url":"a"}`, nil, "a"},
		{"uri last", `{"uri":"d"}`, nil, "d"},
		{"empty values skipped", `{"file_url":"","url":"b"}`, nil, "b"},
		{"non json body uses location", `created`, http.Header{"Location": {"https://loc"}}, "https://loc"},
		{"resource url header", `{}`, http.Header{"X-Resource-Url": {"https://res"}}, "https://res"},
		{"nothing", `{"id":"1"}`, http.Header{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.header
			if h == nil {
				h = http.Header{}
			}
			got := ResolveUploadURI(&Response{StatusCode: 200, Header: h, Body: []byte(tt.body)})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUploadAttachmentNoURI(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"x"}`)
	})

	_, err := client.UploadAttachment(context.Background(), "a.png", "image/png", []byte("x"))
	assert.ErrorIs(t, err, ErrNoResourceURI)
}

func TestUploadAttachmentUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Invalid API key"}`)
	})

	_, err := client.UploadAttachment(context.Background(), "a.png", "image/png", []byte("x"))
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, "UploadAttachment", apiErr.Op)
	assert.Contains(t, apiErr.Body, "Invalid API key")
	assert.Equal(t, "req-1", apiErr.Header.Get("X-Request-Id"))
}

func TestRegisterAndAttach(t *testing.T) {
	var attachBody map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attachments/":
			var req RegisterRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ocr-1.pdf", req.Filename)
			fmt.Fprintf(w, `{"id":"att-1","file":"%s-canonical"}`, req.File)
		case "/conversations/conv-9/attachments/":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&attachBody))
			w.WriteHeader(http.StatusCreated)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	att, err := client.RegisterAttachment(context.Background(), &RegisterRequest{Filename: "ocr-1.pdf", File: "raw"})
	require.NoError(t, err)
	assert.Equal(t, "att-1", att.ID)
	assert.Equal(t, "raw-canonical", att.File)

	err = client.AttachToConversation(context.Background(), "conv-9", &ConversationAttachment{Filename: "ocr-1.pdf", File: att.File, Type: "image"})
	require.NoError(t, err)
	assert.Equal(t, "image", attachBody["type"])
}

func TestCreateCompletionHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chatbots/bot-1/completions/", r.URL.Path)
		assert.Equal(t, "zh-TW", r.Header.Get("Accept-Language"))
		assert.Equal(t, "zh-TW", r.Header.Get("Content-Language"))

		var req CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.IsStreaming)
		require.Len(t, req.Message.Attachments, 1)
		assert.Equal(t, "att-1", req.Message.Attachments[0].ID)

		fmt.Fprint(w, `{"id":"msg-1","conversationId":"conv-new"}`)
	})

	resp, err := client.CreateCompletion(context.Background(), "bot-1", &CompletionRequest{
		Message: CompletionMessage{
			Content:     "prompt",
			Attachments: []CompletionAttachment{{ID: "att-1", Type: "image", Filename: "f", File: "u"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "conv-new", resp.ConversationID)
	assert.Equal(t, "msg-1", resp.ID)
}

func TestListMessagesKeepsRaw(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "conv-1", r.URL.Query().Get("conversation"))
		assert.Equal(t, "10", r.URL.Query().Get("pageSize"))
		fmt.Fprint(w, `{"results":[{"id":"m2","type":"outgoing","content":"hi","createdAt":"t","extra":1},{"id":"m1","type":"incoming","content":"q"}]}`)
	})

	msgs, err := client.ListMessages(context.Background(), "conv-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "outgoing", msgs[0].Type)
	assert.Contains(t, string(msgs[0].Raw), `"extra":1`)
}

func TestListChatbotsFollowsNext(t *testing.T) {
	var serverURL string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `{"next":null,"results":[{"id":"b","name":"Scan"}]}`)
			return
		}
		fmt.Fprintf(w, `{"next":"%s/chatbots/?page=2","results":[{"id":"a","name":"OCR"}]}`, serverURL)
	}))
	defer server.Close()
	serverURL = server.URL

	client := NewClient(server.URL, "k", time.Second)
	bots, err := client.ListChatbots(context.Background())
	require.NoError(t, err)
	require.Len(t, bots, 2)
	assert.Equal(t, "a", bots[0].ID)
	assert.Equal(t, "b", bots[1].ID)
}

func TestListChatbotsRefusesForeignNextHost(t *testing.T) {
	var foreignHits int
	var foreignAuth string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignHits++
		foreignAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"next":null,"results":[{"id":"evil"}]}`)
	}))
	defer foreign.Close()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Api-Key secret", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"next":"%s/chatbots/?page=2","results":[{"id":"a"}]}`, foreign.URL)
	})

	_, err := client.ListChatbots(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the API host")
	assert.Zero(t, foreignHits)
	assert.Empty(t, foreignAuth)
}

func TestCredentialsOnlySentToAPIHost(t *testing.T) {
	var gotAuth string
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{}`)
	}))
	defer foreign.Close()

	client := NewClient("https://api.example.invalid/api", "secret", time.Second)
	_, err := client.doJSON(context.Background(), "Get", http.MethodGet, foreign.URL+"/x", nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestSupportedFileTypesPassthrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parsers/supported-file-types", r.URL.Path)
		fmt.Fprint(w, `{"types":[".pdf"]}`)
	})

	raw, err := client.SupportedFileTypes(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"types":[".pdf"]}`, string(raw))
}

func TestMockClientReplyOnSecondPoll(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	comp, err := m.CreateCompletion(ctx, "bot", &CompletionRequest{})
	require.NoError(t, err)

	first, err := m.ListMessages(ctx, comp.ConversationID, 10)
	require.NoError(t, err)
	for _, msg := range first {
		assert.NotEqual(t, "outgoing", msg.Type)
	}

	second, err := m.ListMessages(ctx, comp.ConversationID, 10)
	require.NoError(t, err)
	assert.Equal(t, "outgoing", second[0].Type)
	assert.Contains(t, second[0].Content, "```json")
}
