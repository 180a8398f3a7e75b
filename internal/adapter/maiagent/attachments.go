package maiagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// uriBodyKeys are tried in order when resolving the uploaded file's URI.
var uriBodyKeys = []string{"file_url", "url", "file", "uri"}

// uriHeaders are consulted when the body names no URI.
var uriHeaders = []string{"Location", "X-Resource-Url"}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	URI      string
	Response *Response
}

// Attachment is a registered provider attachment.
type Attachment struct {
	ID   string `json:"id"`
	File string `json:"file"`
}

// RegisterRequest registers an uploaded file as an attachment.
type RegisterRequest struct {
	Filename string `json:"filename"`
	File     string `json:"file"`
}

// ConversationAttachment binds an attachment to a conversation.
type ConversationAttachment struct {
	Filename string `json:"filename"`
	File     string `json:"file"`
	Type     string `json:"type"`
}

// UploadAttachment uploads raw document bytes as multipart field "file".
func (c *Client) UploadAttachment(ctx context.Context, filename, mediaType string, data []byte) (*UploadResult, error) {
	const op = "UploadAttachment"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mediaType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create form part: %w", op, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%s: failed to write form part: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%s: failed to close form: %w", op, err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/attachments-upload/",
		body:        &buf,
		contentType: mw.FormDataContentType(),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK() {
		return nil, newAPIError(op, resp)
	}

	uri := ResolveUploadURI(resp)
	if uri == "" {
		return &UploadResult{Response: resp}, fmt.Errorf("%s: %w", op, ErrNoResourceURI)
	}
	return &UploadResult{URI: uri, Response: resp}, nil
}

// ResolveUploadURI finds the stored file's URI: first in the JSON body, then in
// the headers. A body that is not a JSON object counts as naming nothing.
func ResolveUploadURI(resp *Response) string {
	var body map[string]any
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		for _, key := range uriBodyKeys {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	for _, name := range uriHeaders {
		if v := resp.Header.Get(name); v != "" {
			return v
		}
	}
	return ""
}

// RegisterAttachment turns an uploaded URI into an attachment record.
func (c *Client) RegisterAttachment(ctx context.Context, req *RegisterRequest) (*Attachment, error) {
	var att Attachment
	if _, err := c.doJSON(ctx, "RegisterAttachment", http.MethodPost, "/attachments/", req, &att, nil); err != nil {
		return nil, err
	}
	return &att, nil
}

// AttachToConversation binds a registered file to an existing conversation.
func (c *Client) AttachToConversation(ctx context.Context, conversationID string, req *ConversationAttachment) error {
	path := fmt.Sprintf("/conversations/%s/attachments/", conversationID)
	_, err := c.doJSON(ctx, "AttachToConversation", http.MethodPost, path, req, nil, nil)
	return err
}
