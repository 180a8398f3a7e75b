package maiagent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// maxChatbotPages bounds pagination against a provider that loops its next links.
const maxChatbotPages = 50

// Chatbot is a provider chatbot summary.
type Chatbot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	AgentMode   any    `json:"agentMode,omitempty"`
	ReplyMode   any    `json:"replyMode,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type chatbotPage struct {
	Next    string    `json:"next"`
	Results []Chatbot `json:"results"`
}

// ListChatbots walks every page of the chatbot catalog.
func (c *Client) ListChatbots(ctx context.Context) ([]Chatbot, error) {
	var all []Chatbot
	next := "/chatbots/?pageSize=100"
	seen := make(map[string]bool)

	for page := 0; next != "" && page < maxChatbotPages; page++ {
		if seen[next] {
			break
		}
		seen[next] = true

		path, err := c.pagePath(next)
		if err != nil {
			return nil, err
		}

		var p chatbotPage
		if _, err := c.doJSON(ctx, "ListChatbots", http.MethodGet, path, nil, &p, nil); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		next = p.Next
	}
	return all, nil
}

// pagePath checks a pagination link before it is followed. Absolute links must
// stay on the API host and inherit its scheme.
func (c *Client) pagePath(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("ListChatbots: invalid next link %q: %w", next, err)
	}
	if !u.IsAbs() {
		return next, nil
	}
	if !c.sameHost(u) {
		return "", fmt.Errorf("ListChatbots: next link host %q is not the API host", u.Host)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("ListChatbots: invalid base URL: %w", err)
	}
	u.Scheme = base.Scheme
	return u.String(), nil
}

// SupportedFileTypes returns the provider's parser file type list untouched.
func (c *Client) SupportedFileTypes(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.doJSON(ctx, "SupportedFileTypes", http.MethodGet, "/parsers/supported-file-types", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body), nil
}
