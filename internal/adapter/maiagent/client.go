// Package maiagent provides a client for the MaiAgent conversational AI API.
package maiagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public MaiAgent API root.
const DefaultBaseURL = "https://api.maiagent.ai/api"

// Client is the MaiAgent API client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new MaiAgent client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Response is a fully read provider response. Every call goes through it so
// status, headers and body are available for diagnostics regardless of outcome.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// request describes one provider call.
type request struct {
	method      string
	path        string // relative to baseURL, or an absolute URL
	body        io.Reader
	contentType string
	header      http.Header
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.baseURL + path
}

// do sends the request and reads the whole response. Transport failures are
// returned as errors; non-2xx statuses are not.
func (c *Client) do(ctx context.Context, r request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path), r.body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.sameHost(httpReq.URL) {
		c.setHeaders(httpReq)
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	if r.contentType != "" {
		httpReq.Header.Set("Content-Type", r.contentType)
	}
	for k, vs := range r.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// doJSON marshals in (when non-nil), sends it and decodes a 2xx body into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out any, header http.Header) (*Response, error) {
	r := request{method: method, path: path, header: header}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r.body = bytes.NewReader(payload)
		r.contentType = "application/json"
	}

	resp, err := c.do(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !resp.OK() {
		return resp, newAPIError(op, resp)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			return resp, fmt.Errorf("%s: failed to unmarshal response: %w", op, err)
		}
	}
	return resp, nil
}

// sameHost reports whether u points at the configured API host. Credentials
// are only ever sent there.
func (c *Client) sameHost(u *url.URL) bool {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Api-Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}
