package maiagent

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoResourceURI is returned when an upload succeeded but neither the body
// nor the headers name the stored file.
var ErrNoResourceURI = errors.New("upload response carries no resource URI")

// APIError is a non-2xx provider response.
type APIError struct {
	Op         string // Operation that failed (e.g., "UploadAttachment")
	StatusCode int
	Body       string
	Header     http.Header
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: MaiAgent API error [%d]: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("MaiAgent API error [%d]: %s", e.StatusCode, e.Body)
}

func newAPIError(op string, resp *Response) *APIError {
	return &APIError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
		Header:     resp.Header.Clone(),
	}
}

// IsUnauthorized reports whether err indicates a 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}

// AsAPIError extracts the APIError from err, if any.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
