package clients

import (
	"io"
	"net/http"
	"strings"

	"head-monitor/app/src/domain"
)

const maxErrorBody = 512

// NewStatusError builds a StatusError for resp, keeping a short snippet of the body.
func NewStatusError(url string, resp *http.Response) error {
	var body string
	if resp.Body != nil {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		body = strings.TrimSpace(string(snippet))
	}
	return &domain.StatusError{URL: url, Code: resp.StatusCode, Body: body}
}

// IsSuccess reports whether code is a 2xx status.
func IsSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// DefaultHTTPClient has no client-wide timeout; callers bound every request with a context deadline.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Transport: http.DefaultTransport}
}
