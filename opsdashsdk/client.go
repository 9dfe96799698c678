// Package opsdashsdk is the Go client for the opsdashd HTTP API.
package opsdashsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"
)

// UserIDHeader carries the acting user's id on every request.
const UserIDHeader = "Opsdash-User-Id"

// Response represents a generic HTTP response.
type Response struct {
	// Message is an actionable message that depicts actions the request took.
	Message string `json:"message"`
	// Detail is a debug message that provides further insight into why the
	// action failed. It may be empty.
	Detail string `json:"detail,omitempty"`
	// Validations are form field-specific friendly error messages.
	Validations []ValidationError `json:"validations,omitempty"`
}

// ValidationError represents a scoped error to a user input.
type ValidationError struct {
	Field  string `json:"field"`
	Detail string `json:"detail"`
}

// New creates an opsdashd client for the server at serverURL.
func New(serverURL *url.URL) *Client {
	return &Client{
		URL:        serverURL,
		HTTPClient: &http.Client{},
	}
}

// Client is an HTTP client for opsdashd.
type Client struct {
	URL        *url.URL
	HTTPClient *http.Client
	// UserID is sent as UserIDHeader when set.
	UserID uuid.UUID
}

// Request performs an HTTP request with the body provided. The caller is
// responsible for closing the response body.
func (c *Client) Request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	serverURL, err := c.URL.Parse(path)
	if err != nil {
		return nil, xerrors.Errorf("parse url: %w", err)
	}

	var r io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(body); err != nil {
			return nil, xerrors.Errorf("encode body: %w", err)
		}
		r = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, serverURL.String(), r)
	if err != nil {
		return nil, xerrors.Errorf("create request: %w", err)
	}
	c.setHeaders(req.Header)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("do: %w", err)
	}
	return resp, nil
}

func (c *Client) setHeaders(h http.Header) {
	if c.UserID != uuid.Nil {
		h.Set(UserIDHeader, c.UserID.String())
	}
}

// ReadBodyAsError reads the response as a Response and wraps it in an Error.
func ReadBodyAsError(res *http.Response) error {
	if res == nil {
		return xerrors.Errorf("no body returned")
	}
	defer res.Body.Close()

	var method, requestURL string
	if res.Request != nil {
		method = res.Request.Method
		if res.Request.URL != nil {
			requestURL = res.Request.URL.String()
		}
	}

	resp, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return xerrors.Errorf("read body: %w", err)
	}

	mimeType := res.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "application/json") {
		return &Error{
			statusCode: res.StatusCode,
			method:     method,
			url:        requestURL,
			Response: Response{
				Message: fmt.Sprintf("unexpected non-JSON response %q", mimeType),
				Detail:  string(resp),
			},
		}
	}

	var m Response
	if err := json.Unmarshal(resp, &m); err != nil {
		return xerrors.Errorf("decode error response: %w", err)
	}
	return &Error{
		Response:   m,
		statusCode: res.StatusCode,
		method:     method,
		url:        requestURL,
	}
}

// Error represents an unaccepted or invalid request to the API.
type Error struct {
	Response

	statusCode int
	method     string
	url        string
}

func (e *Error) StatusCode() int {
	return e.statusCode
}

func (e *Error) Error() string {
	var builder strings.Builder
	if e.method != "" && e.url != "" {
		_, _ = fmt.Fprintf(&builder, "%v %v\n", e.method, e.url)
	}
	_, _ = fmt.Fprintf(&builder, "Status Code: %d: %s", e.statusCode, e.Message)
	if e.Detail != "" {
		_, _ = fmt.Fprintf(&builder, "\n\tError: %s", e.Detail)
	}
	for _, err := range e.Validations {
		_, _ = fmt.Fprintf(&builder, "\n\t%s: %s", err.Field, err.Detail)
	}
	return builder.String()
}

// IsStatus reports whether err is an *Error with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return xerrors.As(err, &apiErr) && apiErr.StatusCode() == status
}
