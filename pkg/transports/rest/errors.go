package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response. Body holds the provider's message, trimmed.
type APIError struct {
	Provider string
	Method   string
	Path     string
	Status   int
	Body     string

	header http.Header
}

func newAPIError(provider, method, path string, resp *response) *APIError {
	return &APIError{
		Provider: provider,
		Method:   method,
		Path:     path,
		Status:   resp.status,
		Body:     strings.TrimSpace(string(resp.body)),
		header:   resp.header,
	}
}

func (e *APIError) Error() string {
	msg := e.Message()
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: %s %s: HTTP %d: %s", e.Provider, e.Method, e.Path, e.Status, msg)
}

// StatusCode returns the HTTP status.
func (e *APIError) StatusCode() int { return e.Status }

// Message extracts a human message from common JSON error shapes, falling back to
// the raw body.
func (e *APIError) Message() string {
	var shaped struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &shaped) == nil {
		if shaped.Message != "" {
			return shaped.Message
		}
		switch v := shaped.Error.(type) {
		case string:
			return v
		case map[string]any:
			if m, ok := v["message"].(string); ok {
				return m
			}
		}
	}
	const max = 512
	if len(e.Body) > max {
		return e.Body[:max] + "..."
	}
	return e.Body
}

// Contains reports whether the provider's message mentions substr, case-insensitively.
func (e *APIError) Contains(substr string) bool {
	return strings.Contains(strings.ToLower(e.Body), strings.ToLower(substr))
}

// retryAfter returns how long to wait before retrying a throttled request.
func (e *APIError) retryAfter(now time.Time) (time.Duration, bool) {
	if e.header == nil {
		return 0, false
	}
	if v := e.header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second, true
		}
	}
	if info := ParseRateLimit(e.header); info != nil {
		wait := info.Reset.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
