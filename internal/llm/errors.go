package llm

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrRateLimited marks a 429 from the back-end.
	ErrRateLimited = errors.New("rate_limited")
	// ErrEmptyCompletion means the back-end answered without any choices.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrSchemaViolation means a structured response did not parse into the
	// requested shape after retries.
	ErrSchemaViolation = errors.New("schema violation")
)

func IsRateLimited(err error) bool     { return errors.Is(err, ErrRateLimited) }
func IsSchemaViolation(err error) bool { return errors.Is(err, ErrSchemaViolation) }

// IsTransient reports whether a failed call is worth retrying. Rate limits,
// server errors and network hiccups qualify; schema and request errors do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaViolation) {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if code, ok := statusCode(err); ok {
		if code == 429 || code == 408 {
			return true
		}
		if code >= 500 && code < 600 {
			return true
		}
		// Remaining 4xx are caller mistakes.
		if code >= 400 && code < 500 {
			return false
		}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	return false
}

func statusCode(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}
