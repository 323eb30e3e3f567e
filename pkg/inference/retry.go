package inference

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// IsRetryable reports whether an inference error is transient. Rate limits,
// server-side failures, and network timeouts qualify; auth failures, bad
// requests, and caller cancellation do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return retryableStatus(anthropicErr.StatusCode)
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return retryableStatus(openaiErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "overloaded", "rate limit", "unexpected eof"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func retryableStatus(code int) bool {
	switch {
	case code == 408, code == 429:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
