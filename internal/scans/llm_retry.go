package scans

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"net"
	"strings"
	"time"

	"docquality-backend/internal/llm"
	"docquality-backend/internal/shared/metrics"
)

const defaultRetryBaseDelay = 300 * time.Millisecond

type retryingLLM struct {
	base      llm.Client
	scanID    string
	requestID string
	attempts  int
	baseDelay time.Duration
}

// newRetryingLLM wraps base so transient failures (throttling, timeouts,
// broken connections) are retried with jittered exponential backoff, capped
// at attempts retries.
func newRetryingLLM(base llm.Client, scanID, requestID string, attempts int, baseDelay time.Duration) llm.Client {
	if base == nil {
		return nil
	}
	if attempts <= 0 {
		attempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	return retryingLLM{
		base:      base,
		scanID:    scanID,
		requestID: requestID,
		attempts:  attempts,
		baseDelay: baseDelay,
	}
}

func (r retryingLLM) AnalyzeDocument(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		resp, err := r.base.AnalyzeDocument(ctx, input)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, llm.ErrThrottled) {
			metrics.IncLLMThrottled()
		}
		if attempt >= r.attempts || !shouldRetryLLM(err) {
			return nil, err
		}
		delay := backoffDelay(r.baseDelay, attempt)
		log.Printf("llm retry attempt=%d delay=%s request_id=%s scan_id=%s file=%s error=%s",
			attempt+1, delay, r.requestID, r.scanID, input.FileName, sanitizeError(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// backoffDelay doubles the base delay per attempt and adds up to 50% jitter
// so concurrent workers retrying at once do not stampede the provider.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	const maxDelay = 10 * time.Second
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay + time.Duration(rand.Int63n(int64(delay)/2+1))
}

func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrThrottled) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "openai") || strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
