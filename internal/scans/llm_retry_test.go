package scans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"docquality-backend/internal/llm"
)

type flakyLLM struct {
	calls    int
	failures int
	err      error
}

func (f *flakyLLM) AnalyzeDocument(ctx context.Context, input llm.AnalyzeInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return json.RawMessage(`{"document_type":"invoice"}`), nil
}

func TestRetryingLLMRecoversFromThrottling(t *testing.T) {
	base := &flakyLLM{failures: 2, err: fmt.Errorf("openai chat: %w", llm.ErrThrottled)}
	client := newRetryingLLM(base, "scan-1", "req-1", 3, time.Millisecond)

	raw, err := client.AnalyzeDocument(context.Background(), llm.AnalyzeInput{FileName: "a.txt"})
	if err != nil {
		t.Fatalf("expected recovery after retries, got %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected a response payload")
	}
	if base.calls != 3 {
		t.Errorf("expected 3 calls, got %d", base.calls)
	}
}

func TestRetryingLLMGivesUpAfterCap(t *testing.T) {
	base := &flakyLLM{failures: 10, err: fmt.Errorf("openai chat: %w", llm.ErrThrottled)}
	client := newRetryingLLM(base, "scan-1", "req-1", 2, time.Millisecond)

	if _, err := client.AnalyzeDocument(context.Background(), llm.AnalyzeInput{FileName: "a.txt"}); !errors.Is(err, llm.ErrThrottled) {
		t.Fatalf("expected throttle error after cap, got %v", err)
	}
	if base.calls != 3 {
		t.Errorf("expected initial call plus 2 retries, got %d calls", base.calls)
	}
}

func TestRetryingLLMDoesNotRetryContentErrors(t *testing.T) {
	base := &flakyLLM{failures: 10, err: errors.New("llm output invalid: missing document_type")}
	client := newRetryingLLM(base, "scan-1", "req-1", 3, time.Millisecond)

	if _, err := client.AnalyzeDocument(context.Background(), llm.AnalyzeInput{FileName: "a.txt"}); err == nil {
		t.Fatal("expected error")
	}
	if base.calls != 1 {
		t.Errorf("expected a single call for a non-retryable error, got %d", base.calls)
	}
}

func TestBackoffDelayGrowsAndStaysBounded(t *testing.T) {
	base := 100 * time.Millisecond
	prevMin := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		min := base << uint(attempt)
		if min > 10*time.Second {
			min = 10 * time.Second
		}
		d := backoffDelay(base, attempt)
		if d < min {
			t.Errorf("attempt %d: delay %s below base %s", attempt, d, min)
		}
		if d > min+min/2 {
			t.Errorf("attempt %d: delay %s exceeds base plus jitter", attempt, d)
		}
		if min < prevMin {
			t.Errorf("attempt %d: backoff not monotonic", attempt)
		}
		prevMin = min
	}
}
