package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeProvider fails a fixed number of times before succeeding.
type fakeProvider struct {
	failures int
	calls    int
	err      error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &Response{Content: "ok"}, nil
}

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	vecs := make([][]float32, len(texts))
	for i := range vecs {
		vecs[i] = []float32{1, 0}
	}
	return vecs, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func TestRetryProvider_EventualSuccess(t *testing.T) {
	inner := &fakeProvider{failures: 2, err: fmt.Errorf("503 Service Unavailable")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	resp, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want ok", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3", inner.calls)
	}
}

func TestRetryProvider_NonRetryableStopsImmediately(t *testing.T) {
	inner := &fakeProvider{failures: 5, err: fmt.Errorf("401 Unauthorized")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	_, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on auth failure)", inner.calls)
	}
}

func TestRetryProvider_ExhaustsRetries(t *testing.T) {
	inner := &fakeProvider{failures: 10, err: fmt.Errorf("500 Internal Server Error")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	})

	_, err := p.Embed(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", inner.calls)
	}
}

func TestRetryProvider_ServiceErrorSurvivesWrapping(t *testing.T) {
	svcErr := &ServiceError{Op: OpEmbed, Provider: "fake", Err: fmt.Errorf("500 Internal Server Error")}
	inner := &fakeProvider{failures: 10, err: svcErr}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		Timeout:    time.Second,
	})

	_, err := p.Embed(context.Background(), []string{"text"})
	if !IsEmbeddingError(err) {
		t.Errorf("wrapped error lost ServiceError identity: %v", err)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate_limit", fmt.Errorf("429 Too Many Requests"), true},
		{"daily_limit", fmt.Errorf("429: tokens per day exceeded"), false},
		{"server_error", fmt.Errorf("502 Bad Gateway"), true},
		{"auth", fmt.Errorf("403 Forbidden"), false},
		{"not_found", fmt.Errorf("404 Not Found"), false},
		{"unknown", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffCapped(t *testing.T) {
	p := NewRetryProvider(&fakeProvider{}, &RetryConfig{
		RetryDelay: time.Second,
		MaxDelay:   4 * time.Second,
	})
	if got := p.backoff(1); got != time.Second {
		t.Errorf("backoff(1) = %v, want 1s", got)
	}
	if got := p.backoff(2); got != 2*time.Second {
		t.Errorf("backoff(2) = %v, want 2s", got)
	}
	if got := p.backoff(10); got != 4*time.Second {
		t.Errorf("backoff(10) = %v, want capped 4s", got)
	}
}
