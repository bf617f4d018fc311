package llm

import (
	"context"
	"sync"
	"time"
)

// RateLimitConfig bounds outbound traffic to a hosted model API.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits total model tokens per minute (0 = unlimited).
	TokensPerMinute int
	// BurstSize allows a short burst above the steady rate.
	BurstSize int
}

// DefaultRateLimitConfig is conservative enough for free-tier cloud APIs.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider wraps a provider with a token-bucket rate limiter.
// Chat traffic and embedding traffic share the same budget, matching how
// providers meter a single API key.
type RateLimitProvider struct {
	inner  Provider
	config *RateLimitConfig

	mu            sync.Mutex
	requestTokens int
	tokenBudget   int
	lastRefill    time.Time
	windowStart   time.Time
}

// NewRateLimitProvider creates a rate-limited provider wrapper.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &RateLimitProvider{
		inner:         inner,
		config:        config,
		requestTokens: burst,
		tokenBudget:   config.TokensPerMinute,
		lastRefill:    now,
		windowStart:   now,
	}
}

// Name returns the underlying provider name.
func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Complete waits for capacity, delegates, and records token usage.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.track(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed waits for capacity and delegates.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		hasRequest := r.config.RequestsPerMinute == 0 || r.requestTokens > 0
		hasBudget := r.config.TokensPerMinute == 0 || r.tokenBudget > 0
		if hasRequest && hasBudget {
			if r.config.RequestsPerMinute > 0 {
				r.requestTokens--
			}
			r.mu.Unlock()
			return nil
		}

		waitTime := r.waitTime()
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

func (r *RateLimitProvider) refill() {
	now := time.Now()

	if r.config.RequestsPerMinute > 0 {
		add := int(now.Sub(r.lastRefill).Minutes() * float64(r.config.RequestsPerMinute))
		if add > 0 {
			max := r.config.BurstSize
			if max <= 0 {
				max = 1
			}
			r.requestTokens += add
			if r.requestTokens > max {
				r.requestTokens = max
			}
		}
	}

	if now.Sub(r.windowStart) >= time.Minute {
		r.windowStart = now
		r.tokenBudget = r.config.TokensPerMinute
	}

	r.lastRefill = now
}

func (r *RateLimitProvider) track(tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokenBudget -= tokens
	if r.tokenBudget < 0 {
		r.tokenBudget = 0
	}
}

func (r *RateLimitProvider) waitTime() time.Duration {
	if r.config.RequestsPerMinute > 0 && r.requestTokens <= 0 {
		return time.Duration(float64(time.Minute) / float64(r.config.RequestsPerMinute))
	}
	if r.config.TokensPerMinute > 0 && r.tokenBudget <= 0 {
		if remaining := time.Minute - time.Since(r.windowStart); remaining > 0 {
			return remaining
		}
	}
	return 100 * time.Millisecond
}

// WithRateLimit wraps a provider with rate limiting.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
