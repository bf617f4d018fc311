package llm

import (
	"context"
	"time"

	"github.com/shopclerk/shopclerk/internal/observability"
)

// InstrumentedProvider decorates a Provider with tracing spans, audit
// events, and request metrics. Metrics and audit may be nil; spans are
// no-ops until tracing is initialized.
type InstrumentedProvider struct {
	inner   Provider
	model   string
	metrics *observability.ChatMetrics
	audit   *observability.AuditLogger
}

// WithInstrumentation wraps a provider for observability. Wrap outermost so
// retried calls are recorded once, with their total duration.
func WithInstrumentation(p Provider, model string, m *observability.ChatMetrics, a *observability.AuditLogger) Provider {
	if p == nil {
		return nil
	}
	return &InstrumentedProvider{inner: p, model: model, metrics: m, audit: a}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

func (p *InstrumentedProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	ctx, span := observability.StartLLMSpan(ctx, p.inner.Name(), p.model)
	defer span.End()

	if p.audit != nil {
		p.audit.LogLLMRequest(ctx, p.inner.Name(), p.model)
	}

	start := time.Now()
	resp, err := p.inner.Complete(ctx, prompt, opts)
	duration := time.Since(start)

	if err != nil {
		observability.RecordError(span, err)
		if p.audit != nil {
			p.audit.LogLLMError(ctx, p.inner.Name(), p.model, err)
		}
		if p.metrics != nil {
			p.metrics.RecordLLMRequest(duration, 0, err)
		}
		return nil, err
	}

	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, duration)
	if p.audit != nil {
		p.audit.LogLLMResponse(ctx, p.inner.Name(), p.model, duration, resp.InputTokens, resp.OutputTokens)
	}
	if p.metrics != nil {
		p.metrics.RecordLLMRequest(duration, resp.InputTokens+resp.OutputTokens, nil)
	}
	return resp, nil
}

func (p *InstrumentedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, p.inner.Name(), len(texts))
	defer span.End()

	start := time.Now()
	vectors, err := p.inner.Embed(ctx, texts)
	duration := time.Since(start)

	if err != nil {
		observability.RecordError(span, err)
		if p.audit != nil {
			p.audit.LogLLMError(ctx, p.inner.Name(), p.model, err)
		}
		if p.metrics != nil {
			p.metrics.RecordLLMRequest(duration, 0, err)
		}
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.RecordLLMRequest(duration, 0, nil)
	}
	return vectors, nil
}
