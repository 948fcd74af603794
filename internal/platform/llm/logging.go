package llm

import (
	"context"
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type loggingProvider struct {
	inner Provider
	log   *logger.Logger
}

func WithLogging(p Provider, log *logger.Logger) Provider {
	return &loggingProvider{inner: p, log: log.With("service", "LLM", "model", p.ModelID())}
}

func (l *loggingProvider) ModelID() string { return l.inner.ModelID() }

func (l *loggingProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.inner.Generate(ctx, req)
	dur := time.Since(start)
	if err != nil {
		l.log.Warn("llm call failed", "purpose", req.Purpose, "duration_ms", dur.Milliseconds(), "error", err)
		return nil, err
	}
	l.log.Debug("llm call",
		"purpose", req.Purpose,
		"duration_ms", dur.Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop", resp.StopReason,
	)
	return resp, nil
}
