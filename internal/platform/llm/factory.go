package llm

import (
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxAttempts uint
	RetryDelay  time.Duration
}

// NewProvider builds the configured backend wrapped as caller -> retry -> logging -> base.
func NewProvider(cfg Config, log *logger.Logger) (Provider, error) {
	var (
		base Provider
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai", "":
		base, err = NewOpenAIProvider(OpenAIConfig{APIKey: cfg.APIKey, Model: cfg.Model, BaseURL: cfg.BaseURL})
	case "anthropic":
		base, err = NewAnthropicProvider(AnthropicConfig{APIKey: cfg.APIKey, Model: cfg.Model})
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}
	return WithRetry(WithLogging(base, log), RetryConfig{Attempts: cfg.MaxAttempts, Delay: cfg.RetryDelay}), nil
}
