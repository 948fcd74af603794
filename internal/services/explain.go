package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/llm"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

const maxPassageRunes = 4000

type AutoExplanation struct {
	Explanation string       `json:"explanation"`
	Quota       BucketStatus `json:"quota"`
	Bucket      quota.Bucket `json:"bucket"`
}

type ExplainConfig struct {
	MaxTokens   int
	Temperature float64
}

// ExplainService explains a highlighted passage on demand, charged to the
// auto_explain bucket. Results are not cached.
type ExplainService interface {
	Explain(ctx context.Context, userID uuid.UUID, passage, surrounding string) (*AutoExplanation, error)
}

type explainService struct {
	log      *logger.Logger
	ledger   QuotaLedger
	provider llm.Provider
	cfg      ExplainConfig
}

func NewExplainService(baseLog *logger.Logger, ledger QuotaLedger, provider llm.Provider, cfg ExplainConfig) ExplainService {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	return &explainService{
		log:      baseLog.With("service", "ExplainService"),
		ledger:   ledger,
		provider: provider,
		cfg:      cfg,
	}
}

func (s *explainService) Explain(ctx context.Context, userID uuid.UUID, passage, surrounding string) (*AutoExplanation, error) {
	passage = strings.TrimSpace(passage)
	if passage == "" {
		return nil, fmt.Errorf("%w: passage is empty", errs.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(passage) > maxPassageRunes {
		return nil, fmt.Errorf("%w: passage exceeds %d characters", errs.ErrInvalidArgument, maxPassageRunes)
	}

	ctx, span := observability.StartSpan(ctx, "explain.auto", attribute.Int("passage.runes", utf8.RuneCountInString(passage)))
	var text string
	err := s.ledger.Guard(ctx, userID, quota.BucketAutoExplain, "auto_explain", func(ctx context.Context) error {
		req := llm.UserPrompt(autoExplainSystemPrompt, autoExplainUserPrompt(passage, surrounding))
		req.MaxTokens = s.cfg.MaxTokens
		req.Temperature = s.cfg.Temperature
		req.Purpose = "auto_explain"
		out, err := generateText(ctx, s.provider, req)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	status, err := s.ledger.Status(ctx, userID)
	if err != nil {
		s.log.Warn("Quota status after auto-explain failed", "user_id", userID, "error", err)
	}
	return &AutoExplanation{Explanation: text, Bucket: quota.BucketAutoExplain, Quota: status[quota.BucketAutoExplain]}, nil
}
