package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	tutorrepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/llm"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// QuestionView is what a client may see of a question. The answer and
// explanation are only filled in once the question has been attempted.
type QuestionView struct {
	Ordinal       int                `json:"ordinal"`
	Type          tutor.QuestionType `json:"type"`
	Prompt        string             `json:"prompt"`
	Options       []string           `json:"options,omitempty"`
	Attempted     bool               `json:"attempted"`
	Correct       bool               `json:"correct"`
	Attempts      int                `json:"attempts"`
	CorrectAnswer *string            `json:"correct_answer,omitempty"`
	Explanation   *string            `json:"explanation,omitempty"`
}

type AnswerResult struct {
	Ordinal       int    `json:"ordinal"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Explanation   string `json:"explanation"`
	IsWeakPoint   bool   `json:"is_weak_point"`
}

type QuizConfig struct {
	MaxTokens   int
	Temperature float64
}

type QuizEngine interface {
	GetOrGenerateQuestions(ctx context.Context, userID uuid.UUID, topic *tutor.Topic) ([]*tutor.TopicTestQuestion, bool, error)
	CachedQuestions(ctx context.Context, topicID uuid.UUID) ([]*tutor.TopicTestQuestion, error)
	RecordAnswer(progress *tutor.TopicProgress, questions []*tutor.TopicTestQuestion, ordinal int, answer string) (*AnswerResult, error)
	IsTopicComplete(progress *tutor.TopicProgress, questions []*tutor.TopicTestQuestion) (bool, error)
	PublicView(questions []*tutor.TopicTestQuestion, progress *tutor.TopicProgress) ([]QuestionView, error)
}

type quizEngine struct {
	log       *logger.Logger
	questions tutorrepo.QuestionRepo
	ledger    QuotaLedger
	provider  llm.Provider
	cfg       QuizConfig
}

func NewQuizEngine(baseLog *logger.Logger, questions tutorrepo.QuestionRepo, ledger QuotaLedger, provider llm.Provider, cfg QuizConfig) QuizEngine {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &quizEngine{
		log:       baseLog.With("service", "QuizEngine"),
		questions: questions,
		ledger:    ledger,
		provider:  provider,
		cfg:       cfg,
	}
}

var errLostGenerationRace = errors.New("question set written by a concurrent generator")

func (q *quizEngine) CachedQuestions(ctx context.Context, topicID uuid.UUID) ([]*tutor.TopicTestQuestion, error) {
	rows, err := q.questions.ListByTopic(dbctx.Context{Ctx: ctx}, topicID)
	if err != nil {
		return nil, errs.Store(err)
	}
	return rows, nil
}

// GetOrGenerateQuestions returns the cached set for topic, generating it under
// a learning-interactions reservation when none exists. The bool reports
// whether quota was consumed by this call.
func (q *quizEngine) GetOrGenerateQuestions(ctx context.Context, userID uuid.UUID, topic *tutor.Topic) ([]*tutor.TopicTestQuestion, bool, error) {
	if topic == nil {
		return nil, false, errs.NotFound("topic")
	}
	cached, err := q.CachedQuestions(ctx, topic.ID)
	if err != nil {
		return nil, false, err
	}
	if len(cached) > 0 {
		return cached, false, nil
	}

	ctx, span := observability.StartSpan(ctx, "quiz.generate",
		attribute.String("topic.id", topic.ID.String()),
		attribute.String("topic.kind", string(topic.Kind)),
	)

	count := topic.Kind.QuestionCount()
	var generated []*tutor.TopicTestQuestion
	err = q.ledger.Guard(ctx, userID, quota.BucketLearningInteractions, "quiz", func(ctx context.Context) error {
		set, err := q.generate(ctx, topic, count)
		if err != nil {
			return err
		}
		if err := q.questions.CreateSet(dbctx.Context{Ctx: ctx}, set); err != nil {
			existing, rerr := q.questions.ListByTopic(dbctx.Context{Ctx: ctx}, topic.ID)
			if rerr == nil && len(existing) > 0 {
				return errLostGenerationRace
			}
			return errs.Store(err)
		}
		generated = set
		return nil
	})
	if errors.Is(err, errLostGenerationRace) {
		q.log.Info("Question generation lost race, using existing set", "topic_id", topic.ID)
		cached, err = q.CachedQuestions(ctx, topic.ID)
		observability.EndSpan(span, err)
		return cached, false, err
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, false, err
	}
	return generated, true, nil
}

type generatedQuestion struct {
	Prompt        string   `json:"prompt"`
	Type          string   `json:"type"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
}

func (q *quizEngine) generate(ctx context.Context, topic *tutor.Topic, count int) ([]*tutor.TopicTestQuestion, error) {
	req := llm.UserPrompt(quizSystemPrompt, quizUserPrompt(topic, count))
	req.Schema = questionSchema(count)
	req.MaxTokens = q.cfg.MaxTokens
	req.Temperature = q.cfg.Temperature
	req.Purpose = "quiz"

	resp, err := q.provider.Generate(ctx, req)
	if err != nil {
		return nil, errs.Generation(err)
	}
	var payload struct {
		Questions []generatedQuestion `json:"questions"`
	}
	if err := json.Unmarshal(resp.Content, &payload); err != nil {
		return nil, errs.Generation(fmt.Errorf("decode questions: %w", err))
	}
	set, err := buildQuestionSet(topic.ID, payload.Questions, count, time.Now().UTC())
	if err != nil {
		return nil, errs.Generation(err)
	}
	return set, nil
}

// buildQuestionSet enforces the rules the schema cannot express and
// normalizes multiple-choice answers to the option text.
func buildQuestionSet(topicID uuid.UUID, items []generatedQuestion, count int, now time.Time) ([]*tutor.TopicTestQuestion, error) {
	if len(items) != count {
		return nil, fmt.Errorf("expected %d questions, got %d", count, len(items))
	}
	out := make([]*tutor.TopicTestQuestion, 0, count)
	for i, it := range items {
		prompt := strings.TrimSpace(it.Prompt)
		if prompt == "" {
			return nil, fmt.Errorf("question %d: empty prompt", i)
		}
		row := &tutor.TopicTestQuestion{
			ID:          uuid.New(),
			TopicID:     topicID,
			Ordinal:     i,
			Type:        tutor.QuestionType(it.Type),
			Prompt:      prompt,
			Explanation: strings.TrimSpace(it.Explanation),
			CreatedAt:   now,
		}
		switch row.Type {
		case tutor.QuestionMultipleChoice:
			if len(it.Options) != 4 {
				return nil, fmt.Errorf("question %d: multiple choice needs exactly 4 options, got %d", i, len(it.Options))
			}
			opts := make([]string, 4)
			for j, o := range it.Options {
				opts[j] = strings.TrimSpace(o)
				if opts[j] == "" {
					return nil, fmt.Errorf("question %d: empty option", i)
				}
			}
			idx := matchOption(opts, it.CorrectAnswer)
			if idx < 0 {
				return nil, fmt.Errorf("question %d: correct answer is not among the options", i)
			}
			raw, _ := json.Marshal(opts)
			row.Options = datatypes.JSON(raw)
			row.CorrectAnswer = opts[idx]
		case tutor.QuestionShortAnswer:
			ans := strings.TrimSpace(it.CorrectAnswer)
			if ans == "" {
				return nil, fmt.Errorf("question %d: empty answer", i)
			}
			row.CorrectAnswer = ans
		default:
			return nil, fmt.Errorf("question %d: unknown type %q", i, it.Type)
		}
		out = append(out, row)
	}
	return out, nil
}

// matchOption resolves an answer to an option index. It accepts the option
// text (case-insensitive) or a single letter A-D.
func matchOption(options []string, answer string) int {
	a := strings.TrimSpace(answer)
	for i, o := range options {
		if strings.EqualFold(o, a) {
			return i
		}
	}
	if len(a) == 1 {
		c := unicode.ToUpper(rune(a[0]))
		if c >= 'A' && int(c-'A') < len(options) {
			return int(c - 'A')
		}
	}
	return -1
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRightFunc(s, func(r rune) bool { return unicode.IsPunct(r) })
	return strings.Join(strings.Fields(s), " ")
}

func findQuestion(questions []*tutor.TopicTestQuestion, ordinal int) *tutor.TopicTestQuestion {
	for _, qq := range questions {
		if qq.Ordinal == ordinal {
			return qq
		}
	}
	return nil
}

// RecordAnswer grades answer and updates progress in memory; the caller persists it.
func (q *quizEngine) RecordAnswer(progress *tutor.TopicProgress, questions []*tutor.TopicTestQuestion, ordinal int, answer string) (*AnswerResult, error) {
	if progress == nil {
		return nil, errs.NotFound("topic progress")
	}
	question := findQuestion(questions, ordinal)
	if question == nil {
		return nil, errs.NotFound(fmt.Sprintf("question %d", ordinal))
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("%w: answer is empty", errs.ErrInvalidArgument)
	}

	var correct bool
	switch question.Type {
	case tutor.QuestionMultipleChoice:
		opts := question.OptionList()
		idx := matchOption(opts, answer)
		correct = idx >= 0 && strings.EqualFold(opts[idx], question.CorrectAnswer)
	default:
		correct = normalizeAnswer(answer) == normalizeAnswer(question.CorrectAnswer)
	}

	attempts, err := progress.Attempts()
	if err != nil {
		return nil, errs.Store(err)
	}
	a := attempts[ordinal]
	a.Attempted = true
	a.Attempts++
	a.LastAnswer = answer
	if correct {
		a.Correct = true
	} else if !a.Correct {
		progress.IsWeakPoint = true
	}
	attempts[ordinal] = a
	if err := progress.SetAttempts(attempts); err != nil {
		return nil, errs.Store(err)
	}
	if progress.Status == tutor.ProgressPending {
		progress.Status = tutor.ProgressInProgress
	}

	return &AnswerResult{
		Ordinal:       ordinal,
		Correct:       correct,
		CorrectAnswer: question.CorrectAnswer,
		Explanation:   question.Explanation,
		IsWeakPoint:   progress.IsWeakPoint,
	}, nil
}

func (q *quizEngine) IsTopicComplete(progress *tutor.TopicProgress, questions []*tutor.TopicTestQuestion) (bool, error) {
	if progress == nil || len(questions) == 0 {
		return false, nil
	}
	attempts, err := progress.Attempts()
	if err != nil {
		return false, errs.Store(err)
	}
	for _, qq := range questions {
		if !attempts[qq.Ordinal].Correct {
			return false, nil
		}
	}
	return true, nil
}

func (q *quizEngine) PublicView(questions []*tutor.TopicTestQuestion, progress *tutor.TopicProgress) ([]QuestionView, error) {
	attempts := map[int]tutor.QuestionAttempt{}
	if progress != nil {
		var err error
		if attempts, err = progress.Attempts(); err != nil {
			return nil, errs.Store(err)
		}
	}
	out := make([]QuestionView, 0, len(questions))
	for _, qq := range questions {
		a := attempts[qq.Ordinal]
		v := QuestionView{
			Ordinal:   qq.Ordinal,
			Type:      qq.Type,
			Prompt:    qq.Prompt,
			Options:   qq.OptionList(),
			Attempted: a.Attempted,
			Correct:   a.Correct,
			Attempts:  a.Attempts,
		}
		if a.Attempted {
			ans, expl := qq.CorrectAnswer, qq.Explanation
			v.CorrectAnswer = &ans
			v.Explanation = &expl
		}
		out = append(out, v)
	}
	return out, nil
}
