package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	tutorrepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/llm"
	"github.com/yungbote/neurobridge-tutor/internal/platform/lock"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type TopicSummary struct {
	ID            uuid.UUID       `json:"id"`
	Index         int             `json:"index"`
	Title         string          `json:"title"`
	Kind          tutor.TopicKind `json:"kind"`
	SubTopicCount int             `json:"sub_topic_count"`
}

type SubTopicSummary struct {
	ID    uuid.UUID `json:"id"`
	Index int       `json:"index"`
	Title string    `json:"title"`
}

type TopicProgressView struct {
	TopicID     uuid.UUID            `json:"topic_id"`
	TopicIndex  int                  `json:"topic_index"`
	Status      tutor.ProgressStatus `json:"status"`
	IsWeakPoint bool                 `json:"is_weak_point"`
}

type SessionView struct {
	ID              uuid.UUID           `json:"id"`
	FileID          uuid.UUID           `json:"file_id"`
	Status          tutor.SessionStatus `json:"status"`
	Position        tutor.Position      `json:"position"`
	Version         int64               `json:"version"`
	TopicCount      int                 `json:"topic_count"`
	CurrentTopic    *TopicSummary       `json:"current_topic,omitempty"`
	CurrentSubTopic *SubTopicSummary    `json:"current_sub_topic,omitempty"`
	Progress        []TopicProgressView `json:"progress"`
	PausedAt        *time.Time          `json:"paused_at,omitempty"`
	CompletedAt     *time.Time          `json:"completed_at,omitempty"`
}

type ExplanationView struct {
	SubTopicID    uuid.UUID      `json:"sub_topic_id"`
	Position      tutor.Position `json:"position"`
	Title         string         `json:"title"`
	Explanation   string         `json:"explanation"`
	ConsumedQuota bool           `json:"consumed_quota"`
}

type TestView struct {
	TopicID     uuid.UUID      `json:"topic_id"`
	TopicIndex  int            `json:"topic_index"`
	Questions   []QuestionView `json:"questions"`
	IsWeakPoint bool           `json:"is_weak_point"`
}

type AnswerOutcome struct {
	Result         *AnswerResult `json:"result"`
	TopicCompleted bool          `json:"topic_completed"`
	Session        *SessionView  `json:"session"`
}

type SessionConfig struct {
	// LeaseTTL must outlive the slowest guarded AI call made while holding a session lease.
	LeaseTTL           time.Duration
	ExplainMaxTokens   int
	ExplainTemperature float64
}

type SessionOrchestrator interface {
	StartSession(ctx context.Context, userID, fileID uuid.UUID) (*SessionView, error)
	GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error)
	GetExplanation(ctx context.Context, userID, sessionID uuid.UUID) (*ExplanationView, error)
	ConfirmUnderstanding(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error)
	SubmitAnswer(ctx context.Context, userID, sessionID uuid.UUID, ordinal int, answer string) (*AnswerOutcome, error)
	GetTestQuestions(ctx context.Context, userID, sessionID uuid.UUID) (*TestView, error)
	PauseSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error)
	ResumeSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error)
}

type sessionOrchestrator struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions tutorrepo.SessionRepo
	topics   tutorrepo.TopicRepo
	progress tutorrepo.ProgressRepo
	quiz     QuizEngine
	ledger   QuotaLedger
	provider llm.Provider
	locker   lock.Locker
	cfg      SessionConfig
	now      func() time.Time
}

func NewSessionOrchestrator(
	db *gorm.DB,
	baseLog *logger.Logger,
	sessions tutorrepo.SessionRepo,
	topics tutorrepo.TopicRepo,
	progress tutorrepo.ProgressRepo,
	quiz QuizEngine,
	ledger QuotaLedger,
	provider llm.Provider,
	locker lock.Locker,
	cfg SessionConfig,
) SessionOrchestrator {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 2 * time.Minute
	}
	if cfg.ExplainMaxTokens <= 0 {
		cfg.ExplainMaxTokens = 1200
	}
	if locker == nil {
		locker = lock.Noop{}
	}
	return &sessionOrchestrator{
		db:       db,
		log:      baseLog.With("service", "SessionOrchestrator"),
		sessions: sessions,
		topics:   topics,
		progress: progress,
		quiz:     quiz,
		ledger:   ledger,
		provider: provider,
		locker:   locker,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// withLease runs fn while holding the session's lease. A session already
// being mutated by another request is rejected, not queued.
func (s *sessionOrchestrator) withLease(ctx context.Context, sessionID uuid.UUID, fn func() error) error {
	release, err := s.locker.Acquire(ctx, "session:"+sessionID.String(), s.cfg.LeaseTTL)
	if errors.Is(err, lock.ErrBusy) {
		return errs.Conflict("session %s is busy, retry", sessionID)
	}
	if err != nil {
		return errs.Store(err)
	}
	defer func() { _ = release(context.WithoutCancel(ctx)) }()
	return fn()
}

func (s *sessionOrchestrator) load(ctx context.Context, userID, sessionID uuid.UUID) (*tutor.LearningSession, error) {
	row, err := s.sessions.GetByID(dbctx.Context{Ctx: ctx}, sessionID)
	if err != nil {
		return nil, errs.Store(err)
	}
	// another user's session is indistinguishable from a missing one
	if row == nil || row.UserID != userID {
		return nil, errs.NotFound("session")
	}
	return row, nil
}

func (s *sessionOrchestrator) currentTopic(ctx context.Context, sess *tutor.LearningSession) (*tutor.Topic, error) {
	topic, err := s.topics.GetByFileAndIndex(dbctx.Context{Ctx: ctx}, sess.FileID, sess.CurrentTopicIndex)
	if err != nil {
		return nil, errs.Store(err)
	}
	if topic == nil {
		return nil, errs.NotFound(fmt.Sprintf("topic %d", sess.CurrentTopicIndex))
	}
	return topic, nil
}

func (s *sessionOrchestrator) StartSession(ctx context.Context, userID, fileID uuid.UUID) (*SessionView, error) {
	if userID == uuid.Nil || fileID == uuid.Nil {
		return nil, fmt.Errorf("%w: user and file are required", errs.ErrInvalidArgument)
	}
	dbc := dbctx.Context{Ctx: ctx}
	topics, err := s.topics.ListByFile(dbc, fileID)
	if err != nil {
		return nil, errs.Store(err)
	}
	if len(topics) == 0 || topics[0].OwnerUserID != userID {
		return nil, errs.NotFound("outline for file")
	}
	sess, err := s.sessions.Ensure(dbc, userID, fileID)
	if err != nil {
		return nil, errs.Store(err)
	}
	s.log.Debug("Session started", "session_id", sess.ID, "user_id", userID)
	return s.view(ctx, sess)
}

func (s *sessionOrchestrator) GetSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	sess, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sess)
}

// GetExplanation returns the current sub-topic's explanation, generating and
// caching it under a learning-interactions reservation on first request.
func (s *sessionOrchestrator) GetExplanation(ctx context.Context, userID, sessionID uuid.UUID) (*ExplanationView, error) {
	var out *ExplanationView
	err := s.withLease(ctx, sessionID, func() error {
		sess, err := s.load(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != tutor.SessionInProgress || sess.CurrentPhase != tutor.PhaseExplaining {
			return errs.Conflict("explanations are only available while explaining an in-progress session (status=%s phase=%s)", sess.Status, sess.CurrentPhase)
		}
		topic, err := s.currentTopic(ctx, sess)
		if err != nil {
			return err
		}
		if sess.CurrentSubIndex >= len(topic.SubTopics) {
			return errs.NotFound(fmt.Sprintf("sub-topic %d", sess.CurrentSubIndex))
		}
		sub := topic.SubTopics[sess.CurrentSubIndex]
		out = &ExplanationView{SubTopicID: sub.ID, Position: sess.Position(), Title: sub.Title}
		if sub.Explanation != nil {
			out.Explanation = *sub.Explanation
			return nil
		}

		ctx, span := observability.StartSpan(ctx, "session.explain", attribute.String("sub_topic.id", sub.ID.String()))
		var text string
		err = s.ledger.Guard(ctx, userID, quota.BucketLearningInteractions, "explain", func(ctx context.Context) error {
			req := llm.UserPrompt(explainSystemPrompt, explainUserPrompt(topic, sub))
			req.MaxTokens = s.cfg.ExplainMaxTokens
			req.Temperature = s.cfg.ExplainTemperature
			req.Purpose = "explain"
			generated, err := generateText(ctx, s.provider, req)
			if err != nil {
				return err
			}
			if _, err := s.topics.SetSubTopicExplanation(dbctx.Context{Ctx: ctx}, sub.ID, generated); err != nil {
				return errs.Store(err)
			}
			text = generated
			return nil
		})
		observability.EndSpan(span, err)
		if err != nil {
			return err
		}
		out.Explanation = text
		out.ConsumedQuota = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfirmUnderstanding moves to the next sub-topic, or into TESTING after the
// last one. The question set is generated before the session changes so a
// failed generation leaves the session where it was.
func (s *sessionOrchestrator) ConfirmUnderstanding(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	var out *tutor.LearningSession
	err := s.withLease(ctx, sessionID, func() error {
		sess, err := s.load(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != tutor.SessionInProgress || sess.CurrentPhase != tutor.PhaseExplaining {
			return errs.Conflict("confirm is only valid while explaining an in-progress session (status=%s phase=%s)", sess.Status, sess.CurrentPhase)
		}
		topic, err := s.currentTopic(ctx, sess)
		if err != nil {
			return err
		}

		if sess.CurrentSubIndex+1 < len(topic.SubTopics) {
			return s.transition(ctx, sess, map[string]interface{}{
				"current_sub_index": sess.CurrentSubIndex + 1,
			}, nil, func(updated *tutor.LearningSession) { out = updated })
		}

		if _, _, err := s.quiz.GetOrGenerateQuestions(ctx, userID, topic); err != nil {
			return err
		}
		return s.transition(ctx, sess, map[string]interface{}{
			"current_phase": tutor.PhaseTesting,
		}, func(dbc dbctx.Context) error {
			_, err := s.progress.Ensure(dbc, sess.ID, topic.ID)
			return err
		}, func(updated *tutor.LearningSession) { out = updated })
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, out)
}

// transition applies updates to sess under its version guard in one
// transaction, together with whatever extra writes run.
func (s *sessionOrchestrator) transition(
	ctx context.Context,
	sess *tutor.LearningSession,
	updates map[string]interface{},
	extra func(dbc dbctx.Context) error,
	done func(updated *tutor.LearningSession),
) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["updated_at"] = s.now()
	var updated *tutor.LearningSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if extra != nil {
			if err := extra(dbc); err != nil {
				return err
			}
		}
		ok, err := s.sessions.UpdateIfVersion(dbc, sess.ID, sess.Version, updates)
		if err != nil {
			return errs.Store(err)
		}
		if !ok {
			return errs.Conflict("session %s changed concurrently", sess.ID)
		}
		updated, err = s.sessions.GetByID(dbc, sess.ID)
		return errs.Store(err)
	})
	if err != nil {
		if !errs.Classified(err) {
			err = errs.Store(err)
		}
		return err
	}
	if done != nil {
		done(updated)
	}
	return nil
}

func (s *sessionOrchestrator) SubmitAnswer(ctx context.Context, userID, sessionID uuid.UUID, ordinal int, answer string) (*AnswerOutcome, error) {
	out := &AnswerOutcome{}
	var updated *tutor.LearningSession
	err := s.withLease(ctx, sessionID, func() error {
		sess, err := s.load(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != tutor.SessionInProgress || sess.CurrentPhase != tutor.PhaseTesting {
			return errs.Conflict("answers are only accepted while testing an in-progress session (status=%s phase=%s)", sess.Status, sess.CurrentPhase)
		}
		topic, err := s.currentTopic(ctx, sess)
		if err != nil {
			return err
		}
		questions, err := s.quiz.CachedQuestions(ctx, topic.ID)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return errs.NotFound("questions for topic")
		}
		topicCount, err := s.topics.CountByFile(dbctx.Context{Ctx: ctx}, sess.FileID)
		if err != nil {
			return errs.Store(err)
		}

		updates := map[string]interface{}{}
		return s.transition(ctx, sess, updates, func(dbc dbctx.Context) error {
			progress, err := s.progress.Ensure(dbc, sess.ID, topic.ID)
			if err != nil {
				return errs.Store(err)
			}
			result, err := s.quiz.RecordAnswer(progress, questions, ordinal, answer)
			if err != nil {
				return err
			}
			complete, err := s.quiz.IsTopicComplete(progress, questions)
			if err != nil {
				return err
			}
			now := s.now()
			if complete && progress.Status != tutor.ProgressCompleted {
				progress.Status = tutor.ProgressCompleted
				progress.CompletedAt = &now
				out.TopicCompleted = true
				if int64(sess.CurrentTopicIndex+1) < topicCount {
					updates["current_topic_index"] = sess.CurrentTopicIndex + 1
					updates["current_sub_index"] = 0
					updates["current_phase"] = tutor.PhaseExplaining
				} else {
					updates["status"] = tutor.SessionCompleted
					updates["completed_at"] = now
				}
			}
			if err := s.progress.Save(dbc, progress); err != nil {
				return errs.Store(err)
			}
			out.Result = result
			return nil
		}, func(u *tutor.LearningSession) { updated = u })
	})
	if err != nil {
		return nil, err
	}
	if out.TopicCompleted {
		s.log.Info("Topic completed", "session_id", sessionID, "status", updated.Status)
	}
	view, err := s.view(ctx, updated)
	if err != nil {
		return nil, err
	}
	out.Session = view
	return out, nil
}

func (s *sessionOrchestrator) GetTestQuestions(ctx context.Context, userID, sessionID uuid.UUID) (*TestView, error) {
	sess, err := s.load(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == tutor.SessionCompleted || sess.CurrentPhase != tutor.PhaseTesting {
		return nil, errs.Conflict("no test is open (status=%s phase=%s)", sess.Status, sess.CurrentPhase)
	}
	topic, err := s.currentTopic(ctx, sess)
	if err != nil {
		return nil, err
	}
	questions, err := s.quiz.CachedQuestions(ctx, topic.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, errs.NotFound("questions for topic")
	}
	progress, err := s.progress.GetBySessionAndTopic(dbctx.Context{Ctx: ctx}, sess.ID, topic.ID)
	if err != nil {
		return nil, errs.Store(err)
	}
	views, err := s.quiz.PublicView(questions, progress)
	if err != nil {
		return nil, err
	}
	out := &TestView{TopicID: topic.ID, TopicIndex: topic.Index, Questions: views}
	if progress != nil {
		out.IsWeakPoint = progress.IsWeakPoint
	}
	return out, nil
}

// PauseSession parks a non-terminal session. Pausing a paused session is a no-op.
func (s *sessionOrchestrator) PauseSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	var out *tutor.LearningSession
	err := s.withLease(ctx, sessionID, func() error {
		sess, err := s.load(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		switch sess.Status {
		case tutor.SessionCompleted:
			return errs.Conflict("session %s is completed", sess.ID)
		case tutor.SessionPaused:
			out = sess
			return nil
		}
		return s.transition(ctx, sess, map[string]interface{}{
			"status":    tutor.SessionPaused,
			"paused_at": s.now(),
		}, nil, func(u *tutor.LearningSession) { out = u })
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, out)
}

// ResumeSession only touches status; the position tuple is untouched by pause and resume.
func (s *sessionOrchestrator) ResumeSession(ctx context.Context, userID, sessionID uuid.UUID) (*SessionView, error) {
	var out *tutor.LearningSession
	err := s.withLease(ctx, sessionID, func() error {
		sess, err := s.load(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != tutor.SessionPaused {
			return errs.Conflict("session %s is not paused (status=%s)", sess.ID, sess.Status)
		}
		return s.transition(ctx, sess, map[string]interface{}{
			"status":    tutor.SessionInProgress,
			"paused_at": nil,
		}, nil, func(u *tutor.LearningSession) { out = u })
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, out)
}

func (s *sessionOrchestrator) view(ctx context.Context, sess *tutor.LearningSession) (*SessionView, error) {
	if sess == nil {
		return nil, errs.NotFound("session")
	}
	dbc := dbctx.Context{Ctx: ctx}
	topics, err := s.topics.ListByFile(dbc, sess.FileID)
	if err != nil {
		return nil, errs.Store(err)
	}
	rows, err := s.progress.ListBySession(dbc, sess.ID)
	if err != nil {
		return nil, errs.Store(err)
	}
	byTopic := make(map[uuid.UUID]*tutor.TopicProgress, len(rows))
	for _, r := range rows {
		byTopic[r.TopicID] = r
	}

	v := &SessionView{
		ID:          sess.ID,
		FileID:      sess.FileID,
		Status:      sess.Status,
		Position:    sess.Position(),
		Version:     sess.Version,
		TopicCount:  len(topics),
		Progress:    make([]TopicProgressView, 0, len(topics)),
		PausedAt:    sess.PausedAt,
		CompletedAt: sess.CompletedAt,
	}
	for _, tp := range topics {
		pv := TopicProgressView{TopicID: tp.ID, TopicIndex: tp.Index, Status: tutor.ProgressPending}
		if p := byTopic[tp.ID]; p != nil {
			pv.Status = p.Status
			pv.IsWeakPoint = p.IsWeakPoint
		}
		v.Progress = append(v.Progress, pv)

		if tp.Index != sess.CurrentTopicIndex {
			continue
		}
		v.CurrentTopic = &TopicSummary{ID: tp.ID, Index: tp.Index, Title: tp.Title, Kind: tp.Kind, SubTopicCount: len(tp.SubTopics)}
		if sess.CurrentSubIndex < len(tp.SubTopics) {
			st := tp.SubTopics[sess.CurrentSubIndex]
			v.CurrentSubTopic = &SubTopicSummary{ID: st.ID, Index: st.Index, Title: st.Title}
		}
	}
	return v, nil
}

// generateText runs a schema-less request and unwraps the JSON string content.
func generateText(ctx context.Context, provider llm.Provider, req llm.Request) (string, error) {
	resp, err := provider.Generate(ctx, req)
	if err != nil {
		return "", errs.Generation(err)
	}
	var text string
	if err := json.Unmarshal(resp.Content, &text); err != nil {
		text = string(resp.Content)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errs.Generation(fmt.Errorf("empty %s response", req.Purpose))
	}
	return text, nil
}
