package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	tutorrepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/tutor"
	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/domain/tutor"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/llm"
	"github.com/yungbote/neurobridge-tutor/internal/platform/lock"
)

type sessionFixture struct {
	*quizFixture
	sessions tutorrepo.SessionRepo
	progress tutorrepo.ProgressRepo
	locker   lock.Locker
	orch     SessionOrchestrator
	user     uuid.UUID
	file     uuid.UUID
	topics   []*tutor.Topic
}

// newSessionFixture seeds a core topic with two sub-topics followed by a supporting topic with one.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	qf := newQuizFixture(t)
	log := testutil.Logger(t)
	f := &sessionFixture{
		quizFixture: qf,
		sessions:    tutorrepo.NewSessionRepo(qf.db, log),
		progress:    tutorrepo.NewProgressRepo(qf.db, log),
		locker:      lock.NewLeaseLocker(qf.db, log),
		user:        uuid.New(),
		file:        uuid.New(),
	}
	f.topics = testutil.SeedOutline(t, qf.db, f.user, f.file,
		testutil.OutlineSpec{Kind: tutor.TopicKindCore, SubTopics: 2},
		testutil.OutlineSpec{Kind: tutor.TopicKindSupporting, SubTopics: 1},
	)
	f.orch = NewSessionOrchestrator(qf.db, log, f.sessions, tutorrepo.NewTopicRepo(qf.db, log), f.progress,
		qf.engine, qf.ledger, qf.provider, f.locker, SessionConfig{LeaseTTL: time.Minute})
	return f
}

func (f *sessionFixture) start(t *testing.T) *SessionView {
	t.Helper()
	v, err := f.orch.StartSession(context.Background(), f.user, f.file)
	require.NoError(t, err)
	return v
}

// toTesting confirms every sub-topic of the current topic, queueing a question set of n.
func (f *sessionFixture) toTesting(t *testing.T, id uuid.UUID, subs, n int) *SessionView {
	t.Helper()
	var v *SessionView
	var err error
	for i := 0; i < subs-1; i++ {
		v, err = f.orch.ConfirmUnderstanding(context.Background(), f.user, id)
		require.NoError(t, err)
	}
	f.provider.AddJSON(questionPayload(n))
	v, err = f.orch.ConfirmUnderstanding(context.Background(), f.user, id)
	require.NoError(t, err)
	require.Equal(t, tutor.PhaseTesting, v.Position.Phase)
	return v
}

// correctAnswer matches questionPayload: even ordinals are multiple choice.
func correctAnswer(ordinal int) string {
	if ordinal%2 == 0 {
		return "beta"
	}
	return "photosynthesis"
}

func TestSessionOrchestrator_StartSession(t *testing.T) {
	f := newSessionFixture(t)

	v := f.start(t)
	assert.Equal(t, tutor.SessionInProgress, v.Status)
	assert.Equal(t, tutor.Position{TopicIndex: 0, SubIndex: 0, Phase: tutor.PhaseExplaining}, v.Position)
	assert.Equal(t, 2, v.TopicCount)
	require.NotNil(t, v.CurrentTopic)
	assert.Equal(t, "Topic 1", v.CurrentTopic.Title)
	require.NotNil(t, v.CurrentSubTopic)
	assert.Equal(t, "Sub 1.1", v.CurrentSubTopic.Title)
	for _, p := range v.Progress {
		assert.Equal(t, tutor.ProgressPending, p.Status)
	}

	again := f.start(t)
	assert.Equal(t, v.ID, again.ID)

	_, err := f.orch.StartSession(context.Background(), f.user, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.orch.StartSession(context.Background(), uuid.New(), f.file)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.orch.StartSession(context.Background(), uuid.Nil, f.file)
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestSessionOrchestrator_OtherUsersSessionIsNotFound(t *testing.T) {
	f := newSessionFixture(t)
	v := f.start(t)

	_, err := f.orch.GetSession(context.Background(), uuid.New(), v.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.orch.PauseSession(context.Background(), uuid.New(), v.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestSessionOrchestrator_ExplanationIsGeneratedOnceAndCached(t *testing.T) {
	f := newSessionFixture(t)
	v := f.start(t)
	f.provider.AddJSON("Cells turn light into sugar.")

	first, err := f.orch.GetExplanation(context.Background(), f.user, v.ID)
	require.NoError(t, err)
	assert.True(t, first.ConsumedQuota)
	assert.Equal(t, "Cells turn light into sugar.", first.Explanation)
	assert.Equal(t, f.topics[0].SubTopics[0].ID, first.SubTopicID)

	second, err := f.orch.GetExplanation(context.Background(), f.user, v.ID)
	require.NoError(t, err)
	assert.False(t, second.ConsumedQuota)
	assert.Equal(t, first.Explanation, second.Explanation)

	assert.Equal(t, 1, f.provider.CallCount())
	assert.Equal(t, 1, f.account(t, f.user, quota.BucketLearningInteractions).Used)
}

func TestSessionOrchestrator_ExplanationFailureRefunds(t *testing.T) {
	f := newSessionFixture(t)
	v := f.start(t)
	f.provider.AddJSON("   ")

	_, err := f.orch.GetExplanation(context.Background(), f.user, v.ID)
	require.ErrorIs(t, err, errs.ErrExternalGenerationFailed)
	assert.Zero(t, f.account(t, f.user, quota.BucketLearningInteractions).Used)
}

func TestSessionOrchestrator_FullWalkthrough(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)

	v, err := f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, tutor.Position{TopicIndex: 0, SubIndex: 1, Phase: tutor.PhaseExplaining}, v.Position)

	f.provider.AddJSON(questionPayload(5))
	v, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, tutor.Position{TopicIndex: 0, SubIndex: 1, Phase: tutor.PhaseTesting}, v.Position)
	assert.Equal(t, tutor.ProgressInProgress, v.Progress[0].Status)

	test, err := f.orch.GetTestQuestions(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.Len(t, test.Questions, 5)
	for _, q := range test.Questions {
		assert.Nil(t, q.CorrectAnswer)
	}

	out, err := f.orch.SubmitAnswer(ctx, f.user, v.ID, 1, "respiration")
	require.NoError(t, err)
	assert.False(t, out.Result.Correct)
	assert.True(t, out.Result.IsWeakPoint)
	assert.False(t, out.TopicCompleted)

	for ord := 0; ord < 5; ord++ {
		out, err = f.orch.SubmitAnswer(ctx, f.user, v.ID, ord, correctAnswer(ord))
		require.NoError(t, err)
		assert.True(t, out.Result.Correct, "ordinal %d", ord)
	}
	assert.True(t, out.TopicCompleted)
	assert.Equal(t, tutor.Position{TopicIndex: 1, SubIndex: 0, Phase: tutor.PhaseExplaining}, out.Session.Position)
	assert.Equal(t, tutor.ProgressCompleted, out.Session.Progress[0].Status)
	assert.True(t, out.Session.Progress[0].IsWeakPoint)
	assert.Equal(t, tutor.ProgressPending, out.Session.Progress[1].Status)

	v = f.toTesting(t, v.ID, 1, 3)
	assert.Equal(t, tutor.Position{TopicIndex: 1, SubIndex: 0, Phase: tutor.PhaseTesting}, v.Position)
	for ord := 0; ord < 3; ord++ {
		out, err = f.orch.SubmitAnswer(ctx, f.user, v.ID, ord, correctAnswer(ord))
		require.NoError(t, err)
	}
	assert.True(t, out.TopicCompleted)
	assert.Equal(t, tutor.SessionCompleted, out.Session.Status)
	assert.NotNil(t, out.Session.CompletedAt)
	assert.False(t, out.Session.Progress[1].IsWeakPoint)

	_, err = f.orch.SubmitAnswer(ctx, f.user, v.ID, 0, "beta")
	assert.ErrorIs(t, err, errs.ErrStateConflict)
	_, err = f.orch.PauseSession(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)
	_, err = f.orch.GetTestQuestions(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	assert.Equal(t, 2, f.account(t, f.user, quota.BucketLearningInteractions).Used)
}

func TestSessionOrchestrator_FailedGenerationLeavesSessionUntouched(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v, err := f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.NoError(t, err)

	f.provider.AddResponse(llm.MockResponse{Err: &llm.ErrProviderUnavailable{}})
	_, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.ErrorIs(t, err, errs.ErrExternalGenerationFailed)

	after, err := f.orch.GetSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Position, after.Position)
	assert.Equal(t, v.Version, after.Version)
	assert.Zero(t, f.account(t, f.user, quota.BucketLearningInteractions).Used)

	// a retry picks up where it left off
	f.provider.AddJSON(questionPayload(5))
	after, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, tutor.PhaseTesting, after.Position.Phase)
}

func TestSessionOrchestrator_QuotaDenialBlocksTesting(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)
	f.seedAccount(t, f.user, quota.BucketLearningInteractions, 150, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC))

	_, err := f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.NoError(t, err)
	f.provider.AddJSON(questionPayload(5))
	_, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	require.ErrorIs(t, err, errs.ErrQuotaExceeded)
	assert.Zero(t, f.provider.CallCount())

	after, err := f.orch.GetSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, tutor.PhaseExplaining, after.Position.Phase)
}

func TestSessionOrchestrator_PauseResumeKeepsPosition(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v = f.toTesting(t, v.ID, 2, 5)
	_, err := f.orch.SubmitAnswer(ctx, f.user, v.ID, 0, "beta")
	require.NoError(t, err)
	before, err := f.orch.GetSession(ctx, f.user, v.ID)
	require.NoError(t, err)

	paused, err := f.orch.PauseSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, tutor.SessionPaused, paused.Status)
	assert.NotNil(t, paused.PausedAt)
	assert.Equal(t, before.Position, paused.Position)

	again, err := f.orch.PauseSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, paused.Version, again.Version)

	_, err = f.orch.SubmitAnswer(ctx, f.user, v.ID, 1, "photosynthesis")
	assert.ErrorIs(t, err, errs.ErrStateConflict)
	_, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	test, err := f.orch.GetTestQuestions(ctx, f.user, v.ID)
	require.NoError(t, err)
	require.NotNil(t, test.Questions[0].CorrectAnswer)

	resumed, err := f.orch.ResumeSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, tutor.SessionInProgress, resumed.Status)
	assert.Nil(t, resumed.PausedAt)
	assert.Equal(t, before.Position, resumed.Position)

	_, err = f.orch.ResumeSession(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	out, err := f.orch.SubmitAnswer(ctx, f.user, v.ID, 1, "photosynthesis")
	require.NoError(t, err)
	assert.True(t, out.Result.Correct)
}

func TestSessionOrchestrator_InvalidTransitionsHaveNoEffect(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)

	_, err := f.orch.SubmitAnswer(ctx, f.user, v.ID, 0, "beta")
	assert.ErrorIs(t, err, errs.ErrStateConflict)
	_, err = f.orch.GetTestQuestions(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	v = f.toTesting(t, v.ID, 2, 5)
	_, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)
	_, err = f.orch.GetExplanation(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	_, err = f.orch.SubmitAnswer(ctx, f.user, v.ID, 9, "beta")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.orch.SubmitAnswer(ctx, f.user, v.ID, 0, "  ")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	after, err := f.orch.GetSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Version, after.Version)
	assert.Equal(t, v.Position, after.Position)

	p, err := f.progress.GetBySessionAndTopic(testutil.Ctx(), v.ID, f.topics[0].ID)
	require.NoError(t, err)
	attempts, err := p.Attempts()
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestSessionOrchestrator_BusySessionIsRejected(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)

	release, err := f.locker.Acquire(ctx, "session:"+v.ID.String(), time.Minute)
	require.NoError(t, err)

	_, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	assert.ErrorIs(t, err, errs.ErrStateConflict)

	require.NoError(t, release(ctx))
	_, err = f.orch.ConfirmUnderstanding(ctx, f.user, v.ID)
	assert.NoError(t, err)
}

func TestSessionOrchestrator_ConcurrentAnswersAreSerialized(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	v := f.start(t)
	v = f.toTesting(t, v.ID, 2, 5)

	var mu sync.Mutex
	accepted := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.SubmitAnswer(ctx, f.user, v.ID, 1, "respiration")
			switch {
			case err == nil:
				mu.Lock()
				accepted++
				mu.Unlock()
			case errors.Is(err, errs.ErrStateConflict):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.GreaterOrEqual(t, accepted, 1)

	p, err := f.progress.GetBySessionAndTopic(testutil.Ctx(), v.ID, f.topics[0].ID)
	require.NoError(t, err)
	attempts, err := p.Attempts()
	require.NoError(t, err)
	assert.Equal(t, accepted, attempts[1].Attempts)

	after, err := f.orch.GetSession(ctx, f.user, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Version+int64(accepted), after.Version)
}
