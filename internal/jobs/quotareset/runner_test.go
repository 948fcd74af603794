package quotareset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	quotarepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/quota"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

var (
	march15 = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	april1  = time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	now      time.Time
	ledger   services.QuotaLedger
	accounts quotarepo.AccountRepo
	entries  quotarepo.LogEntryRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testutil.DB(t)
	log := testutil.Logger(t)
	accounts := quotarepo.NewAccountRepo(gdb, log)
	entries := quotarepo.NewLogEntryRepo(gdb, log)
	ledger := services.NewQuotaLedger(gdb, log, accounts, quotarepo.NewReservationRepo(gdb, log), entries, services.LedgerConfig{
		DefaultLimits: map[quota.Bucket]int{quota.BucketLearningInteractions: 150, quota.BucketAutoExplain: 20},
	})
	f := &fixture{now: march15, accounts: accounts, entries: entries}
	f.ledger = services.WithClock(ledger, func() time.Time { return f.now })
	return f
}

// seedUsers creates both accounts for n users and consumes one unit on each learning account.
func (f *fixture) seedUsers(t *testing.T, n int) []uuid.UUID {
	t.Helper()
	users := make([]uuid.UUID, n)
	for i := range users {
		users[i] = uuid.New()
		_, err := f.ledger.Status(context.Background(), users[i])
		require.NoError(t, err)
		res, err := f.ledger.Reserve(context.Background(), users[i], quota.BucketLearningInteractions, 1, "seed")
		require.NoError(t, err)
		require.NoError(t, f.ledger.Commit(context.Background(), res.ID, nil))
	}
	return users
}

func TestRunner_ResetsDueAccountsAcrossBatches(t *testing.T) {
	f := newFixture(t)
	users := f.seedUsers(t, 7)
	runner := NewRunner(testutil.Logger(t), f.ledger, f.accounts, Config{BatchSize: 3, Concurrency: 4})

	report, err := runner.RunReset(context.Background(), april1)
	require.NoError(t, err)
	assert.Equal(t, 14, report.Selected)
	assert.Equal(t, 14, report.Reset)
	assert.Zero(t, report.Failed)

	for _, u := range users {
		acct, err := f.accounts.GetByUserAndBucket(testutil.Ctx(), u, quota.BucketLearningInteractions)
		require.NoError(t, err)
		assert.Zero(t, acct.Used)
		assert.True(t, acct.ResetAt.Equal(time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)))
		n, err := f.entries.CountByAccountAndReason(testutil.Ctx(), acct.ID, quota.ReasonSystemReset)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	}
}

func TestRunner_SecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t, 2)
	runner := NewRunner(testutil.Logger(t), f.ledger, f.accounts, Config{})

	_, err := runner.RunReset(context.Background(), april1)
	require.NoError(t, err)
	again, err := runner.RunReset(context.Background(), april1)
	require.NoError(t, err)
	assert.Zero(t, again.Selected)
	assert.Zero(t, again.Reset)
}

func TestRunner_NothingDueBeforeBoundary(t *testing.T) {
	f := newFixture(t)
	f.seedUsers(t, 2)
	runner := NewRunner(testutil.Logger(t), f.ledger, f.accounts, Config{})

	report, err := runner.RunReset(context.Background(), april1.Add(-time.Nanosecond))
	require.NoError(t, err)
	assert.Zero(t, report.Selected)
}

// flakyLedger fails Reset for chosen accounts, either always or for the first few calls.
type flakyLedger struct {
	services.QuotaLedger
	broken    map[uuid.UUID]error
	transient map[uuid.UUID]int
}

func (l *flakyLedger) Reset(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	if err, ok := l.broken[accountID]; ok {
		return false, err
	}
	if n := l.transient[accountID]; n > 0 {
		l.transient[accountID] = n - 1
		return false, errs.Store(errors.New("connection reset"))
	}
	return l.QuotaLedger.Reset(ctx, accountID, now)
}

func TestRunner_FailedAccountDoesNotStopTheRun(t *testing.T) {
	f := newFixture(t)
	users := f.seedUsers(t, 3)

	bad, err := f.accounts.GetByUserAndBucket(testutil.Ctx(), users[0], quota.BucketLearningInteractions)
	require.NoError(t, err)
	flaky, err := f.accounts.GetByUserAndBucket(testutil.Ctx(), users[1], quota.BucketLearningInteractions)
	require.NoError(t, err)

	ledger := &flakyLedger{
		QuotaLedger: f.ledger,
		broken:      map[uuid.UUID]error{bad.ID: errors.New("corrupt row")},
		transient:   map[uuid.UUID]int{flaky.ID: 1},
	}
	runner := NewRunner(testutil.Logger(t), ledger, f.accounts, Config{Concurrency: 1, RetryDelay: time.Millisecond})

	report, err := runner.RunReset(context.Background(), april1)
	require.NoError(t, err)
	assert.Equal(t, 6, report.Selected)
	assert.Equal(t, 5, report.Reset)
	assert.Equal(t, 1, report.Failed)

	after, err := f.accounts.GetByID(testutil.Ctx(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Used)
	after, err = f.accounts.GetByID(testutil.Ctx(), flaky.ID)
	require.NoError(t, err)
	assert.Zero(t, after.Used)
}

func TestRunner_ExpiresStaleReservations(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.Reserve(context.Background(), uuid.New(), quota.BucketAutoExplain, 1, "orphan")
	require.NoError(t, err)

	f.now = march15.Add(time.Hour)
	_, err = f.ledger.Reserve(context.Background(), uuid.New(), quota.BucketAutoExplain, 1, "in flight")
	require.NoError(t, err)

	runner := NewRunner(testutil.Logger(t), f.ledger, f.accounts, Config{StaleAfter: 30 * time.Minute})
	report, err := runner.RunReset(context.Background(), april1)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
}
