package quota

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	domain "github.com/yungbote/neurobridge-tutor/internal/domain/quota"
)

var (
	march15 = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	april1  = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

func newAccount(t *testing.T, repo AccountRepo, limit int) *domain.QuotaAccount {
	t.Helper()
	userID := uuid.New()
	require.NoError(t, repo.Ensure(testutil.Ctx(), userID, domain.BucketAutoExplain, limit, april1))
	acct, err := repo.GetByUserAndBucket(testutil.Ctx(), userID, domain.BucketAutoExplain)
	require.NoError(t, err)
	require.NotNil(t, acct)
	return acct
}

func TestAccountRepo_EnsureIsIdempotent(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	acct := newAccount(t, repo, 3)

	require.NoError(t, repo.Ensure(testutil.Ctx(), acct.UserID, domain.BucketAutoExplain, 99, april1))
	rows, err := repo.ListByUser(testutil.Ctx(), acct.UserID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Limit)
}

func TestAccountRepo_IncrementStopsAtLimit(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	acct := newAccount(t, repo, 2)

	for i := 0; i < 2; i++ {
		ok, err := repo.IncrementWithinLimit(testutil.Ctx(), acct.ID, 1, march15)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := repo.IncrementWithinLimit(testutil.Ctx(), acct.ID, 1, march15)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(testutil.Ctx(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Used)
}

func TestAccountRepo_DecrementOnlyInSameCycle(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	acct := newAccount(t, repo, 5)

	ok, err := repo.IncrementWithinLimit(testutil.Ctx(), acct.ID, 1, march15)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.DecrementInCycle(testutil.Ctx(), acct.ID, acct.Cycle+1, 1, march15)
	require.NoError(t, err)
	assert.False(t, ok, "refund from another cycle is ignored")

	ok, err = repo.DecrementInCycle(testutil.Ctx(), acct.ID, acct.Cycle, 1, march15)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementInCycle(testutil.Ctx(), acct.ID, acct.Cycle, 1, march15)
	require.NoError(t, err)
	assert.False(t, ok, "used never goes negative")
}

func TestAccountRepo_AdjustWithinBounds(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	acct := newAccount(t, repo, 3)

	ok, err := repo.AdjustWithinBounds(testutil.Ctx(), acct.ID, -1, march15)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.AdjustWithinBounds(testutil.Ctx(), acct.ID, 3, march15)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.AdjustWithinBounds(testutil.Ctx(), acct.ID, 1, march15)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAccountRepo_ResetIfUnchanged(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	acct := newAccount(t, repo, 5)
	ok, err := repo.IncrementWithinLimit(testutil.Ctx(), acct.ID, 2, march15)
	require.NoError(t, err)
	require.True(t, ok)

	observed, err := repo.GetByID(testutil.Ctx(), acct.ID)
	require.NoError(t, err)
	may1 := domain.NextResetAt(april1)

	ok, err = repo.ResetIfUnchanged(testutil.Ctx(), observed, may1, march15)
	require.NoError(t, err)
	assert.False(t, ok, "boundary not reached yet")

	ok, err = repo.ResetIfUnchanged(testutil.Ctx(), observed, may1, april1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ResetIfUnchanged(testutil.Ctx(), observed, may1, april1)
	require.NoError(t, err)
	assert.False(t, ok, "a second reset with the stale snapshot does nothing")

	got, err := repo.GetByID(testutil.Ctx(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Used)
	assert.Equal(t, acct.Cycle+1, got.Cycle)
	assert.True(t, got.ResetAt.Equal(may1))
}

func TestAccountRepo_ListDuePagesByID(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	for i := 0; i < 5; i++ {
		newAccount(t, repo, 1)
	}

	due, err := repo.ListDue(testutil.Ctx(), march15, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	var seen []uuid.UUID
	after := uuid.Nil
	for {
		page, err := repo.ListDue(testutil.Ctx(), april1, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, a := range page {
			seen = append(seen, a.ID)
		}
		after = page[len(page)-1].ID
	}
	assert.Len(t, seen, 5)
}

func TestAccountRepo_SetLimitNeverDropsBelowUsed(t *testing.T) {
	repo := NewAccountRepo(testutil.DB(t), testutil.Logger(t))
	acct := newAccount(t, repo, 5)
	ok, err := repo.IncrementWithinLimit(testutil.Ctx(), acct.ID, 4, march15)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.SetLimit(testutil.Ctx(), acct.ID, 3, march15)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.SetLimit(testutil.Ctx(), acct.ID, 4, march15)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(testutil.Ctx(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Limit)
	assert.Equal(t, 4, got.Used)
}
