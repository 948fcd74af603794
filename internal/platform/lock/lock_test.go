package lock_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-tutor/internal/clients/redis"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/lock"
)

func TestLeaseLocker_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLeaseLocker(testutil.DB(t), testutil.Logger(t))

	release, err := locker.Acquire(ctx, "session:a", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "session:a", time.Minute)
	assert.ErrorIs(t, err, lock.ErrBusy)

	other, err := locker.Acquire(ctx, "session:b", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	again, err := locker.Acquire(ctx, "session:a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestLeaseLocker_ExpiredLeaseIsTakenOver(t *testing.T) {
	ctx := context.Background()
	locker := lock.NewLeaseLocker(testutil.DB(t), testutil.Logger(t))

	stale, err := locker.Acquire(ctx, "session:a", -time.Second)
	require.NoError(t, err)

	fresh, err := locker.Acquire(ctx, "session:a", time.Minute)
	require.NoError(t, err)

	// The old holder's release must not free the new holder's lease.
	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, "session:a", time.Minute)
	assert.ErrorIs(t, err, lock.ErrBusy)

	require.NoError(t, fresh(ctx))
}

func TestLeaseLocker_RequiresKey(t *testing.T) {
	locker := lock.NewLeaseLocker(testutil.DB(t), testutil.Logger(t))
	_, err := locker.Acquire(context.Background(), "", time.Minute)
	assert.Error(t, err)
}

func TestNoop_NeverContends(t *testing.T) {
	ctx := context.Background()
	var locker lock.Locker = lock.Noop{}
	r1, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	r2, err := locker.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.NoError(t, r1(ctx))
	assert.NoError(t, r2(ctx))
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	log := testutil.Logger(t)
	rdb, err := redis.NewClient(ctx, addr, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	prefix := "test:lease:" + t.Name() + ":"
	locker := lock.NewRedisLocker(rdb, prefix, log)

	release, err := locker.Acquire(ctx, "session:a", time.Minute)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "session:a", time.Minute)
	assert.ErrorIs(t, err, lock.ErrBusy)
	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, "session:a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}
