package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	quotarepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/quota"
	"github.com/yungbote/neurobridge-tutor/internal/domain/quota"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// Reservation is the handle returned by Reserve. It is durable: the row in
// quota_reservation outlives the process that created it.
type Reservation struct {
	ID        uuid.UUID    `json:"id"`
	AccountID uuid.UUID    `json:"account_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Bucket    quota.Bucket `json:"bucket"`
	Amount    int          `json:"amount"`
	Cycle     int64        `json:"cycle"`
	Kind      string       `json:"kind"`
}

type BucketStatus struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type LedgerConfig struct {
	// DefaultLimits seeds accounts on first touch.
	DefaultLimits map[quota.Bucket]int
	// CallTimeout bounds the guarded external call in Guard.
	CallTimeout time.Duration
}

type QuotaLedger interface {
	Reserve(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, amount int, kind string) (*Reservation, error)
	Commit(ctx context.Context, reservationID uuid.UUID, metadata map[string]any) error
	Refund(ctx context.Context, reservationID uuid.UUID, cause string) error
	Reset(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error)
	Status(ctx context.Context, userID uuid.UUID) (map[quota.Bucket]BucketStatus, error)
	Guard(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, kind string, fn func(ctx context.Context) error) error
	Adjust(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, delta int, note string) (*quota.QuotaAccount, error)
	SetLimit(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, limit int, note string) (*quota.QuotaAccount, error)
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

type quotaLedger struct {
	db           *gorm.DB
	log          *logger.Logger
	accounts     quotarepo.AccountRepo
	reservations quotarepo.ReservationRepo
	entries      quotarepo.LogEntryRepo
	cfg          LedgerConfig
	now          func() time.Time
}

func NewQuotaLedger(
	db *gorm.DB,
	baseLog *logger.Logger,
	accounts quotarepo.AccountRepo,
	reservations quotarepo.ReservationRepo,
	entries quotarepo.LogEntryRepo,
	cfg LedgerConfig,
) QuotaLedger {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.DefaultLimits == nil {
		cfg.DefaultLimits = map[quota.Bucket]int{}
	}
	return &quotaLedger{
		db:           db,
		log:          baseLog.With("service", "QuotaLedger"),
		accounts:     accounts,
		reservations: reservations,
		entries:      entries,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the ledger's time source. Only tests and the reset CLI use it.
func WithClock(l QuotaLedger, now func() time.Time) QuotaLedger {
	if ql, ok := l.(*quotaLedger); ok && now != nil {
		cp := *ql
		cp.now = func() time.Time { return now().UTC() }
		return &cp
	}
	return l
}

func (l *quotaLedger) tx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx, Tx: tx})
	})
}

// account returns the (user, bucket) row, creating it with the default limit,
// and rolls it into a new cycle first if its boundary has already passed.
func (l *quotaLedger) account(ctx context.Context, userID uuid.UUID, bucket quota.Bucket) (*quota.QuotaAccount, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user id required", errs.ErrInvalidArgument)
	}
	if !bucket.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", errs.ErrInvalidArgument, bucket)
	}
	limit := l.cfg.DefaultLimits[bucket]
	if limit <= 0 {
		return nil, fmt.Errorf("%w: no limit configured for bucket %q", errs.ErrInvalidArgument, bucket)
	}
	dbc := dbctx.Context{Ctx: ctx}
	now := l.now()
	if err := l.accounts.Ensure(dbc, userID, bucket, limit, quota.InitialResetAt(now)); err != nil {
		return nil, errs.Store(err)
	}
	acct, err := l.accounts.GetByUserAndBucket(dbc, userID, bucket)
	if err != nil {
		return nil, errs.Store(err)
	}
	if acct == nil {
		return nil, errs.NotFound("quota account")
	}
	if !acct.ResetAt.After(now) {
		if _, err := l.Reset(ctx, acct.ID, now); err != nil {
			return nil, err
		}
		if acct, err = l.accounts.GetByID(dbc, acct.ID); err != nil {
			return nil, errs.Store(err)
		}
	}
	return acct, nil
}

func (l *quotaLedger) Reserve(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, amount int, kind string) (*Reservation, error) {
	ctx, span := observability.StartSpan(ctx, "quota.reserve",
		attribute.String("quota.bucket", string(bucket)),
		attribute.Int("quota.amount", amount),
	)
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if amount <= 0 {
		err = fmt.Errorf("%w: amount must be positive", errs.ErrInvalidArgument)
		return nil, err
	}
	acct, err := l.account(ctx, userID, bucket)
	if err != nil {
		return nil, err
	}

	var out *Reservation
	err = l.tx(ctx, func(dbc dbctx.Context) error {
		now := l.now()
		ok, err := l.accounts.IncrementWithinLimit(dbc, acct.ID, amount, now)
		if err != nil {
			return errs.Store(err)
		}
		current, err := l.accounts.GetByID(dbc, acct.ID)
		if err != nil {
			return errs.Store(err)
		}
		if current == nil {
			return errs.NotFound("quota account")
		}
		if !ok {
			return &errs.QuotaExceededError{
				Bucket:  string(bucket),
				Used:    current.Used,
				Limit:   current.Limit,
				ResetAt: current.ResetAt,
			}
		}
		row := &quota.QuotaReservation{
			ID:        uuid.New(),
			AccountID: current.ID,
			UserID:    userID,
			Bucket:    bucket,
			Amount:    amount,
			Cycle:     current.Cycle,
			Kind:      kind,
			Status:    quota.ReservationPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := l.reservations.Create(dbc, row); err != nil {
			return errs.Store(err)
		}
		out = &Reservation{
			ID:        row.ID,
			AccountID: row.AccountID,
			UserID:    userID,
			Bucket:    bucket,
			Amount:    amount,
			Cycle:     row.Cycle,
			Kind:      kind,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrQuotaExceeded) {
			l.log.Info("Quota reservation denied", "user_id", userID, "bucket", bucket, "kind", kind)
		}
		return nil, err
	}
	return out, nil
}

// Commit finalizes a pending reservation. A second commit, or a commit after
// refund, changes nothing.
func (l *quotaLedger) Commit(ctx context.Context, reservationID uuid.UUID, metadata map[string]any) error {
	ctx, span := observability.StartSpan(ctx, "quota.commit")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	err = l.tx(ctx, func(dbc dbctx.Context) error {
		res, err := l.reservations.GetByID(dbc, reservationID)
		if err != nil {
			return errs.Store(err)
		}
		if res == nil {
			return errs.NotFound("reservation")
		}
		settled, err := l.reservations.Settle(dbc, res.ID, quota.ReservationCommitted, l.now())
		if err != nil {
			return errs.Store(err)
		}
		if !settled {
			return nil
		}
		meta := map[string]any{"kind": res.Kind, "bucket": string(res.Bucket), "cycle": res.Cycle}
		for k, v := range metadata {
			meta[k] = v
		}
		if _, err := l.entries.Append(dbc, res.AccountID, &res.ID, res.Amount, quota.ReasonConsume, meta); err != nil {
			return errs.Store(err)
		}
		return nil
	})
	return err
}

// Refund returns a pending reservation's units. If the account has since rolled
// into a new cycle the counter is left alone, since the reset already cleared it.
func (l *quotaLedger) Refund(ctx context.Context, reservationID uuid.UUID, cause string) error {
	ctx, span := observability.StartSpan(ctx, "quota.refund", attribute.String("quota.cause", cause))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	err = l.tx(ctx, func(dbc dbctx.Context) error {
		res, err := l.reservations.GetByID(dbc, reservationID)
		if err != nil {
			return errs.Store(err)
		}
		if res == nil {
			return errs.NotFound("reservation")
		}
		now := l.now()
		settled, err := l.reservations.Settle(dbc, res.ID, quota.ReservationRefunded, now)
		if err != nil {
			return errs.Store(err)
		}
		if !settled {
			return nil
		}
		restored, err := l.accounts.DecrementInCycle(dbc, res.AccountID, res.Cycle, res.Amount, now)
		if err != nil {
			return errs.Store(err)
		}
		delta := 0
		if restored {
			delta = -res.Amount
		}
		meta := map[string]any{
			"kind":     res.Kind,
			"bucket":   string(res.Bucket),
			"cause":    cause,
			"cycle":    res.Cycle,
			"restored": restored,
		}
		if _, err := l.entries.Append(dbc, res.AccountID, &res.ID, delta, quota.ReasonRefund, meta); err != nil {
			return errs.Store(err)
		}
		return nil
	})
	return err
}

const resetCASAttempts = 5

// Reset rolls an account whose boundary has passed into its next cycle. It
// returns false without writing anything when the account is not yet due,
// which makes repeated runs harmless.
func (l *quotaLedger) Reset(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "quota.reset")
	var err error
	defer func() { observability.EndSpan(span, err) }()

	now = now.UTC()
	for attempt := 0; attempt < resetCASAttempts; attempt++ {
		var (
			done    bool
			settled bool
		)
		err = l.tx(ctx, func(dbc dbctx.Context) error {
			acct, err := l.accounts.GetByID(dbc, accountID)
			if err != nil {
				return errs.Store(err)
			}
			if acct == nil {
				return errs.NotFound("quota account")
			}
			if acct.ResetAt.After(now) {
				settled = true
				return nil
			}
			next := quota.NextResetAfter(acct.ResetAt, now)
			ok, err := l.accounts.ResetIfUnchanged(dbc, acct, next, now)
			if err != nil {
				return errs.Store(err)
			}
			if !ok {
				// used or cycle moved under us; re-read and try again
				return nil
			}
			meta := map[string]any{
				"previous_used":     acct.Used,
				"previous_reset_at": acct.ResetAt.UTC().Format(time.RFC3339),
				"next_reset_at":     next.Format(time.RFC3339),
				"cycle":             acct.Cycle + 1,
			}
			if _, err := l.entries.Append(dbc, acct.ID, nil, -acct.Used, quota.ReasonSystemReset, meta); err != nil {
				return errs.Store(err)
			}
			done = true
			settled = true
			return nil
		})
		if err != nil {
			return false, err
		}
		if settled {
			if done {
				l.log.Debug("Quota account reset", "account_id", accountID)
			}
			return done, nil
		}
	}
	err = errs.Conflict("quota account %s kept changing during reset", accountID)
	return false, err
}

func (l *quotaLedger) Status(ctx context.Context, userID uuid.UUID) (map[quota.Bucket]BucketStatus, error) {
	out := make(map[quota.Bucket]BucketStatus, len(quota.Buckets))
	for _, b := range quota.Buckets {
		acct, err := l.account(ctx, userID, b)
		if err != nil {
			return nil, err
		}
		out[b] = BucketStatus{
			Used:      acct.Used,
			Limit:     acct.Limit,
			Remaining: acct.Remaining(),
			ResetAt:   acct.ResetAt.UTC(),
		}
	}
	return out, nil
}

// Guard reserves one unit, runs fn under the configured timeout, and commits
// on success or refunds on error, timeout or panic. Settlement runs on a
// context detached from ctx so a cancelled request still settles.
func (l *quotaLedger) Guard(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, kind string, fn func(ctx context.Context) error) (err error) {
	res, err := l.Reserve(ctx, userID, bucket, 1, kind)
	if err != nil {
		return err
	}
	settleCtx := context.WithoutCancel(ctx)

	defer func() {
		if p := recover(); p != nil {
			l.settle(settleCtx, res, "panic")
			panic(p)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()

	if ferr := fn(callCtx); ferr != nil {
		cause := "error"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			cause = "timeout"
			ferr = errs.Generation(fmt.Errorf("%s timed out: %w", kind, ferr))
		}
		l.settle(settleCtx, res, cause)
		return ferr
	}
	l.settle(settleCtx, res, "")
	return nil
}

// settle commits (cause == "") or refunds res with a few retries. A failure
// here leaves the reservation pending for ExpireStale.
func (l *quotaLedger) settle(ctx context.Context, res *Reservation, cause string) {
	op := func() error { return l.Commit(ctx, res.ID, nil) }
	if cause != "" {
		op = func() error { return l.Refund(ctx, res.ID, cause) }
	}
	err := retry.Do(op,
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		l.log.Error("Reservation settlement failed", "reservation_id", res.ID, "cause", cause, "error", err)
	}
}

func (l *quotaLedger) Adjust(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, delta int, note string) (*quota.QuotaAccount, error) {
	if delta == 0 {
		return nil, fmt.Errorf("%w: delta must be non-zero", errs.ErrInvalidArgument)
	}
	acct, err := l.account(ctx, userID, bucket)
	if err != nil {
		return nil, err
	}
	var out *quota.QuotaAccount
	err = l.tx(ctx, func(dbc dbctx.Context) error {
		ok, err := l.accounts.AdjustWithinBounds(dbc, acct.ID, delta, l.now())
		if err != nil {
			return errs.Store(err)
		}
		if !ok {
			return fmt.Errorf("%w: adjustment of %d leaves used outside [0, limit]", errs.ErrInvalidArgument, delta)
		}
		if _, err := l.entries.Append(dbc, acct.ID, nil, delta, quota.ReasonAdminAdjust, map[string]any{"note": note}); err != nil {
			return errs.Store(err)
		}
		out, err = l.accounts.GetByID(dbc, acct.ID)
		return errs.Store(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *quotaLedger) SetLimit(ctx context.Context, userID uuid.UUID, bucket quota.Bucket, limit int, note string) (*quota.QuotaAccount, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", errs.ErrInvalidArgument)
	}
	acct, err := l.account(ctx, userID, bucket)
	if err != nil {
		return nil, err
	}
	var out *quota.QuotaAccount
	err = l.tx(ctx, func(dbc dbctx.Context) error {
		ok, err := l.accounts.SetLimit(dbc, acct.ID, limit, l.now())
		if err != nil {
			return errs.Store(err)
		}
		if !ok {
			return fmt.Errorf("%w: limit %d is below current usage", errs.ErrInvalidArgument, limit)
		}
		meta := map[string]any{"note": note, "previous_limit": acct.Limit, "limit": limit}
		if _, err := l.entries.Append(dbc, acct.ID, nil, 0, quota.ReasonAdminAdjust, meta); err != nil {
			return errs.Store(err)
		}
		out, err = l.accounts.GetByID(dbc, acct.ID)
		return errs.Store(err)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStale refunds reservations left pending longer than olderThan, which
// only happens when a process died between Reserve and settlement.
func (l *quotaLedger) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := l.now().Add(-olderThan)
	expired := 0
	for {
		rows, err := l.reservations.ListPendingBefore(dbctx.Context{Ctx: ctx}, cutoff, 200)
		if err != nil {
			return expired, errs.Store(err)
		}
		if len(rows) == 0 {
			return expired, nil
		}
		for _, r := range rows {
			if err := l.Refund(ctx, r.ID, "expired"); err != nil {
				return expired, err
			}
			expired++
		}
		if len(rows) < 200 {
			return expired, nil
		}
	}
}
