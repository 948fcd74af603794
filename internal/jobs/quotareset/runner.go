// Package quotareset rolls quota accounts over into their next monthly cycle.
package quotareset

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	quotarepo "github.com/yungbote/neurobridge-tutor/internal/data/repos/quota"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	errs "github.com/yungbote/neurobridge-tutor/internal/pkg/errors"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services"
)

type Config struct {
	BatchSize   int
	Concurrency int
	MaxAttempts uint
	RetryDelay  time.Duration
	// StaleAfter is how old a pending reservation must be before the run refunds it.
	StaleAfter time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 15 * time.Minute
	}
	return c
}

// Report summarizes one run. Selected = Reset + Skipped + Failed.
type Report struct {
	Selected int           `json:"selected"`
	Reset    int           `json:"reset"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Expired  int           `json:"expired"`
	Duration time.Duration `json:"duration"`
}

type Runner struct {
	log      *logger.Logger
	ledger   services.QuotaLedger
	accounts quotarepo.AccountRepo
	cfg      Config
}

func NewRunner(baseLog *logger.Logger, ledger services.QuotaLedger, accounts quotarepo.AccountRepo, cfg Config) *Runner {
	return &Runner{
		log:      baseLog.With("component", "QuotaResetRunner"),
		ledger:   ledger,
		accounts: accounts,
		cfg:      cfg.withDefaults(),
	}
}

// RunReset resets every account whose cycle ended at or before now. A failing
// account is logged and counted; it never stops the rest of the run. Running
// twice for the same now resets nothing the second time.
func (r *Runner) RunReset(ctx context.Context, now time.Time) (*Report, error) {
	started := time.Now()
	now = now.UTC()
	ctx, span := observability.StartSpan(ctx, "quota.reset_run", attribute.String("now", now.Format(time.RFC3339)))
	report := &Report{}
	var runErr error
	defer func() {
		span.SetAttributes(
			attribute.Int("reset.selected", report.Selected),
			attribute.Int("reset.reset", report.Reset),
			attribute.Int("reset.failed", report.Failed),
		)
		observability.EndSpan(span, runErr)
	}()

	expired, err := r.ledger.ExpireStale(ctx, r.cfg.StaleAfter)
	report.Expired = expired
	if err != nil {
		// stale reservations get another chance next run
		r.log.Warn("Expiring stale reservations failed", "expired", expired, "error", err)
	}

	var mu sync.Mutex
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			return report, err
		}
		batch, err := r.accounts.ListDue(dbctx.Context{Ctx: ctx}, now, after, r.cfg.BatchSize)
		if err != nil {
			runErr = errs.Store(err)
			return report, runErr
		}
		if len(batch) == 0 {
			break
		}
		report.Selected += len(batch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.Concurrency)
		for _, acct := range batch {
			id := acct.ID
			g.Go(func() error {
				reset, err := r.resetOne(gctx, id, now)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err != nil:
					report.Failed++
					r.log.Error("Quota reset failed", "account_id", id, "error", err)
				case reset:
					report.Reset++
				default:
					report.Skipped++
				}
				return nil
			})
		}
		_ = g.Wait()

		after = batch[len(batch)-1].ID
		if len(batch) < r.cfg.BatchSize {
			break
		}
	}

	report.Duration = time.Since(started)
	r.log.Info("Quota reset run finished",
		"selected", report.Selected,
		"reset", report.Reset,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"expired", report.Expired,
		"duration", report.Duration,
	)
	return report, nil
}

// resetOne retries transient store failures; anything else fails the account immediately.
func (r *Runner) resetOne(ctx context.Context, accountID uuid.UUID, now time.Time) (bool, error) {
	var reset bool
	err := retry.Do(
		func() error {
			ok, err := r.ledger.Reset(ctx, accountID, now)
			if err != nil {
				if errs.Retryable(err) {
					return err
				}
				return retry.Unrecoverable(err)
			}
			reset = ok
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(r.cfg.MaxAttempts),
		retry.Delay(r.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	return reset, err
}
