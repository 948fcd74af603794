package quotareset

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// Scheduler runs the reset on a fixed interval. Singleton mode skips a tick
// while the previous run is still going.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    *Runner
	log       *logger.Logger
	interval  time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewScheduler(baseLog *logger.Logger, runner *Runner, interval, timeout time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		runner:    runner,
		log:       baseLog.With("component", "QuotaResetScheduler"),
		interval:  interval,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules the job and returns immediately. The first run fires right away.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		runCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if _, err := s.runner.RunReset(runCtx, s.now()); err != nil {
			s.log.Error("Scheduled quota reset failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.log.Info("Quota reset scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
