package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Maintenance is the set of periodic jobs the platform runs
type Maintenance interface {
	ExpireEnrollments(ctx context.Context) (int64, error)
	ExpireSubscriptions(ctx context.Context) (int64, error)
	FailStalePayments(ctx context.Context) (int64, error)
}

// Sweeper drops stale in-memory state, e.g. rate limit windows
type Sweeper interface {
	Sweep() int
}

const jobTimeout = 2 * time.Minute

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		logger: logger,
	}
}

// Register adds the platform jobs; sweeper may be nil
func (s *Scheduler) Register(m Maintenance, sweeper Sweeper) error {
	jobs := []struct {
		spec string
		name string
		run  func(ctx context.Context) (int64, error)
	}{
		{"0 * * * *", "expire_enrollments", m.ExpireEnrollments},
		{"15 0 * * *", "expire_subscriptions", m.ExpireSubscriptions},
		{"*/30 * * * *", "fail_stale_payments", m.FailStalePayments},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	if sweeper != nil {
		if _, err := s.cron.AddFunc("*/5 * * * *", func() {
			if n := sweeper.Sweep(); n > 0 {
				s.logger.Debug("Rate limit windows swept", "removed", n)
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule rate limit sweep: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) wrap(name string, run func(ctx context.Context) (int64, error)) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		n, err := run(ctx)
		if err != nil {
			s.logger.Error("Scheduled job failed", "job", name, "error", err)
			return
		}
		s.logger.Info("Scheduled job finished", "job", name, "affected", n, "duration", time.Since(start))
	}
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", s.Entries())
}

// Stop waits for running jobs to finish or ctx to expire
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
