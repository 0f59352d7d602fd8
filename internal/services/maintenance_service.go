package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/repositories"
)

// StalePaymentAge is how long a checkout may stay pending before it is failed
const StalePaymentAge = 24 * time.Hour

type maintenanceService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewMaintenanceService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) MaintenanceService {
	return &maintenanceService{repo: repo, db: db, logger: logger, now: time.Now}
}

// ExpireEnrollments expires overdue enrollments and takes them out of each
// course's enrollment_count in the same transaction.
func (s *maintenanceService) ExpireEnrollments(ctx context.Context) (int64, error) {
	var n int64
	var courseIDs []string
	err := withTx(ctx, s.db, func(tx *gorm.DB) error {
		perCourse, err := s.repo.Enrollment().ExpireOverdue(ctx, tx, s.now())
		if err != nil {
			return err
		}

		courseIDs = make([]string, 0, len(perCourse))
		for id := range perCourse {
			courseIDs = append(courseIDs, id)
		}
		sort.Strings(courseIDs)
		for _, id := range courseIDs {
			if err := s.repo.Course().IncrementEnrollmentCount(ctx, tx, id, -int(perCourse[id])); err != nil {
				return fmt.Errorf("failed to update enrollment count: %w", err)
			}
			n += perCourse[id]
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to expire enrollments: %w", err)
	}
	for _, id := range courseIDs {
		s.repo.Course().InvalidateCache(ctx, id)
	}
	if n > 0 {
		s.logger.Info("Enrollments expired", "count", n)
	}
	return n, nil
}

func (s *maintenanceService) ExpireSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.repo.Subscription().ExpireOverdue(ctx, s.db, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	if n > 0 {
		s.logger.Info("Subscriptions expired", "count", n)
	}
	return n, nil
}

func (s *maintenanceService) FailStalePayments(ctx context.Context) (int64, error) {
	n, err := s.repo.Payment().FailStalePending(ctx, s.db, s.now().Add(-StalePaymentAge))
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale payments: %w", err)
	}
	if n > 0 {
		s.logger.Info("Stale payments failed", "count", n)
	}
	return n, nil
}
