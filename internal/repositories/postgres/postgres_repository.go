package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/cache"
	"github.com/7p-education/platform/internal/repositories"
)

// PostgreSQLRepository implements repositories.Repository on gorm
type PostgreSQLRepository struct {
	db           *gorm.DB
	redisClient  *redis.Client
	cacheManager *cache.CacheManager

	user         repositories.UserRepository
	course       repositories.CourseRepository
	module       repositories.ModuleRepository
	lesson       repositories.LessonRepository
	review       repositories.ReviewRepository
	enrollment   repositories.EnrollmentRepository
	progress     repositories.ProgressRepository
	certificate  repositories.CertificateRepository
	quiz         repositories.QuizRepository
	quizAttempt  repositories.QuizAttemptRepository
	payment      repositories.PaymentRepository
	subscription repositories.SubscriptionRepository
	mfa          repositories.MFARepository
	dashboard    repositories.DashboardRepository
}

type RepositoryConfig struct {
	DB          *gorm.DB
	RedisClient *redis.Client
}

func NewPostgreSQLRepository(config RepositoryConfig) repositories.Repository {
	return newRepository(config.DB, config.RedisClient, cache.NewCacheManager(config.RedisClient))
}

func newRepository(db *gorm.DB, redisClient *redis.Client, cm *cache.CacheManager) *PostgreSQLRepository {
	return &PostgreSQLRepository{
		db:           db,
		redisClient:  redisClient,
		cacheManager: cm,
		user:         NewUserPostgreSQL(db, cm),
		course:       NewCoursePostgreSQL(db, cm),
		module:       NewModulePostgreSQL(db, cm),
		lesson:       NewLessonPostgreSQL(db, cm),
		review:       NewReviewPostgreSQL(db),
		enrollment:   NewEnrollmentPostgreSQL(db),
		progress:     NewProgressPostgreSQL(db),
		certificate:  NewCertificatePostgreSQL(db),
		quiz:         NewQuizPostgreSQL(db),
		quizAttempt:  NewQuizAttemptPostgreSQL(db),
		payment:      NewPaymentPostgreSQL(db),
		subscription: NewSubscriptionPostgreSQL(db),
		mfa:          NewMFAPostgreSQL(db),
		dashboard:    NewDashboardRepository(db),
	}
}

func (r *PostgreSQLRepository) User() repositories.UserRepository                 { return r.user }
func (r *PostgreSQLRepository) Course() repositories.CourseRepository             { return r.course }
func (r *PostgreSQLRepository) Module() repositories.ModuleRepository             { return r.module }
func (r *PostgreSQLRepository) Lesson() repositories.LessonRepository             { return r.lesson }
func (r *PostgreSQLRepository) Review() repositories.ReviewRepository             { return r.review }
func (r *PostgreSQLRepository) Enrollment() repositories.EnrollmentRepository     { return r.enrollment }
func (r *PostgreSQLRepository) Progress() repositories.ProgressRepository         { return r.progress }
func (r *PostgreSQLRepository) Certificate() repositories.CertificateRepository   { return r.certificate }
func (r *PostgreSQLRepository) Quiz() repositories.QuizRepository                 { return r.quiz }
func (r *PostgreSQLRepository) QuizAttempt() repositories.QuizAttemptRepository   { return r.quizAttempt }
func (r *PostgreSQLRepository) Payment() repositories.PaymentRepository           { return r.payment }
func (r *PostgreSQLRepository) Subscription() repositories.SubscriptionRepository { return r.subscription }
func (r *PostgreSQLRepository) MFA() repositories.MFARepository                   { return r.mfa }
func (r *PostgreSQLRepository) Dashboard() repositories.DashboardRepository       { return r.dashboard }

// WithTransaction runs fn against a repository bound to one database transaction
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(newRepository(tx, r.redisClient, r.cacheManager))
	})
}

// Ping checks database and cache connectivity
func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if r.redisClient != nil {
		if err := r.cacheManager.HealthCheck(ctx); err != nil {
			return fmt.Errorf("cache ping failed: %w", err)
		}
	}
	return nil
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close Redis: %w", err)
		}
	}
	return nil
}

// RepositoryManager implements repositories.RepositoryManager
type RepositoryManager struct {
	config RepositoryConfig
	repo   repositories.Repository
}

func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	return &RepositoryManager{config: config}
}

// Initialize verifies connectivity and builds the repository
func (rm *RepositoryManager) Initialize() error {
	if rm.config.DB == nil {
		return fmt.Errorf("database connection is required")
	}

	sqlDB, err := rm.config.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	// Redis is optional: without it the cache and limiters degrade to no-op and in-memory
	if rm.config.RedisClient != nil {
		if err := rm.config.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
	}

	rm.repo = NewPostgreSQLRepository(rm.config)
	return nil
}

func (rm *RepositoryManager) GetRepository() repositories.Repository {
	return rm.repo
}

func (rm *RepositoryManager) HealthCheck(ctx context.Context) error {
	if rm.repo == nil {
		return fmt.Errorf("repository not initialized")
	}
	return rm.repo.Ping(ctx)
}

func (rm *RepositoryManager) Shutdown(ctx context.Context) error {
	if rm.repo == nil {
		return nil
	}
	return rm.repo.Close()
}
