package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/ratelimit"
	"github.com/7p-education/platform/internal/repositories"
	"github.com/7p-education/platform/internal/validator"
)

const (
	defaultMFAIssuer      = "7P Education"
	defaultMFAMaxAttempts = 5
	defaultMFALockout     = 15 * time.Minute
)

type mfaService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	box      *auth.SecretBox
	sessions *auth.Sessions
	limiter  ratelimit.Limiter
	cfg      config.MFAConfig
	now      func() time.Time
}

func NewMFAService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, box *auth.SecretBox,
	sessions *auth.Sessions, limiter ratelimit.Limiter, cfg config.MFAConfig) MFAService {
	if cfg.Issuer == "" {
		cfg.Issuer = defaultMFAIssuer
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMFAMaxAttempts
	}
	if cfg.LockoutWindow <= 0 {
		cfg.LockoutWindow = defaultMFALockout
	}
	return &mfaService{
		repo:     repo,
		db:       db,
		logger:   logger,
		box:      box,
		sessions: sessions,
		limiter:  limiter,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ===== ENROLMENT =====

func (s *mfaService) Setup(ctx context.Context, userID string) (*MFASetupResponse, error) {
	s.logger.Info("Setting up MFA", "user_id", userID)

	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.MFA().GetSecret(ctx, s.db, userID)
	if err != nil && !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get MFA secret: %w", err)
	}
	if existing != nil && existing.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	key, err := auth.GenerateTOTP(s.cfg.Issuer, user.Email)
	if err != nil {
		return nil, err
	}
	sealed, err := s.box.Seal(key.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt MFA secret: %w", err)
	}
	codes, hashes, err := auth.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = withTx(ctx, s.db, func(tx *gorm.DB) error {
		secret := &models.UserMFASecret{UserID: userID, EncryptedSecret: sealed}
		if err := s.repo.MFA().SaveSecret(ctx, tx, secret); err != nil {
			return fmt.Errorf("failed to save MFA secret: %w", err)
		}
		if err := s.repo.MFA().ReplaceBackupCodes(ctx, tx, userID, hashes); err != nil {
			return fmt.Errorf("failed to save backup codes: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &MFASetupResponse{Secret: key.Secret, OTPAuthURL: key.URL, BackupCodes: codes}, nil
}

func (s *mfaService) VerifySetup(ctx context.Context, userID, code string) error {
	s.logger.Info("Verifying MFA setup", "user_id", userID)

	secret, err := s.repo.MFA().GetSecret(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrMFASetupMissing
		}
		return fmt.Errorf("failed to get MFA secret: %w", err)
	}
	if secret.Enabled {
		return ErrMFAAlreadyEnabled
	}
	if err := s.checkLockout(ctx, userID); err != nil {
		return err
	}

	plain, err := s.box.Open(secret.EncryptedSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt MFA secret: %w", err)
	}
	now := s.now()
	step, ok := auth.MatchTOTP(plain, validator.NormalizeCode(code), now)
	if !ok {
		s.recordFailure(ctx, userID)
		return ErrInvalidMFACode
	}

	secret.Enabled = true
	secret.VerifiedAt = &now
	secret.LastUsedAt = &now
	secret.LastUsedStep = step
	if err := s.repo.MFA().SaveSecret(ctx, s.db, secret); err != nil {
		return fmt.Errorf("failed to enable MFA: %w", err)
	}

	s.logger.Info("MFA enabled successfully", "user_id", userID)
	return nil
}

// ===== VERIFICATION =====

func (s *mfaService) Verify(ctx context.Context, userID, code string) error {
	secret, err := s.enabledSecret(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.checkLockout(ctx, userID); err != nil {
		return err
	}
	err = s.checkCode(ctx, secret, code)
	if errors.Is(err, ErrInvalidMFACode) {
		s.recordFailure(ctx, userID)
	}
	return err
}

func (s *mfaService) Disable(ctx context.Context, userID, code string) error {
	s.logger.Info("Disabling MFA", "user_id", userID)

	if err := s.Verify(ctx, userID, code); err != nil {
		return err
	}
	return withTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.repo.MFA().DeleteSecret(ctx, tx, userID); err != nil {
			return fmt.Errorf("failed to delete MFA secret: %w", err)
		}
		if err := s.repo.MFA().ReplaceBackupCodes(ctx, tx, userID, nil); err != nil {
			return fmt.Errorf("failed to delete backup codes: %w", err)
		}
		return nil
	})
}

func (s *mfaService) RegenerateBackupCodes(ctx context.Context, userID, code string) (*BackupCodesResponse, error) {
	s.logger.Info("Regenerating backup codes", "user_id", userID)

	if err := s.Verify(ctx, userID, code); err != nil {
		return nil, err
	}
	codes, hashes, err := auth.GenerateBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := s.repo.MFA().ReplaceBackupCodes(ctx, s.db, userID, hashes); err != nil {
		return nil, fmt.Errorf("failed to save backup codes: %w", err)
	}
	return &BackupCodesResponse{BackupCodes: codes}, nil
}

func (s *mfaService) Status(ctx context.Context, userID string) (*MFAStatusResponse, error) {
	secret, err := s.repo.MFA().GetSecret(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return &MFAStatusResponse{}, nil
		}
		return nil, fmt.Errorf("failed to get MFA secret: %w", err)
	}
	if !secret.Enabled {
		return &MFAStatusResponse{}, nil
	}

	remaining, err := s.repo.MFA().CountUnusedBackupCodes(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return &MFAStatusResponse{
		Enabled:              true,
		VerifiedAt:           secret.VerifiedAt,
		RemainingBackupCodes: remaining,
	}, nil
}

func (s *mfaService) IsEnabled(ctx context.Context, userID string) (bool, error) {
	secret, err := s.repo.MFA().GetSecret(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get MFA secret: %w", err)
	}
	return secret.Enabled, nil
}

func (s *mfaService) CompleteLogin(ctx context.Context, challengeToken, code string) (*SessionResponse, error) {
	userID, err := s.sessions.ParseMFAChallenge(challengeToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidChallenge) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	if err := s.Verify(ctx, userID, code); err != nil {
		return nil, err
	}

	s.logger.Info("MFA login completed", "user_id", userID)
	return s.issueVerifiedSession(ctx, userID)
}

// StepUp verifies a code for an already signed-in user and returns a
// platform session carrying the MFA claim, so provider-token users can
// reach MFA-guarded routes.
func (s *mfaService) StepUp(ctx context.Context, userID, code string) (*SessionResponse, error) {
	if err := s.Verify(ctx, userID, code); err != nil {
		return nil, err
	}

	s.logger.Info("MFA step-up completed", "user_id", userID)
	return s.issueVerifiedSession(ctx, userID)
}

func (s *mfaService) issueVerifiedSession(ctx context.Context, userID string) (*SessionResponse, error) {
	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.sessions.Issue(user, true)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &SessionResponse{Token: token, ExpiresAt: expires, User: user}, nil
}

// ===== HELPERS =====

func (s *mfaService) enabledSecret(ctx context.Context, userID string) (*models.UserMFASecret, error) {
	secret, err := s.repo.MFA().GetSecret(ctx, s.db, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrMFANotEnabled
		}
		return nil, fmt.Errorf("failed to get MFA secret: %w", err)
	}
	if !secret.Enabled {
		return nil, ErrMFANotEnabled
	}
	return secret, nil
}

// checkLockout rejects users who used up their failed attempts in the current window
func (s *mfaService) checkLockout(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.Peek(ctx, mfaAttemptKey(userID), s.cfg.MaxAttempts, s.cfg.LockoutWindow)
	if err != nil {
		s.logger.Warn("MFA attempt counter unavailable", "user_id", userID, "error", err)
		return nil
	}
	if !res.Allowed {
		s.logger.Warn("MFA attempts exhausted", "user_id", userID, "reset_at", res.ResetAt)
		return ErrTooManyAttempts
	}
	return nil
}

// recordFailure counts one wrong code against the user
func (s *mfaService) recordFailure(ctx context.Context, userID string) {
	if s.limiter == nil {
		return
	}
	res, err := s.limiter.Allow(ctx, mfaAttemptKey(userID), s.cfg.MaxAttempts, s.cfg.LockoutWindow)
	if err != nil {
		s.logger.Warn("MFA attempt counter unavailable", "user_id", userID, "error", err)
		return
	}
	if res.Remaining == 0 {
		s.logger.Warn("MFA locked out", "user_id", userID, "reset_at", res.ResetAt)
	}
}

func mfaAttemptKey(userID string) string {
	return "mfa:" + userID
}

// checkCode accepts a fresh TOTP code or consumes an unused backup code
func (s *mfaService) checkCode(ctx context.Context, secret *models.UserMFASecret, code string) error {
	code = validator.NormalizeCode(code)
	if code == "" {
		return ErrInvalidMFACode
	}

	plain, err := s.box.Open(secret.EncryptedSecret)
	if err != nil {
		return fmt.Errorf("failed to decrypt MFA secret: %w", err)
	}
	now := s.now()
	if step, ok := auth.MatchTOTP(plain, code, now); ok {
		if step <= secret.LastUsedStep {
			s.logger.Warn("Rejected replayed MFA code", "user_id", secret.UserID)
			return ErrInvalidMFACode
		}
		secret.LastUsedStep = step
		secret.LastUsedAt = &now
		if err := s.repo.MFA().SaveSecret(ctx, s.db, secret); err != nil {
			return fmt.Errorf("failed to record MFA use: %w", err)
		}
		return nil
	}

	backups, err := s.repo.MFA().ListUnusedBackupCodes(ctx, s.db, secret.UserID)
	if err != nil {
		return fmt.Errorf("failed to list backup codes: %w", err)
	}
	for _, b := range backups {
		if !auth.MatchBackupCode(b.CodeHash, code) {
			continue
		}
		if err := s.repo.MFA().MarkBackupCodeUsed(ctx, s.db, b.ID, now); err != nil {
			return fmt.Errorf("failed to consume backup code: %w", err)
		}
		s.logger.Info("Backup code used", "user_id", secret.UserID)
		return nil
	}
	return ErrInvalidMFACode
}
