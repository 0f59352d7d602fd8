package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/auth"
	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

// GoogleAuthenticator is the part of the Google OAuth provider the SSO flow needs
type GoogleAuthenticator interface {
	Configured() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

type ssoService struct {
	repo     repositories.Repository
	db       *gorm.DB
	logger   *slog.Logger
	google   GoogleAuthenticator
	sessions *auth.Sessions
	mfa      MFAService
	now      func() time.Time
}

func NewSSOService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, google GoogleAuthenticator,
	sessions *auth.Sessions, mfa MFAService) SSOService {
	return &ssoService{
		repo:     repo,
		db:       db,
		logger:   logger,
		google:   google,
		sessions: sessions,
		mfa:      mfa,
		now:      time.Now,
	}
}

func (s *ssoService) Configured() bool {
	return s.google != nil && s.google.Configured()
}

func (s *ssoService) AuthURL(state string) string {
	if !s.Configured() {
		return ""
	}
	return s.google.AuthURL(state)
}

func (s *ssoService) HandleCallback(ctx context.Context, code string) (*LoginResult, error) {
	if !s.Configured() {
		return nil, ErrSSONotConfigured
	}
	if strings.TrimSpace(code) == "" {
		return nil, NewValidationError("code", "authorization code is required", nil)
	}

	profile, err := s.google.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Google sign-in", "google_id", profile.ID, "email", profile.Email)

	user, err := s.upsertGoogleUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	if err := s.repo.User().TouchLogin(ctx, s.db, user.ID, s.now()); err != nil {
		s.logger.Warn("Failed to record login", "user_id", user.ID, "error", err)
	}

	enabled, err := s.mfa.IsEnabled(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if enabled {
		challenge, err := s.sessions.IssueMFAChallenge(user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to issue MFA challenge: %w", err)
		}
		return &LoginResult{MFARequired: true, MFAToken: challenge}, nil
	}

	token, expires, err := s.sessions.Issue(user, false)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &LoginResult{Session: &SessionResponse{Token: token, ExpiresAt: expires, User: user}}, nil
}

// upsertGoogleUser matches by google id first, then links an existing account by email
func (s *ssoService) upsertGoogleUser(ctx context.Context, profile *auth.GoogleUser) (*models.User, error) {
	user, err := s.repo.User().GetByGoogleID(ctx, s.db, profile.ID)
	if err == nil {
		return user, nil
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get user by google id: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	user, err = s.repo.User().GetByEmail(ctx, s.db, email)
	switch {
	case err == nil:
		user.GoogleID = &profile.ID
		if user.FullName == "" {
			user.FullName = profile.Name
		}
		if user.AvatarURL == nil && profile.Picture != "" {
			user.AvatarURL = &profile.Picture
		}
		if err := s.repo.User().Update(ctx, s.db, user); err != nil {
			return nil, fmt.Errorf("failed to link google account: %w", err)
		}
		s.logger.Info("Linked google account", "user_id", user.ID)
		return user, nil
	case !repositories.IsNotFoundError(err):
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	user = &models.User{
		Email:    email,
		FullName: profile.Name,
		Role:     models.RoleStudent,
		GoogleID: &profile.ID,
	}
	if profile.Picture != "" {
		user.AvatarURL = &profile.Picture
	}
	if profile.Locale != "" && len(profile.Locale) <= 10 {
		user.Locale = profile.Locale
	}
	if err := s.repo.User().Create(ctx, s.db, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User created from google sign-in", "user_id", user.ID)
	return user, nil
}
