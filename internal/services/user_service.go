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
	"github.com/7p-education/platform/internal/validator"
)

type userService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewUserService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) UserService {
	return &userService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

func (s *userService) SyncIdentity(ctx context.Context, identity *auth.Identity) (*models.User, error) {
	if identity == nil || identity.UserID == "" {
		return nil, ErrUnauthenticated
	}

	user, err := s.repo.User().GetByID(ctx, s.db, identity.UserID)
	if err == nil {
		return s.refreshProfile(ctx, user, identity)
	}
	if !repositories.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email != "" {
		existing, err := s.repo.User().GetByEmail(ctx, s.db, email)
		if err == nil {
			return s.refreshProfile(ctx, existing, identity)
		}
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to get user by email: %w", err)
		}
	}

	s.logger.Info("Creating user from identity", "user_id", identity.UserID, "provider", identity.Provider)

	role := identity.Role
	if !role.Valid() {
		role = models.RoleStudent
	}
	now := time.Now()
	user = &models.User{
		ID:          identity.UserID,
		Email:       email,
		FullName:    identity.FullName,
		Role:        role,
		LastLoginAt: &now,
	}
	if identity.AvatarURL != "" {
		avatar := identity.AvatarURL
		user.AvatarURL = &avatar
	}

	if err := s.repo.User().Create(ctx, s.db, user); err != nil {
		// Another request created the row first
		if repositories.IsDuplicateError(err) {
			return s.GetByID(ctx, identity.UserID)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// refreshProfile fills blank profile fields from the identity; role stays under platform control
func (s *userService) refreshProfile(ctx context.Context, user *models.User, identity *auth.Identity) (*models.User, error) {
	changed := false
	if user.FullName == "" && identity.FullName != "" {
		user.FullName = identity.FullName
		changed = true
	}
	if user.AvatarURL == nil && identity.AvatarURL != "" {
		avatar := identity.AvatarURL
		user.AvatarURL = &avatar
		changed = true
	}
	if !changed {
		return user, nil
	}
	if err := s.repo.User().Update(ctx, s.db, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, s.repo, s.db, id)
}

func (s *userService) List(ctx context.Context, params models.UserListParams) (*models.PaginatedResponse, error) {
	if err := s.validator.Validate(&params); err != nil {
		return nil, err
	}
	page, size := models.NormalizePage(params.Page, params.Size)

	filters := repositories.UserFilters{
		Query:  strings.TrimSpace(params.Search),
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if params.Role != "" {
		role := models.UserRole(params.Role)
		filters.Role = &role
	}

	users, total, err := s.repo.User().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return models.NewPaginatedResponse(users, total, page, size), nil
}

func (s *userService) UpdateRole(ctx context.Context, adminID, userID string, role models.UserRole) (*models.User, error) {
	s.logger.Info("Updating user role", "admin_id", adminID, "user_id", userID, "role", role)

	if !role.Valid() {
		return nil, NewValidationError("role", "must be one of [student instructor admin]", role)
	}
	if adminID == userID && role != models.RoleAdmin {
		return nil, NewBusinessRuleError("self_demotion", "admins cannot remove their own admin role", ErrConflict)
	}

	user, err := getUser(ctx, s.repo, s.db, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.User().UpdateRole(ctx, s.db, userID, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	user.Role = role

	s.logger.Info("User role updated", "user_id", userID, "role", role)
	return user, nil
}
