package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/7p-education/platform/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization header missing")
)

// Identity is what a verified access token says about its bearer
type Identity struct {
	UserID      string
	Email       string
	FullName    string
	AvatarURL   string
	Role        models.UserRole
	Provider    string
	MFAVerified bool
}

// TokenVerifier validates a bearer token and returns its identity
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// ChainVerifier accepts a token when any of its verifiers does
type ChainVerifier struct {
	verifiers []TokenVerifier
}

func NewChainVerifier(verifiers ...TokenVerifier) *ChainVerifier {
	var vs []TokenVerifier
	for _, v := range verifiers {
		if v != nil {
			vs = append(vs, v)
		}
	}
	return &ChainVerifier{verifiers: vs}
}

func (c *ChainVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	for _, v := range c.verifiers {
		identity, err := v.Verify(ctx, token)
		if err == nil {
			return identity, nil
		}
	}
	return nil, ErrInvalidToken
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidToken
	}
	return strings.TrimSpace(parts[1]), nil
}

// MapRole maps provider role names onto platform roles
func MapRole(name string) models.UserRole {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "admin", "administrator", "super_admin":
		return models.RoleAdmin
	case "instructor", "tutor", "educator":
		return models.RoleInstructor
	default:
		return models.RoleStudent
	}
}
