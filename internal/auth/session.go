package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/7p-education/platform/internal/models"
)

const (
	SessionIssuer     = "7p-education"
	purposeMFA        = "mfa"
	mfaChallengeTTL   = 5 * time.Minute
	defaultSessionTTL = 24 * time.Hour
)

var ErrInvalidChallenge = errors.New("invalid or expired MFA challenge")

type sessionClaims struct {
	Email       string          `json:"email,omitempty"`
	Name        string          `json:"name,omitempty"`
	Role        models.UserRole `json:"role,omitempty"`
	MFAVerified bool            `json:"mfa_verified"`
	Purpose     string          `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Sessions signs and verifies platform tokens issued after SSO and MFA
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a session token for user
func (s *Sessions) Issue(user *models.User, mfaVerified bool) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := sessionClaims{
		Email:       user.Email,
		Name:        user.FullName,
		Role:        user.Role,
		MFAVerified: mfaVerified,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    SessionIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := s.sign(claims)
	return token, expires, err
}

// IssueMFAChallenge returns a short-lived token that only CompleteLogin accepts
func (s *Sessions) IssueMFAChallenge(userID string) (string, error) {
	now := s.now()
	return s.sign(sessionClaims{
		Purpose: purposeMFA,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    SessionIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(mfaChallengeTTL)),
		},
	})
}

// ParseMFAChallenge returns the user id of a valid challenge token
func (s *Sessions) ParseMFAChallenge(token string) (string, error) {
	claims, err := s.parse(token)
	if err != nil || claims.Purpose != purposeMFA {
		return "", ErrInvalidChallenge
	}
	return claims.Subject, nil
}

// Verify implements TokenVerifier for session tokens
func (s *Sessions) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserID:      claims.Subject,
		Email:       claims.Email,
		FullName:    claims.Name,
		Role:        claims.Role,
		Provider:    "session",
		MFAVerified: claims.MFAVerified,
	}, nil
}

func (s *Sessions) sign(claims sessionClaims) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("session secret is not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Sessions) parse(token string) (*sessionClaims, error) {
	if len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != SessionIssuer || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
