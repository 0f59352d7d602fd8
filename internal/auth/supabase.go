package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

type supabaseClaims struct {
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	jwt.RegisteredClaims
}

// SupabaseVerifier checks HS256 access tokens signed with the project JWT secret
type SupabaseVerifier struct {
	secret []byte
}

func NewSupabaseVerifier(secret string) *SupabaseVerifier {
	return &SupabaseVerifier{secret: []byte(secret)}
}

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if len(v.secret) == 0 {
		return nil, ErrInvalidToken
	}

	var claims supabaseClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	identity := &Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Provider: "supabase",
		Role:     MapRole(stringClaim(claims.AppMetadata, "role")),
		FullName: stringClaim(claims.UserMetadata, "full_name"),
	}
	if identity.FullName == "" {
		identity.FullName = stringClaim(claims.UserMetadata, "name")
	}
	identity.AvatarURL = stringClaim(claims.UserMetadata, "avatar_url")
	return identity, nil
}

func stringClaim(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
