package auth

import (
	"context"
	"fmt"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/7p-education/platform/internal/config"
)

// CasdoorVerifier validates access tokens issued by a Casdoor application
type CasdoorVerifier struct {
	client *casdoorsdk.Client
}

func NewCasdoorVerifier(cfg config.CasdoorConfig) *CasdoorVerifier {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorVerifier{client: client}
}

func (v *CasdoorVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	claims, err := v.client.ParseJwtToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Id == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}

	role := MapRole(claims.User.Type)
	if claims.User.IsAdmin {
		role = MapRole("admin")
	}

	return &Identity{
		UserID:    claims.Id,
		Email:     claims.User.Email,
		FullName:  claims.User.DisplayName,
		AvatarURL: claims.User.Avatar,
		Role:      role,
		Provider:  "casdoor",
	}, nil
}
