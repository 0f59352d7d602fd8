package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/7p-education/platform/internal/config"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var ErrEmailNotVerified = errors.New("google account email is not verified")

type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
}

// GoogleProvider runs the OAuth2 authorization code flow against Google
type GoogleProvider struct {
	oauth       *oauth2.Config
	http        *resty.Client
	userInfoURL string
}

func NewGoogleProvider(cfg config.GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		http:        resty.New().SetTimeout(10 * time.Second),
		userInfoURL: googleUserInfoURL,
	}
}

func (p *GoogleProvider) Configured() bool {
	return p.oauth.ClientID != "" && p.oauth.ClientSecret != ""
}

func (p *GoogleProvider) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for the verified Google profile
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", err)
	}
	return p.FetchUser(ctx, token.AccessToken)
}

func (p *GoogleProvider) FetchUser(ctx context.Context, accessToken string) (*GoogleUser, error) {
	var user GoogleUser
	resp, err := p.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("google userinfo request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode())
	}
	if user.ID == "" || user.Email == "" {
		return nil, errors.New("google userinfo response is incomplete")
	}
	if !user.VerifiedEmail {
		return nil, ErrEmailNotVerified
	}
	return &user, nil
}
