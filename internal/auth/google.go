package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	goption "google.golang.org/api/option"

	"profitdash/internal/core"
)

// GoogleProvider runs the OAuth2 authorization code flow and reads the
// profile from the userinfo API.
type GoogleProvider struct {
	config *oauth2.Config
	// apiEndpoint overrides the userinfo API base URL, for tests.
	apiEndpoint string
}

func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{goauth2.UserinfoEmailScope, goauth2.UserinfoProfileScope},
		},
	}
}

// AuthCodeURL returns the consent page URL carrying state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for the signed-in user's profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (core.User, error) {
	if code == "" {
		return core.User{}, errors.New("missing authorization code")
	}
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return core.User{}, fmt.Errorf("exchange code: %w", err)
	}

	opts := []goption.ClientOption{goption.WithTokenSource(p.config.TokenSource(ctx, tok))}
	if p.apiEndpoint != "" {
		opts = append(opts, goption.WithEndpoint(p.apiEndpoint))
	}
	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return core.User{}, fmt.Errorf("userinfo service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return core.User{}, fmt.Errorf("get userinfo: %w", err)
	}
	if info.Id == "" || info.Email == "" {
		return core.User{}, errors.New("google profile lacks id or email")
	}

	return core.User{
		ID:          "google:" + info.Id,
		Email:       info.Email,
		DisplayName: info.Name,
		PhotoURL:    info.Picture,
	}, nil
}
