package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// TokenProvider yields the bearer token an outbound connection presents.
// Implementations refresh or re-mint as needed; callers ask per dial.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns one fixed token forever.
type StaticTokenProvider string

// Token implements TokenProvider.
func (s StaticTokenProvider) Token(_ context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", errors.New("empty static token")
	}
	return string(s), nil
}

// JWTTokenProvider mints a fresh short-lived token from a shared secret on
// every call, so a long-running edge never presents a stale credential.
type JWTTokenProvider struct {
	Service  *JWTService
	Identity EdgeIdentity
}

// Token implements TokenProvider.
func (p *JWTTokenProvider) Token(_ context.Context) (string, error) {
	return p.Service.Generate(p.Identity)
}

// OAuthTokenProvider obtains tokens via the OAuth2 client-credentials
// grant, caching them until shortly before expiry.
type OAuthTokenProvider struct {
	source oauth2.TokenSource
}

// NewOAuthTokenProvider builds a provider against tokenURL using the given
// client id/secret and scopes.
func NewOAuthTokenProvider(ctx context.Context, clientID, clientSecret, tokenURL string, scopes []string) *OAuthTokenProvider {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return &OAuthTokenProvider{source: cfg.TokenSource(ctx)}
}

// Token implements TokenProvider.
func (p *OAuthTokenProvider) Token(_ context.Context) (string, error) {
	tok, err := p.source.Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}
