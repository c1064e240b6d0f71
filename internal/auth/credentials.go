// Package auth resolves the bearer credential and user identity that every
// ledger operation is bound to.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	googleoauth "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrReauthenticate means the credential is missing, expired or revoked. Callers
// must ask the user to sign in again rather than retry.
var ErrReauthenticate = errors.New("auth: reauthenticate")

// Credentials bind a request to one user's Google account.
type Credentials struct {
	BearerToken  string
	UserIdentity string // e-mail address
}

// TokenSource returns a token source that always yields the bearer token.
func (c Credentials) TokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: c.BearerToken,
		TokenType:   "Bearer",
	})
}

// HTTPClient returns a client that authorizes every request with the bearer token.
func (c Credentials) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource())
}

// Provider turns a raw bearer token into verified Credentials.
type Provider interface {
	Credentials(ctx context.Context, bearerToken string) (Credentials, error)
}

// GoogleProvider verifies tokens against the OAuth2 userinfo endpoint.
type GoogleProvider struct {
	opts []option.ClientOption
}

// NewGoogleProvider creates a provider. Options are appended to every userinfo
// client, e.g. option.WithEndpoint in tests.
func NewGoogleProvider(opts ...option.ClientOption) *GoogleProvider {
	return &GoogleProvider{opts: opts}
}

// Credentials implements Provider.
func (p *GoogleProvider) Credentials(ctx context.Context, bearerToken string) (Credentials, error) {
	bearerToken = strings.TrimSpace(bearerToken)
	if bearerToken == "" {
		return Credentials{}, fmt.Errorf("%w: no bearer token", ErrReauthenticate)
	}

	creds := Credentials{BearerToken: bearerToken}
	opts := append([]option.ClientOption{option.WithTokenSource(creds.TokenSource())}, p.opts...)

	svc, err := googleoauth.NewService(ctx, opts...)
	if err != nil {
		return Credentials{}, fmt.Errorf("GoogleProvider.Credentials: creating service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
			return Credentials{}, fmt.Errorf("%w: %v", ErrReauthenticate, err)
		}
		return Credentials{}, fmt.Errorf("GoogleProvider.Credentials: userinfo: %w", err)
	}
	if info.Email == "" {
		return Credentials{}, fmt.Errorf("%w: token lacks the email scope", ErrReauthenticate)
	}

	creds.UserIdentity = info.Email
	return creds, nil
}

// StaticProvider returns fixed credentials. It backs the CLI, where the token
// comes from configuration instead of a request header.
type StaticProvider struct {
	Creds Credentials
}

// Credentials implements Provider. The bearer token argument is ignored.
func (p StaticProvider) Credentials(ctx context.Context, _ string) (Credentials, error) {
	if p.Creds.BearerToken == "" {
		return Credentials{}, fmt.Errorf("%w: GOOGLE_ACCESS_TOKEN is not set", ErrReauthenticate)
	}
	return p.Creds, nil
}

type contextKey struct{}

// WithCredentials stores creds on the context.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, contextKey{}, creds)
}

// FromContext returns the credentials stored by WithCredentials.
func FromContext(ctx context.Context) (Credentials, bool) {
	creds, ok := ctx.Value(contextKey{}).(Credentials)
	return creds, ok
}

var (
	_ Provider = (*GoogleProvider)(nil)
	_ Provider = StaticProvider{}
)
