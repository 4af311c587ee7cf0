package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"skolar/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var (
	ErrNoCredentials    = errors.New("no credentials configured")
	ErrTokenUnavailable = errors.New("token unavailable")
)

// TokenProvider hands out bearer tokens for the signed-in session.
// Tokens are cached until they expire unless a refresh is forced.
type TokenProvider struct {
	session *Session
	logger  *zerolog.Logger

	mu        sync.Mutex
	cached    *oauth2.Token
	newSource func(ctx context.Context, refreshToken string) oauth2.TokenSource
	refresh   string
}

// NewTokenProvider builds a provider from config: a static token wins over
// the oauth2 refresh-token flow. With neither, every Token call fails.
func NewTokenProvider(cfg config.AuthConfig, session *Session, logger *zerolog.Logger) *TokenProvider {
	p := newProvider(session, logger)

	switch {
	case cfg.StaticToken != "":
		static := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.StaticToken, TokenType: "Bearer"})
		p.newSource = func(context.Context, string) oauth2.TokenSource { return static }
	case cfg.OAuth2.RefreshToken != "":
		oc := &oauth2.Config{
			ClientID:     cfg.OAuth2.ClientID,
			ClientSecret: cfg.OAuth2.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth2.TokenURL},
			Scopes:       cfg.OAuth2.Scopes,
		}
		p.refresh = cfg.OAuth2.RefreshToken
		p.newSource = func(ctx context.Context, refreshToken string) oauth2.TokenSource {
			// No access token: the first Token call hits the token endpoint.
			return oc.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
		}
	}
	return p
}

// NewTokenProviderFromSource wraps an existing token source.
func NewTokenProviderFromSource(src oauth2.TokenSource, session *Session, logger *zerolog.Logger) *TokenProvider {
	p := newProvider(session, logger)
	p.newSource = func(context.Context, string) oauth2.TokenSource { return src }
	return p
}

func newProvider(session *Session, logger *zerolog.Logger) *TokenProvider {
	if session == nil {
		session = NewSession("")
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "auth").Logger()
	return &TokenProvider{session: session, logger: &l}
}

func (p *TokenProvider) Session() *Session {
	return p.session
}

func (p *TokenProvider) CurrentUser() (string, bool) {
	return p.session.CurrentUser()
}

// Token returns a bearer token. forceRefresh skips the cached token.
func (p *TokenProvider) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if p.newSource == nil {
		return "", ErrNoCredentials
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.newSource(ctx, p.refresh)
	src := base
	if !forceRefresh {
		src = oauth2.ReuseTokenSource(p.cached, base)
	}

	tok, err := src.Token()
	if err != nil {
		p.logger.Warn().Err(err).Bool("force_refresh", forceRefresh).Msg("token acquisition failed")
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}
	if !tok.Valid() {
		return "", fmt.Errorf("%w: token is empty or expired", ErrTokenUnavailable)
	}

	if tok != p.cached {
		p.logger.Debug().Time("expiry", tok.Expiry).Msg("token refreshed")
	}
	p.cached = tok
	if tok.RefreshToken != "" {
		p.refresh = tok.RefreshToken
	}
	return tok.AccessToken, nil
}

// Reset drops the cached token, e.g. after sign-out.
func (p *TokenProvider) Reset() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
