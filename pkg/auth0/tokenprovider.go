package auth0

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// tokenLeeway is subtracted from the nominal expiry so tokens are refreshed
// before clock skew or in-flight latency can make them unusable.
const tokenLeeway = 10 * time.Second

// TokenProvider caches a machine-to-machine access token obtained via the
// client credentials grant and refreshes it on demand. Refreshes are
// single-flight: concurrent callers share one upstream request and resolve to
// the same outcome. A failed refresh is never cached, so the next call
// attempts a fresh one.
type TokenProvider struct {
	auth     *Authentication
	audience string
	scope    string
	leeway   time.Duration
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	inflight  *refreshCall
}

// refreshCall is the shared result of one in-flight refresh.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewTokenProvider creates a provider that mints tokens for the given API
// audience through the Authentication client.
func NewTokenProvider(auth *Authentication, audience string, scope ...string) *TokenProvider {
	return &TokenProvider{
		auth:     auth,
		audience: audience,
		scope:    strings.Join(scope, " "),
		leeway:   tokenLeeway,
		now:      time.Now,
	}
}

// GetAccessToken returns a cached token while it remains usable, otherwise
// refreshes it. Exactly one network refresh is in flight at a time per
// provider instance.
func (p *TokenProvider) GetAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()

	if p.token != "" && p.now().Before(p.expiresAt.Add(-p.leeway)) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}

	if call := p.inflight; call != nil {
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-call.done:
			return call.token, call.err
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	p.inflight = call
	p.mu.Unlock()

	set, err := p.auth.ClientCredentials(ctx, ClientCredentialsRequest{
		Audience: p.audience,
		Scope:    p.scope,
	})

	p.mu.Lock()
	p.inflight = nil
	if err == nil {
		p.token = set.AccessToken
		p.expiresAt = p.now().Add(time.Duration(set.ExpiresIn) * time.Second)
		call.token = set.AccessToken
	} else {
		call.err = err
	}
	p.mu.Unlock()

	close(call.done)
	return call.token, call.err
}

// TokenSource adapts the provider to the golang.org/x/oauth2 TokenSource
// interface so it can feed any oauth2-aware HTTP client.
func (p *TokenProvider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &providerTokenSource{provider: p, ctx: ctx}
}

type providerTokenSource struct {
	provider *TokenProvider
	ctx      context.Context
}

// Token implements oauth2.TokenSource.
func (s *providerTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.provider.GetAccessToken(s.ctx)
	if err != nil {
		return nil, err
	}

	s.provider.mu.Lock()
	expiry := s.provider.expiresAt
	s.provider.mu.Unlock()

	return &oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}
