package auth0

import (
	"context"
	"net/http"
	"net/url"
)

// Management is a client for the Management API. It authenticates requests
// with machine-to-machine tokens from a TokenProvider and routes them through
// the request pipeline, including the custom-domain header middleware.
//
// Only a representative slice of resource operations is provided; arbitrary
// endpoints are reachable through Request.
type Management struct {
	cfg      *Config
	rt       *runtime
	provider *TokenProvider
}

// NewManagement creates a Management client. Tokens are minted for the
// tenant's Management API audience via the client credentials grant.
func NewManagement(cfg *Config) (*Management, error) {
	auth, err := New(cfg)
	if err != nil {
		return nil, err
	}

	provider := NewTokenProvider(auth, cfg.BaseURL()+"/api/v2/")
	return newManagement(cfg, provider), nil
}

// newManagement wires the pipeline with bearer and custom-domain middleware.
func newManagement(cfg *Config, provider *TokenProvider) *Management {
	bearer := bearerMiddleware(func(req *http.Request) (string, error) {
		return provider.GetAccessToken(req.Context())
	})

	return &Management{
		cfg:      cfg,
		rt:       newRuntime(cfg, SourceManagementAPI, bearer, customDomainMiddleware(cfg.CustomDomain)),
		provider: provider,
	}
}

// Request executes an arbitrary Management API call. A nil out discards the
// response body.
func (m *Management) Request(ctx context.Context, method, path string, body any, out any) error {
	return m.rt.do(ctx, &RequestDescriptor{
		Method: method,
		Path:   path,
		JSON:   body,
	}, out)
}

// User fetches a user by id.
func (m *Management) User(ctx context.Context, id string) (map[string]any, error) {
	if err := requireField("id", id); err != nil {
		return nil, err
	}

	var out map[string]any
	if err := m.Request(ctx, http.MethodGet, "/api/v2/users/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateUser patches a user.
func (m *Management) UpdateUser(ctx context.Context, id string, fields map[string]any) (map[string]any, error) {
	if err := requireField("id", id); err != nil {
		return nil, err
	}

	var out map[string]any
	if err := m.Request(ctx, http.MethodPatch, "/api/v2/users/"+url.PathEscape(id), fields, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendVerificationEmail queues a verification email job for a user.
func (m *Management) SendVerificationEmail(ctx context.Context, userID string) (map[string]any, error) {
	if err := requireField("user_id", userID); err != nil {
		return nil, err
	}

	var out map[string]any
	body := map[string]string{"user_id": userID}
	if err := m.Request(ctx, http.MethodPost, "/api/v2/jobs/verification-email", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
