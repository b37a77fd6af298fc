package auth0

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// cibaGrantType is the grant used when polling for a CIBA token.
const cibaGrantType = "urn:openid:params:grant-type:ciba"

// CIBAAuthorizeRequest initiates a client-initiated backchannel
// authentication transaction: the approval happens on the user's own device.
type CIBAAuthorizeRequest struct {
	// UserID is the subject of the user to authenticate, sent as an iss_sub
	// login hint together with the tenant issuer. Required.
	UserID string

	// BindingMessage is displayed on both devices to bind the transaction.
	// Required by the platform.
	BindingMessage string

	// Scope defaults to "openid".
	Scope string

	// Audience optionally requests an access token for an API.
	Audience string
}

// CIBAAuthorizeResponse identifies a pending backchannel transaction.
type CIBAAuthorizeResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"`
	Interval  int64  `json:"interval"`
}

// CIBAAuthorize starts a backchannel authentication transaction and returns
// the auth_req_id to poll with.
func (a *Authentication) CIBAAuthorize(ctx context.Context, req CIBAAuthorizeRequest) (*CIBAAuthorizeResponse, error) {
	if err := requireField("user_id", req.UserID); err != nil {
		return nil, err
	}
	if err := requireField("binding_message", req.BindingMessage); err != nil {
		return nil, err
	}

	loginHint, err := json.Marshal(map[string]string{
		"format": "iss_sub",
		"iss":    a.cfg.Issuer(),
		"sub":    req.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode login_hint: %v", ErrConfiguration, err)
	}

	scope := req.Scope
	if scope == "" {
		scope = "openid"
	}

	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("login_hint", string(loginHint))
	form.Set("binding_message", req.BindingMessage)
	form.Set("scope", scope)
	if req.Audience != "" {
		form.Set("audience", req.Audience)
	}

	if err := addClientAuthentication(form, a.cfg, true); err != nil {
		return nil, err
	}

	var out CIBAAuthorizeResponse
	err = a.rt.do(ctx, &RequestDescriptor{
		Method: http.MethodPost,
		Path:   "/bc-authorize",
		Form:   form,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CIBAToken performs a single token poll for a pending backchannel
// transaction. While the user has not yet approved, the call fails with an
// *APIError whose IsAuthorizationPending or IsSlowDown predicate is true;
// IsAccessDenied marks a terminal denial.
func (a *Authentication) CIBAToken(ctx context.Context, authReqID string) (*TokenSet, error) {
	if err := requireField("auth_req_id", authReqID); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", cibaGrantType)
	form.Set("auth_req_id", authReqID)

	return a.exchangeToken(ctx, form, true, nil, true)
}

// CIBAWaitForToken polls the token endpoint until the transaction completes,
// the user denies it, or the context is done. The poll interval starts at the
// server-provided value and is increased when the server answers slow_down.
func (a *Authentication) CIBAWaitForToken(ctx context.Context, authorize *CIBAAuthorizeResponse) (*TokenSet, error) {
	if authorize == nil {
		return nil, fmt.Errorf("%w: authorize response is required", ErrConfiguration)
	}

	interval := time.Duration(authorize.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	for {
		set, err := a.CIBAToken(ctx, authorize.AuthReqID)
		if err == nil {
			return set, nil
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}
		switch {
		case apiErr.IsSlowDown():
			interval += 5 * time.Second
		case apiErr.IsAuthorizationPending():
			// keep polling at the current interval
		default:
			return nil, err
		}

		if err := sleep(ctx, interval); err != nil {
			return nil, err
		}
	}
}
