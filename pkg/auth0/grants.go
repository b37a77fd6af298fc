package auth0

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// TokenSet is the result of a successful token endpoint exchange.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
}

// Authentication is the client for the Authentication API: OAuth grants,
// passwordless, CIBA, MFA, revocation and pushed authorization.
type Authentication struct {
	cfg        *Config
	rt         *runtime
	userinfoRT *runtime
	validator  *IDTokenValidator
}

// New creates an Authentication client. The configuration is validated and
// defaults are applied.
func New(cfg *Config) (*Authentication, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Authentication{
		cfg:        cfg,
		rt:         newRuntime(cfg, SourceAuthAPI),
		userinfoRT: newRuntime(cfg, SourceUserInfo),
		validator:  newIDTokenValidator(cfg),
	}, nil
}

// Validator exposes the ID token validator for standalone validation.
func (a *Authentication) Validator() *IDTokenValidator {
	return a.validator
}

// ClientCredentialsRequest holds the inputs of the client credentials grant.
type ClientCredentialsRequest struct {
	// Audience is the API identifier. Falls back to the configured audience.
	Audience string

	// Scope is an optional space-separated scope list.
	Scope string

	// Extra is merged into the token request body.
	Extra url.Values
}

// ClientCredentials performs the machine-to-machine client credentials grant.
func (a *Authentication) ClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*TokenSet, error) {
	audience := req.Audience
	if audience == "" {
		audience = a.cfg.Audience
	}
	if err := requireField("audience", audience); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("audience", audience)
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}
	mergeValues(form, req.Extra)

	return a.exchangeToken(ctx, form, true, nil, true)
}

// AuthorizationCodeRequest holds the inputs of the authorization code grant.
type AuthorizationCodeRequest struct {
	// Code is the authorization code returned on the redirect URI. Required.
	Code string

	// RedirectURI must match the one used in the authorization request.
	RedirectURI string

	// CodeVerifier is the PKCE verifier, required for public clients.
	CodeVerifier string

	// Nonce, MaxAge and Organization are the ID token expectations for this
	// login transaction.
	Nonce        string
	MaxAge       time.Duration
	Organization string

	// SkipIDTokenValidation bypasses ID token validation. Not recommended.
	SkipIDTokenValidation bool
}

// AuthorizationCode exchanges an authorization code for tokens and validates
// the returned ID token against the transaction expectations.
func (a *Authentication) AuthorizationCode(ctx context.Context, req AuthorizationCodeRequest) (*TokenSet, error) {
	if err := requireField("code", req.Code); err != nil {
		return nil, err
	}
	if err := requireField("redirect_uri", req.RedirectURI); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", req.Code)
	form.Set("redirect_uri", req.RedirectURI)
	if req.CodeVerifier != "" {
		form.Set("code_verifier", req.CodeVerifier)
	}

	vctx := &ValidationContext{
		Nonce:        req.Nonce,
		MaxAge:       req.MaxAge,
		Organization: req.Organization,
	}
	return a.exchangeToken(ctx, form, false, vctx, !req.SkipIDTokenValidation)
}

// RefreshTokenRequest holds the inputs of the refresh token grant.
type RefreshTokenRequest struct {
	// RefreshToken is the token to redeem. Required.
	RefreshToken string

	// Scope optionally narrows the requested scopes.
	Scope string

	// Organization is the expected organization of the refreshed ID token.
	Organization string

	// SkipIDTokenValidation bypasses ID token validation. Not recommended.
	SkipIDTokenValidation bool
}

// RefreshToken redeems a refresh token for a new token set.
func (a *Authentication) RefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenSet, error) {
	if err := requireField("refresh_token", req.RefreshToken); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", req.RefreshToken)
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}

	vctx := &ValidationContext{Organization: req.Organization}
	return a.exchangeToken(ctx, form, false, vctx, !req.SkipIDTokenValidation)
}

// PasswordRequest holds the inputs of the resource owner password grant.
type PasswordRequest struct {
	// Username and Password identify the resource owner. Required.
	Username string
	Password string

	// Realm selects a specific connection; when set the password-realm grant
	// is used instead of the standard password grant.
	Realm string

	// Audience is the API identifier for the issued access token.
	Audience string

	// Scope is an optional space-separated scope list.
	Scope string

	// SkipIDTokenValidation bypasses ID token validation. Not recommended.
	SkipIDTokenValidation bool
}

// Password performs the resource owner password grant, or the password-realm
// variant when a realm is given.
func (a *Authentication) Password(ctx context.Context, req PasswordRequest) (*TokenSet, error) {
	if err := requireField("username", req.Username); err != nil {
		return nil, err
	}
	if err := requireField("password", req.Password); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("username", req.Username)
	form.Set("password", req.Password)
	if req.Realm != "" {
		form.Set("grant_type", "http://auth0.com/oauth/grant-type/password-realm")
		form.Set("realm", req.Realm)
	} else {
		form.Set("grant_type", "password")
	}
	if req.Audience != "" {
		form.Set("audience", req.Audience)
	}
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}

	return a.exchangeToken(ctx, form, false, nil, !req.SkipIDTokenValidation)
}

// TokenExchangeRequest holds the inputs of an RFC 8693 token exchange,
// including federated connection access token exchanges.
type TokenExchangeRequest struct {
	// SubjectToken is the token being exchanged. Required.
	SubjectToken string

	// SubjectTokenType identifies the subject token. Required.
	SubjectTokenType string

	// Audience and Scope shape the issued token.
	Audience string
	Scope    string

	// Extra is merged into the token request body (e.g. connection,
	// requested_token_type for federated exchanges).
	Extra url.Values

	// SkipIDTokenValidation bypasses ID token validation. Not recommended.
	SkipIDTokenValidation bool
}

// TokenExchange performs the token exchange grant.
func (a *Authentication) TokenExchange(ctx context.Context, req TokenExchangeRequest) (*TokenSet, error) {
	if err := requireField("subject_token", req.SubjectToken); err != nil {
		return nil, err
	}
	if err := requireField("subject_token_type", req.SubjectTokenType); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:token-exchange")
	form.Set("subject_token", req.SubjectToken)
	form.Set("subject_token_type", req.SubjectTokenType)
	if req.Audience != "" {
		form.Set("audience", req.Audience)
	}
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}
	mergeValues(form, req.Extra)

	return a.exchangeToken(ctx, form, false, nil, !req.SkipIDTokenValidation)
}

// RevokeRequest holds the inputs of a token revocation.
type RevokeRequest struct {
	// Token is the refresh token to revoke. Required.
	Token string
}

// Revoke invalidates a refresh token.
func (a *Authentication) Revoke(ctx context.Context, req RevokeRequest) error {
	if err := requireField("token", req.Token); err != nil {
		return err
	}

	body := map[string]string{
		"client_id": a.cfg.ClientID,
		"token":     req.Token,
	}

	// The revoke endpoint takes a JSON body; client authentication fields are
	// produced on a form and copied over.
	auth := url.Values{}
	if err := addClientAuthentication(auth, a.cfg, false); err != nil {
		return err
	}
	for key := range auth {
		body[key] = auth.Get(key)
	}

	return a.rt.do(ctx, &RequestDescriptor{
		Method: http.MethodPost,
		Path:   "/oauth/revoke",
		JSON:   body,
	}, nil)
}

// PushedAuthorizationRequest holds the inputs of a pushed authorization
// request (RFC 9126).
type PushedAuthorizationRequest struct {
	// ResponseType and RedirectURI are required.
	ResponseType string
	RedirectURI  string

	// Optional authorization parameters.
	Scope    string
	Audience string
	Nonce    string
	State    string

	// Extra is merged into the request body.
	Extra url.Values
}

// PushedAuthorizationResponse is the PAR endpoint result.
type PushedAuthorizationResponse struct {
	RequestURI string `json:"request_uri"`
	ExpiresIn  int64  `json:"expires_in"`
}

// PushedAuthorization registers an authorization request with the tenant and
// returns the request_uri to redirect with.
func (a *Authentication) PushedAuthorization(ctx context.Context, req PushedAuthorizationRequest) (*PushedAuthorizationResponse, error) {
	if err := requireField("response_type", req.ResponseType); err != nil {
		return nil, err
	}
	if err := requireField("redirect_uri", req.RedirectURI); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("client_id", a.cfg.ClientID)
	form.Set("response_type", req.ResponseType)
	form.Set("redirect_uri", req.RedirectURI)
	if req.Scope != "" {
		form.Set("scope", req.Scope)
	}
	if req.Audience != "" {
		form.Set("audience", req.Audience)
	}
	if req.Nonce != "" {
		form.Set("nonce", req.Nonce)
	}
	if req.State != "" {
		form.Set("state", req.State)
	}
	mergeValues(form, req.Extra)

	if err := addClientAuthentication(form, a.cfg, false); err != nil {
		return nil, err
	}

	var out PushedAuthorizationResponse
	err := a.rt.do(ctx, &RequestDescriptor{
		Method: http.MethodPost,
		Path:   "/oauth/par",
		Form:   form,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UserInfo fetches the OIDC userinfo claims for an access token.
func (a *Authentication) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	if err := requireField("access_token", accessToken); err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+accessToken)

	var out map[string]any
	err := a.userinfoRT.do(ctx, &RequestDescriptor{
		Method:  http.MethodGet,
		Path:    "/userinfo",
		Headers: headers,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// exchangeToken submits a token endpoint request and optionally validates a
// returned ID token. Grant methods never add their own retry layer; the
// pipeline owns retries.
func (a *Authentication) exchangeToken(ctx context.Context, form url.Values, authRequired bool, vctx *ValidationContext, validateIDToken bool) (*TokenSet, error) {
	form.Set("client_id", a.cfg.ClientID)

	if err := addClientAuthentication(form, a.cfg, authRequired); err != nil {
		return nil, err
	}

	var set TokenSet
	err := a.rt.do(ctx, &RequestDescriptor{
		Method: http.MethodPost,
		Path:   "/oauth/token",
		Form:   form,
	}, &set)
	if err != nil {
		return nil, err
	}

	if set.TokenType == "" {
		set.TokenType = "Bearer"
	}

	if set.IDToken != "" && validateIDToken {
		if _, err := a.validator.Validate(ctx, set.IDToken, vctx); err != nil {
			return nil, err
		}
	}

	return &set, nil
}

// requireField reports a missing grant field as a configuration error.
func requireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrConfiguration, name)
	}
	return nil
}

// mergeValues copies extra form values without overwriting existing keys.
func mergeValues(dst, extra url.Values) {
	for key, values := range extra {
		if _, exists := dst[key]; exists {
			continue
		}
		dst[key] = append([]string(nil), values...)
	}
}
