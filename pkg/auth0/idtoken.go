package auth0

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// IDTokenClaims are the claims of a validated ID token.
type IDTokenClaims struct {
	Issuer          string
	Subject         string
	Audience        []string
	AuthorizedParty string
	Nonce           string
	OrgID           string
	OrgName         string
	ExpiresAt       int64
	IssuedAt        int64
	AuthTime        int64

	// Custom holds all claims not mapped to a field above.
	Custom map[string]any
}

// ValidationContext carries per-call ID token expectations. The zero value
// expects no nonce, enforces no max age and checks no organization.
type ValidationContext struct {
	// Nonce must match the nonce claim when either side is present.
	Nonce string

	// MaxAge bounds the time since the end user last authenticated.
	MaxAge time.Duration

	// Organization is the expected organization. Values prefixed "org_" are
	// checked against the org_id claim for exact equality; any other value is
	// checked against org_name case-insensitively.
	Organization string
}

// IDTokenValidator verifies ID tokens against OIDC rules: claim checks first,
// fail-fast in a fixed order, then cryptographic signature verification
// against the client secret (HS256) or the tenant JWKS (RS256).
type IDTokenValidator struct {
	issuer         string
	audience       string
	clientSecret   string
	jwksURL        string
	clockTolerance time.Duration

	jwksMu sync.Mutex
	jwks   keyfunc.Keyfunc

	now func() time.Time
}

// newIDTokenValidator builds a validator from validated configuration.
func newIDTokenValidator(cfg *Config) *IDTokenValidator {
	return &IDTokenValidator{
		issuer:         cfg.Issuer(),
		audience:       cfg.ClientID,
		clientSecret:   cfg.ClientSecret,
		jwksURL:        cfg.jwksURL(),
		clockTolerance: cfg.ClockTolerance,
		now:            time.Now,
	}
}

// Validate runs the full validation pipeline over a compact signed token.
// The first violated rule is reported; there is no partial success.
func (v *IDTokenValidator) Validate(ctx context.Context, idToken string, vctx *ValidationContext) (*IDTokenClaims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: id token is required", ErrMissingToken)
	}
	if vctx == nil {
		vctx = &ValidationContext{}
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode the ID token: %v", ErrIDTokenValidation, err)
	}

	alg, _ := unverified.Header["alg"].(string)
	if alg != "RS256" && alg != "HS256" {
		return nil, fmt.Errorf("%w: signature algorithm %q is not supported; expected \"RS256\" or \"HS256\"", ErrIDTokenValidation, alg)
	}

	claims, ok := unverified.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: cannot decode the ID token claims", ErrIDTokenValidation)
	}

	if err := v.checkClaims(claims, vctx); err != nil {
		return nil, err
	}

	if err := v.verifySignature(ctx, idToken, alg); err != nil {
		return nil, err
	}

	return extractIDTokenClaims(claims), nil
}

// checkClaims applies the claim rules in order against the decoded token.
func (v *IDTokenValidator) checkClaims(claims jwt.MapClaims, vctx *ValidationContext) error {
	now := v.now()

	iss, ok := claims["iss"].(string)
	if !ok || iss == "" {
		return fmt.Errorf("%w: Issuer (iss) claim must be a string present in the ID token", ErrIDTokenValidation)
	}
	if iss != v.issuer {
		return fmt.Errorf("%w: Issuer (iss) claim mismatch in the ID token; expected %q, found %q", ErrIDTokenValidation, v.issuer, iss)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return fmt.Errorf("%w: Subject (sub) claim must be a string present in the ID token", ErrIDTokenValidation)
	}

	audience, err := audienceClaim(claims["aud"])
	if err != nil {
		return err
	}
	switch {
	case len(audience) == 1:
		if audience[0] != v.audience {
			return fmt.Errorf("%w: Audience (aud) claim mismatch in the ID token; expected %q, found %q", ErrIDTokenValidation, v.audience, audience[0])
		}
	default:
		if !containsString(audience, v.audience) {
			return fmt.Errorf("%w: Audience (aud) claim mismatch in the ID token; expected %q but was not one of %q", ErrIDTokenValidation, v.audience, audience)
		}
	}

	if vctx.Organization != "" {
		if err := v.checkOrganization(claims, vctx.Organization); err != nil {
			return err
		}
	}

	exp, ok := numberClaim(claims["exp"])
	if !ok {
		return fmt.Errorf("%w: Expiration Time (exp) claim must be a number present in the ID token", ErrIDTokenValidation)
	}
	expTime := time.Unix(exp, 0).Add(v.clockTolerance)
	if now.After(expTime) {
		return fmt.Errorf("%w: Expiration Time (exp) claim error in the ID token; current time (%s) is after expiration time (%s)", ErrIDTokenValidation, now.UTC().Format(time.RFC3339), expTime.UTC().Format(time.RFC3339))
	}

	if _, ok := numberClaim(claims["iat"]); !ok {
		return fmt.Errorf("%w: Issued At (iat) claim must be a number present in the ID token", ErrIDTokenValidation)
	}

	nonce, nonceInToken := claims["nonce"].(string)
	if vctx.Nonce != "" || nonceInToken {
		if !nonceInToken || nonce == "" {
			return fmt.Errorf("%w: Nonce (nonce) claim must be a string present in the ID token", ErrIDTokenValidation)
		}
		if vctx.Nonce == "" {
			return fmt.Errorf("%w: Nonce (nonce) claim was present in the ID token but no nonce was expected", ErrIDTokenValidation)
		}
		if nonce != vctx.Nonce {
			return fmt.Errorf("%w: Nonce (nonce) claim mismatch in the ID token; expected %q, found %q", ErrIDTokenValidation, vctx.Nonce, nonce)
		}
	}

	if len(audience) > 1 {
		azp, ok := claims["azp"].(string)
		if !ok || azp == "" {
			return fmt.Errorf("%w: Authorized Party (azp) claim must be a string present in the ID token when Audience (aud) claim has multiple values", ErrIDTokenValidation)
		}
		if azp != v.audience {
			return fmt.Errorf("%w: Authorized Party (azp) claim mismatch in the ID token; expected %q, found %q", ErrIDTokenValidation, v.audience, azp)
		}
	}

	if vctx.MaxAge > 0 {
		authTime, ok := numberClaim(claims["auth_time"])
		if !ok {
			return fmt.Errorf("%w: Authentication Time (auth_time) claim must be a number present in the ID token when Max Age is specified", ErrIDTokenValidation)
		}
		validUntil := time.Unix(authTime, 0).Add(vctx.MaxAge).Add(v.clockTolerance)
		if now.After(validUntil) {
			return fmt.Errorf("%w: Authentication Time (auth_time) claim in the ID token indicates that too much time has passed since the last end-user authentication; current time (%s) is after last auth valid until (%s)", ErrIDTokenValidation, now.UTC().Format(time.RFC3339), validUntil.UTC().Format(time.RFC3339))
		}
	}

	return nil
}

// checkOrganization validates the organization claims. Expectations prefixed
// "org_" assert exact equality on org_id; any other expectation asserts a
// case-insensitive match on org_name.
func (v *IDTokenValidator) checkOrganization(claims jwt.MapClaims, expected string) error {
	if strings.HasPrefix(expected, "org_") {
		orgID, ok := claims["org_id"].(string)
		if !ok || orgID == "" {
			return fmt.Errorf("%w: Organization Id (org_id) claim must be a string present in the ID token", ErrIDTokenValidation)
		}
		if orgID != expected {
			return fmt.Errorf("%w: Organization Id (org_id) claim mismatch in the ID token; expected %q, found %q", ErrIDTokenValidation, expected, orgID)
		}
		return nil
	}

	orgName, ok := claims["org_name"].(string)
	if !ok || orgName == "" {
		return fmt.Errorf("%w: Organization Name (org_name) claim must be a string present in the ID token", ErrIDTokenValidation)
	}
	if !strings.EqualFold(orgName, expected) {
		return fmt.Errorf("%w: Organization Name (org_name) claim mismatch in the ID token; expected %q, found %q", ErrIDTokenValidation, expected, orgName)
	}
	return nil
}

// verifySignature performs the cryptographic check, re-asserting issuer,
// audience and leeway at the library layer as a defense-in-depth double check.
func (v *IDTokenValidator) verifySignature(ctx context.Context, idToken, alg string) error {
	var keyFn jwt.Keyfunc

	switch alg {
	case "HS256":
		if v.clientSecret == "" {
			return fmt.Errorf("%w: client_secret is required to validate an HS256 signed ID token", ErrConfiguration)
		}
		secret := []byte(v.clientSecret)
		keyFn = func(*jwt.Token) (any, error) { return secret, nil }
	case "RS256":
		jwks, err := v.keySet(ctx)
		if err != nil {
			return err
		}
		keyFn = jwks.Keyfunc
	}

	token, err := jwt.Parse(idToken, keyFn,
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithLeeway(v.clockTolerance),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return fmt.Errorf("%w: signature verification failed: %v", ErrIDTokenValidation, err)
	}
	if !token.Valid {
		return fmt.Errorf("%w: signature verification failed", ErrIDTokenValidation)
	}
	return nil
}

// keySet lazily initializes the JWKS key set for RS256 verification. The key
// set refreshes itself in the background once initialized.
func (v *IDTokenValidator) keySet(ctx context.Context) (keyfunc.Keyfunc, error) {
	v.jwksMu.Lock()
	defer v.jwksMu.Unlock()

	if v.jwks != nil {
		return v.jwks, nil
	}

	jwks, err := keyfunc.NewDefaultCtx(context.Background(), []string{v.jwksURL})
	if err != nil {
		return nil, fmt.Errorf("%w: cannot fetch JWKS from %s: %v", ErrIDTokenValidation, v.jwksURL, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.jwks = jwks
	return jwks, nil
}

// extractIDTokenClaims maps verified claims into an IDTokenClaims value.
func extractIDTokenClaims(claims jwt.MapClaims) *IDTokenClaims {
	out := &IDTokenClaims{Custom: make(map[string]any)}

	out.Issuer, _ = claims["iss"].(string)
	out.Subject, _ = claims["sub"].(string)
	out.Audience, _ = audienceClaim(claims["aud"])
	out.AuthorizedParty, _ = claims["azp"].(string)
	out.Nonce, _ = claims["nonce"].(string)
	out.OrgID, _ = claims["org_id"].(string)
	out.OrgName, _ = claims["org_name"].(string)

	if exp, ok := numberClaim(claims["exp"]); ok {
		out.ExpiresAt = exp
	}
	if iat, ok := numberClaim(claims["iat"]); ok {
		out.IssuedAt = iat
	}
	if authTime, ok := numberClaim(claims["auth_time"]); ok {
		out.AuthTime = authTime
	}

	mapped := map[string]bool{
		"iss": true, "sub": true, "aud": true, "azp": true, "nonce": true,
		"org_id": true, "org_name": true, "exp": true, "iat": true, "auth_time": true,
	}
	for key, value := range claims {
		if !mapped[key] {
			out.Custom[key] = value
		}
	}

	return out
}

// audienceClaim normalizes the aud claim, which may be a string or an array
// of strings.
func audienceClaim(value any) ([]string, error) {
	switch aud := value.(type) {
	case string:
		if aud != "" {
			return []string{aud}, nil
		}
	case []any:
		out := make([]string, 0, len(aud))
		for _, entry := range aud {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("%w: Audience (aud) claim must be a string or array of strings present in the ID token", ErrIDTokenValidation)
			}
			out = append(out, s)
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: Audience (aud) claim must be a string or array of strings present in the ID token", ErrIDTokenValidation)
}

// numberClaim normalizes a numeric claim.
func numberClaim(value any) (int64, bool) {
	switch n := value.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case jwt.NumericDate:
		return n.Unix(), true
	}
	return 0, false
}

// containsString reports whether list contains target.
func containsString(list []string, target string) bool {
	for _, entry := range list {
		if entry == target {
			return true
		}
	}
	return false
}
