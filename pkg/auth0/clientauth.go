package auth0

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clientAssertionType is the fixed assertion type for JWT client
// authentication per RFC 7523.
const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// addClientAuthentication augments a token endpoint form body with client
// credentials. Caller-supplied client_assertion and client_secret values are
// always preserved, so the function is safe to call repeatedly. With neither
// a secret nor a signing key configured the body is left untouched, which
// supports public clients and mTLS.
//
// With required set, a body that still carries no credential afterwards is a
// configuration error.
func addClientAuthentication(body url.Values, cfg *Config, required bool) error {
	switch {
	case cfg.ClientAssertionSigningKey != nil && body.Get("client_assertion") == "":
		assertion, err := signClientAssertion(cfg)
		if err != nil {
			return err
		}
		body.Set("client_assertion", assertion)
		body.Set("client_assertion_type", clientAssertionType)
	case cfg.ClientSecret != "" && body.Get("client_secret") == "":
		body.Set("client_secret", cfg.ClientSecret)
	}

	if required && body.Get("client_secret") == "" && body.Get("client_assertion") == "" {
		return fmt.Errorf("%w: client_secret or client_assertion is required", ErrConfiguration)
	}

	return nil
}

// signClientAssertion mints a short-lived JWT authenticating the client to
// the token endpoint. The jti is a fresh UUIDv4 per call.
func signClientAssertion(cfg *Config) (string, error) {
	method := jwt.GetSigningMethod(cfg.ClientAssertionSigningAlg)
	if method == nil {
		return "", fmt.Errorf("%w: unsupported client assertion signing algorithm %q", ErrConfiguration, cfg.ClientAssertionSigningAlg)
	}

	now := time.Now()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"iss": cfg.ClientID,
		"sub": cfg.ClientID,
		"aud": cfg.Issuer(),
		"iat": now.Unix(),
		"exp": now.Add(defaultAssertionLifetime).Unix(),
		"jti": uuid.NewString(),
	})

	signed, err := token.SignedString(cfg.ClientAssertionSigningKey)
	if err != nil {
		return "", fmt.Errorf("%w: cannot sign client assertion: %v", ErrConfiguration, err)
	}
	return signed, nil
}
