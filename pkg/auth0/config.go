package auth0

import (
	"crypto"
	"fmt"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds each HTTP attempt.
	defaultTimeout = 10 * time.Second

	// defaultClockTolerance absorbs clock skew during ID token validation.
	defaultClockTolerance = 60 * time.Second

	// defaultAssertionLifetime is the exp window of signed client assertions.
	defaultAssertionLifetime = 180 * time.Second
)

// ClientInfo describes the SDK to the platform via the telemetry header.
type ClientInfo struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Env     map[string]string `json:"env,omitempty"`
}

// Config contains the complete client configuration shared by the
// Authentication and Management clients.
type Config struct {
	// Domain is the tenant domain, e.g. "tenant.auth0.com". Required.
	Domain string

	// ClientID is the application client identifier. Required.
	ClientID string

	// ClientSecret authenticates the client with a shared secret. At most one
	// of ClientSecret and ClientAssertionSigningKey may be set; with neither
	// the client is treated as public (or authenticated via mTLS).
	ClientSecret string

	// ClientAssertionSigningKey is a private key used to sign a JWT client
	// assertion instead of sending a shared secret (RFC 7523).
	ClientAssertionSigningKey crypto.PrivateKey

	// ClientAssertionSigningAlg selects the assertion signing algorithm.
	// Defaults to RS256.
	ClientAssertionSigningAlg string

	// Audience is the default API identifier for machine-to-machine tokens.
	Audience string

	// CustomDomain, when set, is injected as the Auth0-Custom-Domain header on
	// the fixed set of Management API paths that honor it.
	CustomDomain string

	// DisableTelemetry suppresses the Auth0-Client header.
	DisableTelemetry bool

	// ClientInfo overrides the default telemetry payload.
	ClientInfo *ClientInfo

	// Retry configures the retry policy. Nil means the default policy
	// (enabled, 3 retries, retry on 429).
	Retry *RetryPolicy

	// Timeout bounds each HTTP attempt. Defaults to 10 seconds.
	Timeout time.Duration

	// ClockTolerance is the leeway applied to time-based ID token claims.
	// Defaults to 60 seconds.
	ClockTolerance time.Duration

	// Transport replaces the default HTTP transport. Useful for testing and
	// custom TLS or proxy setups.
	Transport HTTPTransport

	// Middleware is appended to the built-in request middleware chain and runs
	// after it, in slice order.
	Middleware []Middleware
}

// Validate checks required fields and applies defaults in place.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrConfiguration)
	}

	if strings.TrimSpace(c.Domain) == "" {
		return fmt.Errorf("%w: domain is required", ErrConfiguration)
	}

	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfiguration)
	}

	if c.ClientSecret != "" && c.ClientAssertionSigningKey != nil {
		return fmt.Errorf("%w: client_secret and client_assertion_signing_key are mutually exclusive", ErrConfiguration)
	}

	if c.ClientAssertionSigningAlg == "" {
		c.ClientAssertionSigningAlg = "RS256"
	}

	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}

	if c.ClockTolerance <= 0 {
		c.ClockTolerance = defaultClockTolerance
	}

	if c.Retry == nil {
		c.Retry = defaultRetryPolicy()
	}
	c.Retry.applyDefaults()

	if c.ClientInfo == nil {
		c.ClientInfo = defaultClientInfo()
	}

	return nil
}

// BaseURL returns the tenant base URL.
func (c *Config) BaseURL() string {
	domain := strings.TrimSuffix(c.Domain, "/")
	if strings.HasPrefix(domain, "http://") || strings.HasPrefix(domain, "https://") {
		return domain
	}
	return "https://" + domain
}

// Issuer returns the expected issuer of tokens minted by the tenant.
func (c *Config) Issuer() string {
	return c.BaseURL() + "/"
}

// jwksURL returns the tenant JWKS endpoint used for RS256 verification.
func (c *Config) jwksURL() string {
	return c.BaseURL() + "/.well-known/jwks.json"
}

// defaultClientInfo returns the telemetry payload describing this SDK.
func defaultClientInfo() *ClientInfo {
	return &ClientInfo{
		Name:    "go-auth0",
		Version: Version,
	}
}

// Version is the SDK version reported in the telemetry header.
const Version = "1.0.0"
