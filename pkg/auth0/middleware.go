package auth0

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"regexp"
)

// Middleware hooks into the request pipeline. Both hooks are optional. Pre
// hooks run in registration order before each network attempt and may rewrite
// the outgoing request. Post hooks run in registration order after a final,
// non-retried response and may replace it entirely.
type Middleware struct {
	// Name identifies the middleware in errors.
	Name string

	// Pre rewrites the outgoing request before the attempt.
	Pre func(req *http.Request) error

	// Post observes or replaces the final response.
	Post func(resp *http.Response) (*http.Response, error)
}

// telemetryMiddleware injects the Auth0-Client header carrying a base64
// encoded JSON description of the SDK.
func telemetryMiddleware(info *ClientInfo) Middleware {
	encoded, err := json.Marshal(info)
	if err != nil {
		encoded = nil
	}
	value := base64.StdEncoding.EncodeToString(encoded)

	return Middleware{
		Name: "telemetry",
		Pre: func(req *http.Request) error {
			if value != "" && req.Header.Get("Auth0-Client") == "" {
				req.Header.Set("Auth0-Client", value)
			}
			return nil
		},
	}
}

// customDomainPaths is the fixed whitelist of Management API paths that honor
// the Auth0-Custom-Domain header. Paths outside this set never receive it.
var customDomainPaths = []*regexp.Regexp{
	regexp.MustCompile(`^/api/v2/users(/.*)?$`),
	regexp.MustCompile(`^/api/v2/jobs/verification-email$`),
	regexp.MustCompile(`^/api/v2/tickets/(email-verification|password-change)$`),
	regexp.MustCompile(`^/api/v2/organizations/[^/]+/invitations$`),
	regexp.MustCompile(`^/api/v2/guardian/enrollments/ticket$`),
}

// customDomainMiddleware injects the Auth0-Custom-Domain header on
// whitelisted paths when a custom domain is configured.
func customDomainMiddleware(customDomain string) Middleware {
	return Middleware{
		Name: "custom-domain",
		Pre: func(req *http.Request) error {
			if customDomain == "" {
				return nil
			}
			for _, pattern := range customDomainPaths {
				if pattern.MatchString(req.URL.Path) {
					req.Header.Set("Auth0-Custom-Domain", customDomain)
					return nil
				}
			}
			return nil
		},
	}
}

// bearerMiddleware injects an Authorization header, resolving the token
// through fn on every attempt so refreshed tokens are picked up mid-call.
func bearerMiddleware(fn func(req *http.Request) (string, error)) Middleware {
	return Middleware{
		Name: "bearer",
		Pre: func(req *http.Request) error {
			token, err := fn(req)
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+token)
			return nil
		},
	}
}
