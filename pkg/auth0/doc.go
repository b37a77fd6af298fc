// Package auth0 is a client SDK for an Auth0-compatible identity platform.
//
// The package wraps the platform's Authentication and Management REST APIs
// around a shared request pipeline that handles client authentication,
// retries, timeouts and middleware, and validates returned ID tokens against
// OIDC rules.
//
// # Authentication API
//
//	auth, err := auth0.New(&auth0.Config{
//		Domain:       "tenant.auth0.com",
//		ClientID:     "client-id",
//		ClientSecret: "client-secret",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	set, err := auth.ClientCredentials(ctx, auth0.ClientCredentialsRequest{
//		Audience: "https://api.example.com",
//	})
//
// Confidential clients may authenticate with a signed JWT assertion instead
// of a shared secret by setting ClientAssertionSigningKey; public clients
// configure neither and rely on PKCE.
//
// # Machine-to-machine tokens
//
// TokenProvider caches access tokens and refreshes them single-flight:
//
//	provider := auth0.NewTokenProvider(auth, "https://api.example.com")
//	token, err := provider.GetAccessToken(ctx)
//
// The provider also adapts to golang.org/x/oauth2 via TokenSource.
//
// # Management API
//
//	mgmt, err := auth0.NewManagement(cfg)
//	user, err := mgmt.User(ctx, "auth0|123")
//
// # Errors
//
// Non-2xx responses surface as *APIError. Configuration problems wrap
// ErrConfiguration, attempt timeouts wrap ErrTimeout and ID token failures
// wrap ErrIDTokenValidation, all matchable with errors.Is.
package auth0
