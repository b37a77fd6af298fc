package auth0

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfiguration indicates the client configuration or a request is
	// missing required setup. Configuration errors are never retried.
	ErrConfiguration = errors.New("auth0: invalid configuration")

	// ErrTimeout indicates an HTTP attempt was aborted because the configured
	// timeout elapsed before response headers were received.
	ErrTimeout = errors.New("auth0: request timeout")

	// ErrIDTokenValidation indicates an ID token failed one of the OIDC
	// validation rules. Always fatal to the enclosing grant call.
	ErrIDTokenValidation = errors.New("auth0: id token validation failed")

	// ErrMissingToken indicates no token was provided where one is required.
	ErrMissingToken = errors.New("auth0: missing token")
)

// ErrorSource identifies which API surface produced an APIError.
type ErrorSource string

const (
	SourceAuthAPI       ErrorSource = "auth"
	SourceManagementAPI ErrorSource = "management"
	SourceUserInfo      ErrorSource = "userinfo"
)

// APIError represents a non-2xx response from the platform. The same type is
// used for Authentication API, Management API and UserInfo responses,
// discriminated by Source.
type APIError struct {
	// Source identifies the API surface that produced the error.
	Source ErrorSource

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Code is the OAuth2 error code (e.g. "invalid_grant") when the body
	// carried one, or the Management API "errorCode" field.
	Code string

	// Description is the error_description or message field, best effort.
	Description string

	// RawBody is the unparsed response body.
	RawBody []byte

	// Headers are the response headers, useful for rate-limit metadata.
	Headers http.Header

	// RetriesExhausted is true when the response status was retryable and at
	// least one retry was attempted before the budget ran out.
	RetriesExhausted bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" && e.Description != "" {
		return fmt.Sprintf("auth0: %s api error (%d): %s: %s", e.Source, e.StatusCode, e.Code, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("auth0: %s api error (%d): %s", e.Source, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("auth0: %s api error (%d): %s", e.Source, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsAuthorizationPending reports whether the error is the CIBA
// "authorization_pending" state. Callers should keep polling.
func (e *APIError) IsAuthorizationPending() bool {
	return e.Code == "authorization_pending"
}

// IsSlowDown reports whether the error is the CIBA "slow_down" state.
// Callers should increase their polling interval before retrying.
func (e *APIError) IsSlowDown() bool {
	return e.Code == "slow_down"
}

// IsAccessDenied reports whether the end user denied the request. Terminal.
func (e *APIError) IsAccessDenied() bool {
	return e.Code == "access_denied"
}

// IsMFARequired reports whether the grant requires a multi-factor challenge.
// The mfa_token needed for the challenge is in the raw body.
func (e *APIError) IsMFARequired() bool {
	return e.Code == "mfa_required"
}

// MFAToken extracts the mfa_token field from an mfa_required error body.
func (e *APIError) MFAToken() string {
	var payload struct {
		MFAToken string `json:"mfa_token"`
	}
	if err := json.Unmarshal(e.RawBody, &payload); err != nil {
		return ""
	}
	return payload.MFAToken
}

// newAPIError builds an APIError from a non-2xx response body. Body parsing is
// best effort; an unparseable body produces a generic error carrying the raw
// bytes and never fails itself.
func newAPIError(source ErrorSource, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Source:     source,
		StatusCode: resp.StatusCode,
		RawBody:    body,
		Headers:    resp.Header,
	}

	// Management API bodies carry both "error" and "errorCode", so the
	// Management fields win when present; otherwise fall back to the
	// Authentication API shape per RFC 6749.
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"errorCode"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.ErrorCode != "" || payload.Message != "":
			apiErr.Code = payload.ErrorCode
			apiErr.Description = payload.Message
		case payload.Error != "":
			apiErr.Code = payload.Error
			apiErr.Description = payload.ErrorDescription
		}
	}

	return apiErr
}
