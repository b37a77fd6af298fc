package auth0

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T, handler http.HandlerFunc) (*Authentication, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	auth, err := New(&Config{
		Domain:       srv.URL,
		ClientID:     "test-client",
		ClientSecret: "test-secret",
	})
	require.NoError(t, err)
	return auth, srv
}

func TestTokenProvider_SingleFlight(t *testing.T) {
	var calls atomic.Int32
	auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		// Hold the first refresh open long enough for all waiters to pile up.
		time.Sleep(50 * time.Millisecond)
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	})

	provider := NewTokenProvider(auth, "https://api.example.com")

	var wg sync.WaitGroup
	tokens := make([]string, 3)
	errs := make([]error, 3)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = provider.GetAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "tok-1", tokens[0])
	assert.Equal(t, tokens[0], tokens[1])
	assert.Equal(t, tokens[1], tokens[2])
}

func TestTokenProvider_CachedUntilExpiry(t *testing.T) {
	var calls atomic.Int32
	auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, calls.Add(1))
	})

	provider := NewTokenProvider(auth, "https://api.example.com")

	base := time.Now()
	provider.now = func() time.Time { return base }

	token, err := provider.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	// Still inside the usable window.
	provider.now = func() time.Time { return base.Add(3600*time.Second - 11*time.Second) }
	token, err = provider.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, int32(1), calls.Load())

	// Inside the leeway window the token counts as expired.
	provider.now = func() time.Time { return base.Add(3600*time.Second - 5*time.Second) }
	token, err = provider.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenProvider_FailureSharedAndNotCached(t *testing.T) {
	var calls atomic.Int32
	var failing atomic.Bool
	failing.Store(true)

	auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if failing.Load() {
			time.Sleep(50 * time.Millisecond)
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"access_denied","error_description":"unauthorized"}`)
			return
		}
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":3600}`, n)
	})

	provider := NewTokenProvider(auth, "https://api.example.com")

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = provider.GetAccessToken(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, err := range errs {
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	}

	// The failure was not cached; the next call refreshes successfully.
	failing.Store(false)
	token, err := provider.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
}

func TestTokenProvider_ScopeAndAudienceForwarded(t *testing.T) {
	var form map[string]string
	auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = map[string]string{
			"grant_type": r.PostForm.Get("grant_type"),
			"audience":   r.PostForm.Get("audience"),
			"scope":      r.PostForm.Get("scope"),
		}
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	})

	provider := NewTokenProvider(auth, "https://api.example.com", "read:users", "update:users")

	_, err := provider.GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", form["grant_type"])
	assert.Equal(t, "https://api.example.com", form["audience"])
	assert.Equal(t, "read:users update:users", form["scope"])
}

func TestTokenProvider_TokenSource(t *testing.T) {
	auth, _ := newTestAuth(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok","token_type":"Bearer","expires_in":3600}`)
	})

	provider := NewTokenProvider(auth, "https://api.example.com")
	source := provider.TokenSource(context.Background())

	token, err := source.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.False(t, token.Expiry.IsZero())
}
