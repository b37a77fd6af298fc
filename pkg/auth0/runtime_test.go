package auth0

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRuntimeConfig(t *testing.T, serverURL string) *Config {
	t.Helper()

	cfg := &Config{
		Domain:   serverURL,
		ClientID: "test-client",
		Retry: &RetryPolicy{
			Enabled:    true,
			MaxRetries: 2,
			RetryWhen:  []int{http.StatusTooManyRequests},
			BaseDelay:  time.Millisecond,
			MaxDelay:   10 * time.Millisecond,
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestRuntime_RetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceAuthAPI)

	var out map[string]bool
	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, &out)
	require.NoError(t, err)
	assert.True(t, out["ok"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestRuntime_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":"rate_limited","error_description":"too many requests"}`)
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceAuthAPI)

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate_limited", apiErr.Code)
	assert.True(t, apiErr.RetriesExhausted)
	assert.Equal(t, SourceAuthAPI, apiErr.Source)

	// Initial attempt plus MaxRetries.
	assert.Equal(t, int32(3), calls.Load())
}

func TestRuntime_ZeroRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testRuntimeConfig(t, srv.URL)
	cfg.Retry.MaxRetries = 0
	rt := newRuntime(cfg, SourceAuthAPI)

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

	// No retry ever ran, so none were exhausted.
	assert.False(t, apiErr.RetriesExhausted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRuntime_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPreconditionRequired)
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceAuthAPI)

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusPreconditionRequired, apiErr.StatusCode)
	assert.False(t, apiErr.RetriesExhausted)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRuntime_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	cfg := testRuntimeConfig(t, srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	rt := newRuntime(cfg, SourceAuthAPI)

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRuntime_CallerCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceAuthAPI)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := rt.do(ctx, &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRuntime_TelemetryHeader(t *testing.T) {
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Auth0-Client")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceAuthAPI)

	require.NoError(t, rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil))
	require.NotEmpty(t, header)

	decoded, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)

	var info ClientInfo
	require.NoError(t, json.Unmarshal(decoded, &info))
	assert.Equal(t, "go-auth0", info.Name)
	assert.Equal(t, Version, info.Version)
}

func TestRuntime_TelemetryDisabled(t *testing.T) {
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("Auth0-Client")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	cfg := testRuntimeConfig(t, srv.URL)
	cfg.DisableTelemetry = true
	rt := newRuntime(cfg, SourceAuthAPI)

	require.NoError(t, rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil))
	assert.Empty(t, header)
}

func TestRuntime_MiddlewareOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	var order []string
	record := func(name string) Middleware {
		return Middleware{
			Name: name,
			Pre: func(*http.Request) error {
				order = append(order, name)
				return nil
			},
		}
	}

	cfg := testRuntimeConfig(t, srv.URL)
	cfg.Middleware = []Middleware{record("config")}
	rt := newRuntime(cfg, SourceAuthAPI, record("builtin"))

	require.NoError(t, rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil))
	assert.Equal(t, []string{"builtin", "config"}, order)
}

func TestRuntime_PreMiddlewareError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	}))
	defer srv.Close()

	boom := errors.New("boom")
	cfg := testRuntimeConfig(t, srv.URL)
	rt := newRuntime(cfg, SourceAuthAPI, Middleware{
		Name: "failing",
		Pre:  func(*http.Request) error { return boom },
	})

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.ErrorIs(t, err, boom)
}

func TestRuntime_PostMiddleware(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	var status int
	cfg := testRuntimeConfig(t, srv.URL)
	rt := newRuntime(cfg, SourceAuthAPI, Middleware{
		Name: "observer",
		Post: func(resp *http.Response) (*http.Response, error) {
			status = resp.StatusCode
			return nil, nil
		},
	})

	require.NoError(t, rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil))
	assert.Equal(t, http.StatusOK, status)
}

func TestRuntime_UnparseableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "gateway exploded")
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceManagementAPI)

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, []byte("gateway exploded"), apiErr.RawBody)
	assert.Contains(t, apiErr.Error(), "management api error (500)")
	assert.Contains(t, apiErr.Error(), http.StatusText(http.StatusInternalServerError))
}

func TestRuntime_ManagementErrorShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"statusCode":404,"error":"Not Found","errorCode":"inexistent_user","message":"The user does not exist."}`)
	}))
	defer srv.Close()

	rt := newRuntime(testRuntimeConfig(t, srv.URL), SourceManagementAPI)

	err := rt.do(context.Background(), &RequestDescriptor{Method: http.MethodGet, Path: "/test"}, nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "inexistent_user", apiErr.Code)
	assert.Equal(t, "The user does not exist.", apiErr.Description)
}
