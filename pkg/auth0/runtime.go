package auth0

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPTransport issues a single HTTP exchange. The abstraction allows tests
// and callers to substitute custom transports; retries and timeouts are
// handled by the pipeline, never by the transport.
type HTTPTransport interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultTransport is the production transport with connection pooling and a
// modern TLS floor.
type defaultTransport struct {
	client *http.Client
}

// newDefaultTransport creates the transport used when none is configured.
func newDefaultTransport() HTTPTransport {
	return &defaultTransport{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
	}
}

// Do executes the HTTP request.
func (t *defaultTransport) Do(req *http.Request) (*http.Response, error) {
	return t.client.Do(req)
}

// runtime is the request pipeline: it turns a RequestDescriptor into an
// authenticated, retried, timed-out HTTP exchange with middleware applied
// around each attempt.
type runtime struct {
	baseURL    string
	transport  HTTPTransport
	retry      *RetryPolicy
	timeout    time.Duration
	middleware []Middleware
	source     ErrorSource
}

// newRuntime builds a pipeline from validated configuration.
func newRuntime(cfg *Config, source ErrorSource, middleware ...Middleware) *runtime {
	transport := cfg.Transport
	if transport == nil {
		transport = newDefaultTransport()
	}

	chain := make([]Middleware, 0, len(middleware)+len(cfg.Middleware)+1)
	if !cfg.DisableTelemetry {
		chain = append(chain, telemetryMiddleware(cfg.ClientInfo))
	}
	chain = append(chain, middleware...)
	chain = append(chain, cfg.Middleware...)

	return &runtime{
		baseURL:    cfg.BaseURL(),
		transport:  transport,
		retry:      cfg.Retry,
		timeout:    cfg.Timeout,
		middleware: chain,
		source:     source,
	}
}

// execute runs the full pipeline for one logical call and returns the final
// response with its body open. Non-2xx responses are returned as *APIError
// with the body consumed. Retries are sequential; an aborted context
// short-circuits immediately and is never retried.
func (r *runtime) execute(ctx context.Context, desc *RequestDescriptor) (*http.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	maxAttempts := 1
	if r.retry.Enabled {
		maxAttempts += r.retry.MaxRetries
	}

	var resp *http.Response
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := sleep(ctx, r.retry.backoff(attempt)); err != nil {
			return nil, err
		}

		var err error
		resp, err = r.attempt(ctx, desc.Clone())
		if err != nil {
			return nil, err
		}

		if !r.retry.retryable(resp.StatusCode) || attempt == maxAttempts-1 {
			break
		}

		// Discard the retryable response before the next attempt.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	for _, mw := range r.middleware {
		if mw.Post == nil {
			continue
		}
		replaced, err := mw.Post(resp)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		if replaced != nil {
			resp = replaced
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		apiErr := newAPIError(r.source, resp, body)
		apiErr.RetriesExhausted = maxAttempts > 1 && r.retry.retryable(resp.StatusCode)
		return nil, apiErr
	}

	return resp, nil
}

// attempt issues one network exchange with the per-attempt timeout applied.
func (r *runtime) attempt(ctx context.Context, desc *RequestDescriptor) (*http.Response, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if r.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, r.timeout)
	}

	resp, err := r.doAttempt(attemptCtx, desc)
	if err != nil {
		if cancel != nil {
			cancel()
		}
		// Distinguish our per-attempt timeout from caller cancellation.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no response within %s", ErrTimeout, r.timeout)
		}
		return nil, err
	}

	if cancel != nil {
		// Release the timeout once the body is fully read.
		resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	}
	return resp, nil
}

// doAttempt builds the request, runs pre middleware in order and calls the
// transport.
func (r *runtime) doAttempt(ctx context.Context, desc *RequestDescriptor) (*http.Response, error) {
	req, err := desc.build(ctx, r.baseURL)
	if err != nil {
		return nil, err
	}

	for _, mw := range r.middleware {
		if mw.Pre == nil {
			continue
		}
		if err := mw.Pre(req); err != nil {
			return nil, err
		}
	}

	return r.transport.Do(req)
}

// do executes the pipeline and decodes a JSON response into out. A nil out
// discards the body (void endpoints).
func (r *runtime) do(ctx context.Context, desc *RequestDescriptor, out any) error {
	resp, err := r.execute(ctx, desc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("auth0: cannot decode %s api response: %w", r.source, err)
	}
	return nil
}

// cancelReadCloser ties a context cancel func to body closure.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
