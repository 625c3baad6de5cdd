// Package httpclient provides the HTTP transport shared by the model
// backends: bounded retries with linear backoff and W3C trace-context
// propagation on outgoing requests.
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/ray729alp/mqa-chatbot/pkg/utils/json"
)

const (
	defaultTimeout = 60 * time.Second

	// retryBaseDelay grows linearly with the attempt number.
	retryBaseDelay = 500 * time.Millisecond
)

// Client retries transport failures and 5xx answers. 4xx answers are returned
// as-is; replaying a rejected request cannot change the outcome.
type Client struct {
	httpClient *http.Client
	maxRetries int
}

// NewClient builds a client. A zero timeout falls back to 60s and negative
// retry counts mean no retries, so callers may pass unvalidated settings.
func NewClient(timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// DoRequest executes req, retrying on transport errors and 5xx responses.
// Between attempts it waits retryBaseDelay times the attempt number, or bails
// out when the request context is cancelled.
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	injectTraceContext(req)

	rewind, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		rewind()

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= http.StatusInternalServerError:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)
		default:
			return resp, nil
		}

		if attempt == c.maxRetries {
			return nil, lastErr
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(time.Duration(attempt+1) * retryBaseDelay):
		}
	}
}

// bufferBody reads the request body into memory and returns a function that
// reinstalls it, so the request can be replayed across attempts. Model
// backend payloads are small enough to hold buffered.
func bufferBody(req *http.Request) (func(), error) {
	if req.Body == nil {
		return func() {}, nil
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	_ = req.Body.Close()

	return func() {
		req.Body = io.NopCloser(bytes.NewReader(raw))
	}, nil
}

// DoJSON executes req and decodes the JSON response into v; a nil v discards
// the body. Error responses become errors carrying the body text.
func (c *Client) DoJSON(req *http.Request, v any) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// injectTraceContext propagates the active span's W3C trace context into the
// outgoing headers. Without a global propagator or an active span it is a
// no-op.
func injectTraceContext(req *http.Request) {
	if req == nil || req.Context() == nil {
		return
	}
	if propagator := otel.GetTextMapPropagator(); propagator != nil {
		propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	}
}
