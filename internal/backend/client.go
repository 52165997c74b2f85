package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_cart/fixed-checkout/pkg/circuitbreaker"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	maxResponseSize     = 4 << 20
)

var (
	ErrBusiness     = errors.New("backend rejected the request")
	ErrUnauthorized = errors.New("backend rejected the credentials")
	ErrTransport    = errors.New("backend transport failure")
	ErrCircuitOpen  = errors.New("backend temporarily unavailable")
)

// BusinessError is a response with hasError=true. It unwraps to ErrBusiness.
type BusinessError struct {
	Op      string
	Message string
}

func (e *BusinessError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, ErrBusiness)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, ErrBusiness, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return ErrBusiness
}

// Credentials authenticate one backend call on behalf of a session.
type Credentials struct {
	Token         string
	CorrelationID string
}

type Config struct {
	BaseURL          string
	ClientID         string
	ClientSecret     string
	Timeout          time.Duration
	BreakerTimeout   time.Duration
	BreakerThreshold uint32
	// Transport overrides the base round tripper, mostly for tests.
	Transport http.RoundTripper
}

// envelope is the part every backend response shares.
type envelope struct {
	HasError bool   `json:"hasError"`
	Message  string `json:"message"`
}

type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	timeout      time.Duration
	httpClient   *http.Client
	breaker      *circuitbreaker.Breaker[[]byte]
}

func NewClient(cfg Config) *Client {
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	breakerCfg := circuitbreaker.DefaultConfig("commerce-backend")
	if cfg.BreakerTimeout > 0 {
		breakerCfg.Timeout = cfg.BreakerTimeout
	}
	if cfg.BreakerThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.BreakerThreshold
	}
	// the backend answering with a business refusal or a 401 is alive
	breakerCfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrBusiness) || errors.Is(err, ErrUnauthorized)
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		timeout:      cfg.Timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(base),
		},
		breaker: circuitbreaker.New[[]byte](breakerCfg),
	}
}

// call performs one request and decodes the payload into out. Business
// failures come back as *BusinessError; everything else that prevents a
// trustworthy payload is ErrTransport, ErrUnauthorized or ErrCircuitOpen.
func (c *Client) call(ctx context.Context, op, method, path string, creds *Credentials, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, op, method, path, creds, body)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%s: %w", op, ErrCircuitOpen)
	}
	if err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: decode payload: %v", op, ErrTransport, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path string, creds *Credentials, body []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds != nil {
		req.Header.Set("Authorization", "Bearer "+creds.Token)
		if creds.CorrelationID != "" {
			req.Header.Set(HeaderCorrelationID, creds.CorrelationID)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.ErrorContext(ctx, "backend request failed",
			logger.Op(op),
			slog.Duration("duration", time.Since(start)),
			logger.Error(err))
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: read body: %v", op, ErrTransport, err)
	}

	slog.DebugContext(ctx, "backend call",
		logger.Op(op),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	// a 4xx carrying an envelope is still a business answer
	if decodeErr == nil && env.HasError && resp.StatusCode < http.StatusInternalServerError {
		return nil, &BusinessError{Op: op, Message: env.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s: %w: HTTP %d", op, ErrTransport, resp.StatusCode)
	}
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: %w: decode envelope: %v", op, ErrTransport, decodeErr)
	}
	return raw, nil
}
