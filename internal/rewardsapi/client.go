// Package rewardsapi is an HTTP client for the external rewards engine.
package rewardsapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/rewards-shop/internal/apperr"
	"github.com/xenking/rewards-shop/internal/domain/cart"
	"github.com/xenking/rewards-shop/internal/domain/rewards"
	"github.com/xenking/rewards-shop/internal/wire"
)

var _ rewards.Client = (*Client)(nil)

const (
	maxErrorBody    = 512
	maxResponseBody = 1 << 20
)

// Config holds the rewards engine connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	// Timeout bounds a whole request. Zero means 10s.
	Timeout time.Duration
	// SessionChannel is sent as the "channel" session attribute when set.
	SessionChannel string
}

type options struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	transport      http.RoundTripper
}

// Option configures a Client.
type Option func(*options)

// WithTracerProvider sets the tracer provider for outbound spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for outbound metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTransport overrides the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// Client talks to the rewards engine. Every call is a single attempt.
type Client struct {
	base      *url.URL
	channel   string
	http      *http.Client
	sessionID func() string
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rewards base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("rewards API key is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse rewards base URL")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("rewards base URL %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	o := options{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		transport:      http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}

	rt := otelhttp.NewTransport(
		&bearerTransport{apiKey: cfg.APIKey, next: o.transport},
		otelhttp.WithTracerProvider(o.tracerProvider),
		otelhttp.WithMeterProvider(o.meterProvider),
	)

	return &Client{
		base:    base,
		channel: cfg.SessionChannel,
		http: &http.Client{
			Transport: rt,
			Timeout:   cfg.Timeout,
		},
		sessionID: func() string { return uuid.NewString() },
	}, nil
}

// UpdateProfile upserts the engine-side profile of userID.
func (c *Client) UpdateProfile(ctx context.Context, userID string, attrs map[string]any) error {
	const op = "update profile"

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("userId")
	e.Str(userID)
	e.FieldStart("attributes")
	if err := wire.EncodeAttributes(e, attrs); err != nil {
		return apperr.Wrap(apperr.KindRewardsEngine, op, err)
	}
	e.ObjEnd()

	_, err := c.do(ctx, http.MethodPut, c.base.JoinPath("v1", "profiles", userID), e.Bytes())
	return apperr.Wrap(apperr.KindRewardsEngine, op, err)
}

// EvaluateSession evaluates the cart for userID under a fresh session id.
func (c *Client) EvaluateSession(ctx context.Context, userID string, ct cart.Cart) (*rewards.Response, error) {
	const op = "evaluate session"

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	sessionAttrs := map[string]any{}
	if c.channel != "" {
		sessionAttrs["channel"] = c.channel
	}

	e.ObjStart()
	e.FieldStart("sessionId")
	e.Str(c.sessionID())
	e.FieldStart("userId")
	e.Str(userID)
	e.FieldStart("items")
	wire.EncodeItems(e, ct.Items)
	e.FieldStart("totalAmount")
	wire.EncodeDecimal(e, ct.TotalAmount)
	e.FieldStart("sessionAttributes")
	if err := wire.EncodeAttributes(e, sessionAttrs); err != nil {
		return nil, apperr.Wrap(apperr.KindRewardsEngine, op, err)
	}
	e.ObjEnd()

	body, err := c.do(ctx, http.MethodPost, c.base.JoinPath("v1", "sessions"), e.Bytes())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRewardsEngine, op, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Wrap(apperr.KindRewardsEngine, op, errors.New("empty response body"))
	}

	resp, err := wire.DecodeRewards(jx.DecodeBytes(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRewardsEngine, op, errors.Wrap(err, "decode response"))
	}
	if resp == nil {
		return nil, apperr.Wrap(apperr.KindRewardsEngine, op, errors.New("null response body"))
	}
	return resp, nil
}

// ConfirmLoyalty confirms loyalty points for an order total.
func (c *Client) ConfirmLoyalty(ctx context.Context, userID string, total decimal.Decimal) error {
	const op = "confirm loyalty"

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("totalAmount")
	wire.EncodeDecimal(e, total)
	e.ObjEnd()

	_, err := c.do(ctx, http.MethodPost, c.base.JoinPath("v1", "loyalty", userID, "confirm"), e.Bytes())
	return apperr.Wrap(apperr.KindRewardsEngine, op, err)
}

// do sends body and returns the response body of a 2xx reply.
func (c *Client) do(ctx context.Context, method string, u *url.URL, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return nil, errors.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}

// bearerTransport authenticates every request with the API key. Only the
// method and URI are logged.
type bearerTransport struct {
	apiKey string
	next   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	zctx.From(req.Context()).Info("Rewards engine request",
		zap.String("method", req.Method),
		zap.String("uri", req.URL.RequestURI()),
	)

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.next.RoundTrip(r)
}
