// Package client drives the offchain lookup round trip against a resolver:
// issue the lookup, fetch the answer from the gateways in order, and hand it
// back to the resolver for verification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"l2resolver/ccip"
	"l2resolver/ens"
	"l2resolver/layout"
	"l2resolver/observability"
	"l2resolver/resolver"
)

const responseLimit = 4 << 20 // 4 MiB

// ErrGatewaysExhausted is returned when no gateway produced an answer.
var ErrGatewaysExhausted = errors.New("client: all gateways failed")

// GatewayError is a non-2xx gateway reply.
type GatewayError struct {
	URL     string
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("gateway %s: status %d: %s", e.URL, e.Status, e.Message)
}

// Client resolves records through a resolver and its gateways.
type Client struct {
	resolver *resolver.Resolver
	http     *http.Client
	logger   *slog.Logger
	metrics  *observability.ResolverMetrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used to reach gateways.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics overrides the metrics sink. A nil sink disables metrics.
func WithMetrics(metrics *observability.ResolverMetrics) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// New returns a client for r. Gateway requests are traced with otelhttp.
func New(r *resolver.Resolver, opts ...Option) *Client {
	c := &Client{
		resolver: r,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  slog.Default(),
		metrics: observability.Resolver(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Text resolves a text record of name.
func (c *Client) Text(ctx context.Context, name, key string) (string, error) {
	res, err := c.Resolve(ctx, name, layout.Text{Key: key})
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// Addr resolves the default chain address of name.
func (c *Client) Addr(ctx context.Context, name string) (common.Address, error) {
	res, err := c.Resolve(ctx, name, layout.Addr{CoinType: layout.CoinTypeETH})
	if err != nil {
		return common.Address{}, err
	}
	return res.Address(), nil
}

// AddrCoin resolves the address of name for coinType.
func (c *Client) AddrCoin(ctx context.Context, name string, coinType uint64) ([]byte, error) {
	res, err := c.Resolve(ctx, name, layout.Addr{CoinType: coinType})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Contenthash resolves the content hash of name.
func (c *Client) Contenthash(ctx context.Context, name string) ([]byte, error) {
	res, err := c.Resolve(ctx, name, layout.Contenthash{})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Resolve looks up field of name through resolve(bytes,bytes).
func (c *Client) Resolve(ctx context.Context, name string, field layout.Field) (*resolver.Result, error) {
	normalized, err := ens.Normalize(name)
	if err != nil {
		return nil, err
	}
	wire, err := ens.DNSEncode(normalized)
	if err != nil {
		return nil, err
	}
	inner, err := ccip.EncodeFieldCall(ens.NameHash(normalized), field)
	if err != nil {
		return nil, err
	}
	lookup, err := c.resolver.Resolve(ctx, wire, inner)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, lookup)
}

// Call runs raw resolver calldata through both phases.
func (c *Client) Call(ctx context.Context, data []byte) (*resolver.Result, error) {
	lookup, err := c.resolver.Call(ctx, data)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, lookup)
}

func (c *Client) complete(ctx context.Context, lookup *ccip.OffchainLookup) (*resolver.Result, error) {
	response, err := c.Fetch(ctx, lookup)
	if err != nil {
		return nil, err
	}
	return c.resolver.ResolveWithProof(ctx, response, lookup.ExtraData)
}

// Fetch asks the lookup's gateways in order and returns the first answer.
// Transport failures and 5xx replies fall through to the next URL; a 4xx
// reply stops the search.
func (c *Client) Fetch(ctx context.Context, lookup *ccip.OffchainLookup) ([]byte, error) {
	var last error
	for _, template := range lookup.URLs {
		data, err := c.fetch(ctx, template, lookup)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			c.metrics.RecordFallback(gwErr.Status)
			if gwErr.Status >= 400 && gwErr.Status < 500 {
				return nil, err
			}
		} else {
			c.metrics.RecordFallback(0)
		}
		c.logger.Warn("gateway attempt failed", "url", template, "error", err)
		last = err
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no gateway urls", ErrGatewaysExhausted)
	}
	return nil, fmt.Errorf("%w: %w", ErrGatewaysExhausted, last)
}

func (c *Client) fetch(ctx context.Context, template string, lookup *ccip.OffchainLookup) ([]byte, error) {
	url, post := ccip.ExpandURL(template, lookup.Sender, lookup.CallData)
	var req *http.Request
	var err error
	if post {
		body, marshalErr := json.Marshal(ccip.Request{Sender: lookup.Sender.Hex(), Data: lookup.CallData})
		if marshalErr != nil {
			return nil, marshalErr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwErr := &GatewayError{URL: url, Status: resp.StatusCode}
		var body ccip.ErrorResponse
		if json.Unmarshal(payload, &body) == nil {
			gwErr.Message = body.Message
		}
		return nil, gwErr
	}
	var body ccip.Response
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return body.Data, nil
}
