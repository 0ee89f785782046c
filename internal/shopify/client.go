package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"shopsync/internal/config"
)

var tracer = otel.Tracer("shopsync/shopify")

// CallObserver receives the outcome of every Admin API call.
type CallObserver interface {
	ObserveUpstream(target, operation, outcome string, elapsed time.Duration)
}

// Client talks to the Shopify Admin API of one shop.
type Client struct {
	baseURL     string
	apiVersion  string
	accessToken string
	appHandle   string
	timeout     time.Duration

	httpClient *http.Client
	limiter    *rate.Limiter
	observer   CallObserver
	now        func() time.Time
}

// Option customizes a Client
type Option func(*Client)

// WithObserver reports call outcomes to o.
func WithObserver(o CallObserver) Option {
	return func(c *Client) { c.observer = o }
}

// WithClock overrides the clock used for reference document URIs.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates an Admin API client. ShopDomain may carry a scheme;
// https is assumed otherwise.
func NewClient(cfg config.ShopifyConfig, httpClient *http.Client, opts ...Option) (*Client, error) {
	domain := strings.TrimRight(strings.TrimSpace(cfg.ShopDomain), "/")
	if domain == "" {
		return nil, errors.New("shopify shop domain is empty")
	}
	if !strings.HasPrefix(domain, "http://") && !strings.HasPrefix(domain, "https://") {
		domain = "https://" + domain
	}
	if cfg.APIVersion == "" {
		return nil, errors.New("shopify api version is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		baseURL:     domain,
		apiVersion:  cfg.APIVersion,
		accessToken: cfg.AccessToken,
		appHandle:   cfg.AppHandle,
		timeout:     cfg.Timeout,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) adminURL(path string) string {
	return c.baseURL + "/admin/api/" + c.apiVersion + path
}

// shopifyAPIRequest performs one paced, time-bounded Admin API call and
// returns the body of a 2xx response.
func (c *Client) shopifyAPIRequest(ctx context.Context, operation, method, endpoint string, body io.Reader) (respBody []byte, err error) {
	ctx, span := tracer.Start(ctx, "shopify."+operation)
	span.SetAttributes(attribute.String("http.method", method))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.observer != nil {
			c.observer.ObserveUpstream("shopify", operation, outcome, time.Since(start))
		}
	}()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("shopify rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPStatusError(resp.StatusCode, resp.Status, respBody)
	}
	return respBody, nil
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlRequest posts a query and decodes its data member into out.
// Top-level GraphQL errors are returned as *GraphQLErrors.
func (c *Client) graphqlRequest(ctx context.Context, operation, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphQLRequest{
		Query:     strings.TrimSpace(query),
		Variables: variables,
	})
	if err != nil {
		return err
	}

	raw, err := c.shopifyAPIRequest(ctx, operation, http.MethodPost, c.adminURL("/graphql.json"), bytes.NewReader(payload))
	if err != nil {
		return err
	}

	var resp graphQLResponse[json.RawMessage]
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode shopify graphql response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return &GraphQLErrors{Errors: resp.Errors}
	}
	if out == nil {
		return nil
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return errors.New("shopify graphql response missing data")
	}
	return json.Unmarshal(resp.Data, out)
}
