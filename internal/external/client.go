package external

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

	"shopsync/internal/model"
	"shopsync/pkg/breaker"
)

var tracer = otel.Tracer("shopsync/external")

const maxErrorBody = 2048

// StatusError is a non-2xx response from the external API.
type StatusError struct {
	Endpoint   EndpointKind
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("external %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// CallObserver receives the outcome of every external call.
type CallObserver interface {
	ObserveUpstream(target, operation, outcome string, elapsed time.Duration)
}

// Client calls the external warehouse API.
type Client struct {
	resolver   *Resolver
	httpClient *http.Client
	timeout    time.Duration
	breakers   *breaker.Manager
	observer   CallObserver
}

// NewClient creates a client. A nil breaker manager disables circuit breaking.
func NewClient(resolver *Resolver, httpClient *http.Client, timeout time.Duration, breakers *breaker.Manager, observer CallObserver) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		resolver:   resolver,
		httpClient: httpClient,
		timeout:    timeout,
		breakers:   breakers,
		observer:   observer,
	}
}

// do sends one request to kind and returns the raw 2xx body. Non-2xx
// responses come back as *StatusError carrying the body.
func (c *Client) do(ctx context.Context, kind EndpointKind, method string, payload any) (body []byte, err error) {
	endpoint, err := c.resolver.Resolve(kind)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "external."+strings.ToLower(string(kind)))
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.url", endpoint))
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			if breaker.IsCircuitBreakerError(err) {
				outcome = "rejected"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if c.observer != nil {
			c.observer.ObserveUpstream("external", string(kind), outcome, time.Since(start))
		}
	}()

	var reqBody []byte
	if payload != nil {
		reqBody, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", kind, err)
		}
	}

	err = c.breakers.Execute(ctx, string(kind), func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var rd io.Reader
		if reqBody != nil {
			rd = bytes.NewReader(reqBody)
		}
		req, err := http.NewRequestWithContext(callCtx, method, endpoint, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("ngrok-skip-browser-warning", "true")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Endpoint: kind, StatusCode: resp.StatusCode, Body: truncate(body)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// CountsAsFailure reports whether err should count against a circuit
// breaker. Client errors (4xx) mean the upstream is healthy.
func CountsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// FetchSKUQuantities reads the warehouse snapshot and validates its envelope.
func (c *Client) FetchSKUQuantities(ctx context.Context) (*model.SKUQuantitiesResponse, error) {
	body, err := c.do(ctx, SKUQuantities, http.MethodGet, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch sku quantities: %w", err)
	}
	var resp model.SKUQuantitiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode sku quantities: %w", err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeliverOrder posts one order envelope to the order receiver.
func (c *Client) DeliverOrder(ctx context.Context, envelope *model.OutboundOrderEnvelope) error {
	if _, err := c.do(ctx, OrderSync, http.MethodPost, envelope); err != nil {
		return fmt.Errorf("deliver order: %w", err)
	}
	return nil
}

// TokenValidation is the external verdict on a shop access token.
type TokenValidation struct {
	Valid      bool
	StatusCode int
	Message    string
}

type tokenValidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ValidateShopToken asks the external API whether token is valid and unused.
// A rejection is reported through TokenValidation; only transport or decode
// failures return an error.
func (c *Client) ValidateShopToken(ctx context.Context, token string) (TokenValidation, error) {
	body, err := c.do(ctx, TokenValidate, http.MethodPost, map[string]string{"token": strings.TrimSpace(token)})
	if err != nil {
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			return TokenValidation{}, fmt.Errorf("validate token: %w", err)
		}
		v := TokenValidation{StatusCode: statusErr.StatusCode}
		var parsed tokenValidateResponse
		if json.Unmarshal([]byte(statusErr.Body), &parsed) == nil {
			v.Message = parsed.Message
		}
		return v, nil
	}

	var parsed tokenValidateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TokenValidation{}, fmt.Errorf("decode token validation: %w", err)
	}
	return TokenValidation{Valid: parsed.Success, StatusCode: http.StatusOK, Message: parsed.Message}, nil
}

// OrderSink delivers relayed orders over HTTP.
type OrderSink struct {
	client *Client
}

// NewOrderSink wraps c as a relay sink.
func NewOrderSink(c *Client) *OrderSink {
	return &OrderSink{client: c}
}

// Deliver posts the envelope once.
func (s *OrderSink) Deliver(ctx context.Context, envelope *model.OutboundOrderEnvelope) error {
	return s.client.DeliverOrder(ctx, envelope)
}

// Name identifies the sink in logs and metrics.
func (s *OrderSink) Name() string { return "http" }
