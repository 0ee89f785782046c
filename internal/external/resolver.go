package external

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"shopsync/internal/config"
)

// ErrBaseURLNotConfigured is returned when no usable external API base URL is set.
var ErrBaseURLNotConfigured = errors.New("external api base url not configured")

// LegacyOrderSyncPath is the order receiver path used by older warehouse deployments.
const LegacyOrderSyncPath = "/api/shopify/sync/receive/orders"

// EndpointKind names an endpoint of the external warehouse API.
type EndpointKind string

const (
	OrderSync     EndpointKind = "ORDER_SYNC"
	SKUQuantities EndpointKind = "SKU_QUANTITIES"
	ProductSync   EndpointKind = "PRODUCT_SYNC"
	TokenValidate EndpointKind = "TOKEN_VALIDATE"
)

// Resolver maps endpoint kinds to absolute URLs. It is immutable once built.
type Resolver struct {
	base  string
	paths map[EndpointKind]string
}

// NewResolver builds a resolver from the external API configuration.
func NewResolver(cfg config.ExternalConfig) (*Resolver, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrBaseURLNotConfigured
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) url", ErrBaseURLNotConfigured, base)
	}

	return &Resolver{
		base: base,
		paths: map[EndpointKind]string{
			OrderSync:     pathOr(cfg.OrderSyncPath, "/api/receive-orders"),
			SKUQuantities: pathOr(cfg.SKUQuantitiesPath, "/api/skus/quantities"),
			ProductSync:   pathOr(cfg.ProductSyncPath, "/api/shopify/sync/products"),
			TokenValidate: pathOr(cfg.TokenValidatePath, "/api/admin/tokens/validate"),
		},
	}, nil
}

func pathOr(p, def string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		p = def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Resolve returns the absolute URL of an endpoint.
func (r *Resolver) Resolve(kind EndpointKind) (string, error) {
	p, ok := r.paths[kind]
	if !ok {
		return "", fmt.Errorf("unknown endpoint kind %q", kind)
	}
	return r.base + p, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (r *Resolver) BaseURL() string {
	return r.base
}
