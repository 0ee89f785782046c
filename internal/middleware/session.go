package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"shopsync/pkg/utils"
)

const (
	// AuthorizationHeader carries the App Bridge session token
	AuthorizationHeader = "Authorization"
	// BearerPrefix Bearer prefix
	BearerPrefix = "Bearer "
	// ShopDomainKey is the context key of the authenticated shop domain
	ShopDomainKey = "shop_domain"
	// SessionKey is the context key of the verified session claims
	SessionKey = "session"
)

var errShopMismatch = errors.New("issuer does not match destination shop")

// SessionClaims are the claims of a Shopify App Bridge session token.
type SessionClaims struct {
	Dest string `json:"dest"`
	Sid  string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// SessionVerifier checks App Bridge session tokens signed with the app secret.
type SessionVerifier struct {
	apiKey string
	secret []byte
	parser *jwt.Parser
}

// NewSessionVerifier creates a verifier; aud must equal apiKey.
func NewSessionVerifier(apiKey, apiSecret string, leeway time.Duration) *SessionVerifier {
	return &SessionVerifier{
		apiKey: apiKey,
		secret: []byte(apiSecret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(apiKey),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// Verify parses token and returns its claims with the shop host from dest.
func (v *SessionVerifier) Verify(token string) (*SessionClaims, string, error) {
	claims := &SessionClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, "", err
	}

	dest, err := url.Parse(claims.Dest)
	if err != nil || dest.Host == "" {
		return nil, "", errors.New("invalid dest claim")
	}
	if iss, err := url.Parse(claims.Issuer); err != nil || iss.Host != dest.Host {
		return nil, "", errShopMismatch
	}
	return claims, dest.Host, nil
}

// SessionAuth requires a valid session token and stores the shop domain
// under ShopDomainKey.
func SessionAuth(verifier *SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthorizationHeader)
		if !strings.HasPrefix(header, BearerPrefix) {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Missing session token", nil)
			c.Abort()
			return
		}

		claims, shop, err := verifier.Verify(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid session token", err)
			c.Abort()
			return
		}

		c.Set(SessionKey, claims)
		c.Set(ShopDomainKey, shop)
		c.Next()
	}
}
