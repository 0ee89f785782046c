package access

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"golang.org/x/crypto/bcrypt"

	"shopsync/internal/external"
	"shopsync/internal/model"
	"shopsync/internal/repository"
	"shopsync/pkg/log"
	"shopsync/pkg/utils"
)

// Messages returned to the admin frontend.
const (
	MsgFieldsRequired  = "Token and shop domain are required"
	MsgDomainRequired  = "Shop domain is required"
	MsgTokenRejected   = "Invalid or already used token"
	MsgValidationError = "An error occurred during token validation"
	MsgCheckError      = "An error occurred while checking access"
)

// touchInterval bounds how often a cached shop's last access time is written.
const touchInterval = time.Minute

// TokenValidator checks access tokens against the external API.
type TokenValidator interface {
	ValidateShopToken(ctx context.Context, token string) (external.TokenValidation, error)
}

// Service gates the admin app behind one-time access tokens.
type Service interface {
	// ValidateToken redeems token for shopDomain and records the grant.
	ValidateToken(ctx context.Context, token, shopDomain string) (*model.ShopAccess, error)

	// CheckAccess reports whether shopDomain has a validated token.
	CheckAccess(ctx context.Context, shopDomain string) (*model.ShopAccess, bool, error)
}

type accessService struct {
	repo      repository.ShopAccessRepository
	validator TokenValidator
	cache     *bigcache.BigCache
	hashCost  int
	now       func() time.Time
}

// NewService creates an access service. cache may be nil.
func NewService(repo repository.ShopAccessRepository, validator TokenValidator, cache *bigcache.BigCache) Service {
	return &accessService{
		repo:      repo,
		validator: validator,
		cache:     cache,
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// NewCache creates the shop access lookup cache.
func NewCache(ctx context.Context, ttl time.Duration) (*bigcache.BigCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10000
	cfg.Verbose = false
	return bigcache.New(ctx, cfg)
}

func (s *accessService) ValidateToken(ctx context.Context, token, shopDomain string) (*model.ShopAccess, error) {
	token = strings.TrimSpace(token)
	domain := model.NormalizeShopDomain(shopDomain)
	if token == "" || domain == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, MsgFieldsRequired)
	}

	verdict, err := s.validator.ValidateShopToken(ctx, token)
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeUpstreamError, MsgValidationError)
	}
	if !verdict.Valid {
		log.WithFields(log.Fields{
			"shop":    domain,
			"status":  verdict.StatusCode,
			"message": verdict.Message,
		}).Warn("Token validation failed via external API")
		msg := verdict.Message
		if msg == "" {
			msg = MsgTokenRejected
		}
		return nil, utils.NewError(utils.CodeInvalidParam, msg)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), s.hashCost)
	if err != nil {
		return nil, utils.WrapError(err, utils.CodeInternalError, MsgValidationError)
	}

	now := s.now().UTC()
	access := &model.ShopAccess{
		ShopDomain:       domain,
		IsTokenValidated: true,
		TokenHash:        string(hash),
		ValidatedAt:      &now,
		LastAccessAt:     &now,
	}
	if err := s.repo.Upsert(ctx, access); err != nil {
		return nil, utils.WrapError(fmt.Errorf("save shop access: %w", err), utils.CodeInternalError, MsgValidationError)
	}
	s.remember(access)

	log.WithFields(log.Fields{
		"shop":         domain,
		"validated_at": now,
	}).Info("Token validated successfully")
	return access, nil
}

func (s *accessService) CheckAccess(ctx context.Context, shopDomain string) (*model.ShopAccess, bool, error) {
	domain := model.NormalizeShopDomain(shopDomain)
	if domain == "" {
		return nil, false, utils.NewError(utils.CodeInvalidParam, MsgDomainRequired)
	}

	access := s.cached(domain)
	if access == nil {
		found, err := s.repo.FindByDomain(ctx, domain)
		if err != nil {
			return nil, false, utils.WrapError(err, utils.CodeInternalError, MsgCheckError)
		}
		access = found
	}
	if access == nil || !access.IsTokenValidated {
		return nil, false, nil
	}

	now := s.now().UTC()
	if access.LastAccessAt == nil || now.Sub(*access.LastAccessAt) >= touchInterval {
		if err := s.repo.TouchLastAccess(ctx, domain, now); err != nil {
			return nil, false, utils.WrapError(err, utils.CodeInternalError, MsgCheckError)
		}
		access.LastAccessAt = &now
	}
	s.remember(access)
	return access, true, nil
}

func (s *accessService) cached(domain string) *model.ShopAccess {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(domain)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			log.WithError(err).WithField("shop", domain).Warn("Shop access cache read failed")
		}
		return nil
	}
	var access model.ShopAccess
	if err := json.Unmarshal(raw, &access); err != nil {
		return nil
	}
	return &access
}

// remember caches validated grants only.
func (s *accessService) remember(access *model.ShopAccess) {
	if s.cache == nil || !access.IsTokenValidated {
		return
	}
	raw, err := json.Marshal(access)
	if err != nil {
		return
	}
	if err := s.cache.Set(access.ShopDomain, raw); err != nil {
		log.WithError(err).WithField("shop", access.ShopDomain).Warn("Shop access cache write failed")
	}
}
