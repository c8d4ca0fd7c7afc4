package stock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Store is the movement log as the service sees it.
type Store interface {
	Insert(ctx context.Context, m Movement) (int64, error)
	ListByReference(ctx context.Context, refType string, refID int64) ([]Movement, error)
	CurrentStock(ctx context.Context, productID int64, variationID *int64, branchID int64) (decimal.Decimal, error)
	DeleteByReference(ctx context.Context, refType string, refID int64) error
}

// Service fronts the movement log with a read-through stock cache. Every
// append invalidates the affected key so readers never see a stale fold.
type Service struct {
	store  Store
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewService constructs Service. The cache is optional.
func NewService(store Store, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{store: store, cache: cache, ttl: ttl, logger: logger}
}

func stockKey(productID int64, variationID *int64, branchID int64) string {
	if variationID != nil {
		return fmt.Sprintf("stock:%d:%d:%d", productID, *variationID, branchID)
	}
	return fmt.Sprintf("stock:%d:-:%d", productID, branchID)
}

// Append validates and inserts a movement, then drops the cached fold.
func (s *Service) Append(ctx context.Context, m Movement) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	id, err := s.store.Insert(ctx, m)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, m)
	return id, nil
}

func (s *Service) invalidate(ctx context.Context, m Movement) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, stockKey(m.ProductID, m.VariationID, m.BranchID)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("stock cache invalidate failed", slog.Int64("product_id", m.ProductID), slog.Any("error", err))
	}
}

// CurrentStock returns the fold over all movements, served from cache when
// fresh. A cache miss or error always falls back to the store.
func (s *Service) CurrentStock(ctx context.Context, productID int64, variationID *int64, branchID int64) (decimal.Decimal, error) {
	key := stockKey(productID, variationID, branchID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			if qty, err := decimal.NewFromString(raw); err == nil {
				return qty, nil
			}
		}
	}
	qty, err := s.store.CurrentStock(ctx, productID, variationID, branchID)
	if err != nil {
		return decimal.Zero, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, qty.String(), s.ttl).Err(); err != nil && s.logger != nil {
			s.logger.Warn("stock cache set failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return qty, nil
}

// ListByReference passes through to the store.
func (s *Service) ListByReference(ctx context.Context, refType string, refID int64) ([]Movement, error) {
	return s.store.ListByReference(ctx, refType, refID)
}

// DeleteByReference removes movements for a draft being hard deleted and
// invalidates each affected fold.
func (s *Service) DeleteByReference(ctx context.Context, refType string, refID int64) error {
	movements, err := s.store.ListByReference(ctx, refType, refID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteByReference(ctx, refType, refID); err != nil {
		return err
	}
	for _, m := range movements {
		s.invalidate(ctx, m)
	}
	return nil
}
