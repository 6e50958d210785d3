package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BalanceSnapshot is the cached projection of a wallet row.
type BalanceSnapshot struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	PlayerID  uuid.UUID       `json:"player_id"`
	PartnerID uuid.UUID       `json:"partner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	IsLocked  bool            `json:"is_locked"`
	CachedAt  time.Time       `json:"cached_at"`
}

// BalanceCache composes the local and shared tiers behind one facade.
// Reads go L1 then L2, promoting L2 hits into L1. Invalidate is the single
// entry point that clears both tiers under both key forms.
type BalanceCache struct {
	local     CacheTier
	shared    CacheTier
	localTTL  time.Duration
	sharedTTL time.Duration
	prefix    string
	logger    *zap.Logger
}

// NewBalanceCache creates the two-tier facade.
func NewBalanceCache(local, shared CacheTier, localTTL, sharedTTL time.Duration, prefix string, logger *zap.Logger) *BalanceCache {
	if prefix == "" {
		prefix = "wallet"
	}
	return &BalanceCache{
		local:     local,
		shared:    shared,
		localTTL:  localTTL,
		sharedTTL: sharedTTL,
		prefix:    prefix,
		logger:    logger,
	}
}

func (bc *BalanceCache) walletKey(walletID uuid.UUID) string {
	return fmt.Sprintf("%s:balance:wallet:%s", bc.prefix, walletID)
}

func (bc *BalanceCache) playerKey(playerID, partnerID uuid.UUID) string {
	return fmt.Sprintf("%s:balance:player:%s:%s", bc.prefix, playerID, partnerID)
}

// Get returns the cached snapshot for a (player, partner) pair, or
// ErrCacheMiss when neither tier holds it. Tier failures are logged and
// treated as misses.
func (bc *BalanceCache) Get(ctx context.Context, playerID, partnerID uuid.UUID) (*BalanceSnapshot, error) {
	start := time.Now()
	defer func() {
		cacheLatency.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	key := bc.playerKey(playerID, partnerID)

	if data, err := bc.local.Get(ctx, key); err == nil {
		snapshot, decodeErr := decodeSnapshot(data)
		if decodeErr == nil {
			cacheHits.WithLabelValues("local").Inc()
			return snapshot, nil
		}
		bc.logger.Warn("failed to decode local cache entry", zap.String("key", key), zap.Error(decodeErr))
	} else if !errors.Is(err, ErrCacheMiss) {
		cacheErrors.WithLabelValues("local", "get").Inc()
		bc.logger.Warn("local cache get failed", zap.String("key", key), zap.Error(err))
	}

	data, err := bc.shared.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			cacheErrors.WithLabelValues("shared", "get").Inc()
			bc.logger.Warn("shared cache get failed", zap.String("key", key), zap.Error(err))
		}
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		bc.logger.Warn("failed to decode shared cache entry", zap.String("key", key), zap.Error(err))
		cacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	// Promote into the faster tier.
	if err := bc.local.Set(ctx, key, data, bc.localTTL); err != nil {
		cacheErrors.WithLabelValues("local", "set").Inc()
		bc.logger.Warn("failed to promote cache entry", zap.String("key", key), zap.Error(err))
	}
	cacheHits.WithLabelValues("shared").Inc()

	return snapshot, nil
}

// Put stores a snapshot in both tiers under both key forms. Failures are
// logged and reported but must never fail the calling operation.
func (bc *BalanceCache) Put(ctx context.Context, snapshot *BalanceSnapshot) error {
	start := time.Now()
	defer func() {
		cacheLatency.WithLabelValues("put").Observe(time.Since(start).Seconds())
	}()

	snapshot.CachedAt = time.Now().UTC()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal balance snapshot: %w", err)
	}

	keys := []string{
		bc.playerKey(snapshot.PlayerID, snapshot.PartnerID),
		bc.walletKey(snapshot.WalletID),
	}

	var errs []error
	for _, key := range keys {
		if err := bc.local.Set(ctx, key, data, bc.localTTL); err != nil {
			cacheErrors.WithLabelValues("local", "set").Inc()
			errs = append(errs, err)
		} else {
			cacheWrites.WithLabelValues("local").Inc()
		}
		if err := bc.shared.Set(ctx, key, data, bc.sharedTTL); err != nil {
			cacheErrors.WithLabelValues("shared", "set").Inc()
			errs = append(errs, err)
		} else {
			cacheWrites.WithLabelValues("shared").Inc()
		}
	}

	return errors.Join(errs...)
}

// Invalidate removes a wallet's entries from both tiers. This is the only
// invalidation entry point; every balance-affecting operation calls it.
func (bc *BalanceCache) Invalidate(ctx context.Context, walletID, playerID, partnerID uuid.UUID) error {
	start := time.Now()
	defer func() {
		cacheLatency.WithLabelValues("invalidate").Observe(time.Since(start).Seconds())
	}()

	keys := []string{
		bc.playerKey(playerID, partnerID),
		bc.walletKey(walletID),
	}

	cacheInvalidations.Inc()

	var errs []error
	if err := bc.local.Delete(ctx, keys...); err != nil {
		cacheErrors.WithLabelValues("local", "delete").Inc()
		errs = append(errs, err)
	}
	if err := bc.shared.Delete(ctx, keys...); err != nil {
		cacheErrors.WithLabelValues("shared", "delete").Inc()
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func decodeSnapshot(data []byte) (*BalanceSnapshot, error) {
	var snapshot BalanceSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
