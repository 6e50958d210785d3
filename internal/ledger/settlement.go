package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecomputeBalances rolls wallet rows up into per-currency Balance
// aggregates for one partner. The rollup reads committed wallet state, so
// the result trails in-flight transactions by at most one settlement cycle.
func (s *service) RecomputeBalances(ctx context.Context, partnerID uuid.UUID) error {
	aggs, err := s.repo.AggregateWalletBalances(ctx, partnerID)
	if err != nil {
		settlementRuns.WithLabelValues("failed").Inc()
		return err
	}

	for _, agg := range aggs {
		balance := &Balance{
			ID:              uuid.New(),
			PartnerID:       partnerID,
			Currency:        agg.Currency,
			TotalAmount:     agg.Total,
			AvailableAmount: agg.Available,
			PendingAmount:   agg.Total.Sub(agg.Available),
			WalletCount:     agg.WalletCount,
		}
		if err := s.repo.UpsertBalance(ctx, balance); err != nil {
			settlementRuns.WithLabelValues("failed").Inc()
			return fmt.Errorf("failed to settle %s balances: %w", agg.Currency, err)
		}
	}

	settlementRuns.WithLabelValues("completed").Inc()
	return nil
}

// RunSettlement periodically recomputes aggregates for every partner with
// wallets until the context is canceled. Meant to run on its own goroutine.
func (s *service) RunSettlement(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("settlement worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement worker stopped")
			return
		case <-ticker.C:
			partners, err := s.repo.ListPartnersWithWallets(ctx)
			if err != nil {
				s.logger.Error("failed to list partners for settlement", zap.Error(err))
				continue
			}
			for _, partnerID := range partners {
				if err := s.RecomputeBalances(ctx, partnerID); err != nil {
					s.logger.Error("failed to recompute balances",
						zap.String("partner_id", partnerID.String()),
						zap.Error(err))
				}
			}
		}
	}
}
