package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wnt/rewardsync/internal/metrics"
	"github.com/wnt/rewardsync/internal/models"
	"gorm.io/gorm"
)

// Store is the service's view of the off-chain ledger: eligibility reads and
// batch-scoped reward reconciliation writes.
type Store struct {
	db                 *gorm.DB
	minEligibleSeconds int64
	cooldown           time.Duration
	now                func() time.Time
}

// RewardUpdate describes the reconciliation write for one confirmed account.
type RewardUpdate struct {
	EngagementID uint
	Milestone    int
	Amount       uint64
}

var ErrNilDB = errors.New("database connection is required")

// New creates a Store over an open gorm connection.
func New(db *gorm.DB, minEligibleSeconds int64, cooldown time.Duration) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	return &Store{
		db:                 db,
		minEligibleSeconds: minEligibleSeconds,
		cooldown:           cooldown,
		now:                func() time.Time { return time.Now().UTC() },
	}, nil
}

// FetchEligible returns accounts that can earn a reward right now, the most
// engaged first so that the fetch cap truncates the least engaged.
//
// An account qualifies when it has a wallet, has crossed the activity floor,
// and either lags behind its earned milestone, was never rewarded, or is past
// the reward cooldown.
func (s *Store) FetchEligible(ctx context.Context, limit int) ([]models.Engagement, error) {
	cutoff := s.now().Add(-s.cooldown)

	var rows []models.Engagement
	err := s.db.WithContext(ctx).
		Where("wallet_address <> ''").
		Where("activity_seconds >= ?", s.minEligibleSeconds).
		Where(
			s.db.Where("last_milestone < floor(activity_seconds / 3600)").
				Or("last_reward_at IS NULL").
				Or("last_reward_at < ?", cutoff),
		).
		Order("activity_seconds DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		metrics.RecordLedgerOperation("fetch", "failed")
		return nil, fmt.Errorf("failed to fetch eligible accounts: %w", err)
	}

	metrics.RecordLedgerOperation("fetch", "success")
	metrics.EligibleAccounts.Set(float64(len(rows)))
	return rows, nil
}

// ApplyRewards reconciles the ledger for one confirmed batch. All updates run
// in a single transaction scoped strictly to that batch's members, so a
// failed sibling batch can never affect them.
func (s *Store) ApplyRewards(ctx context.Context, updates []RewardUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}

	now := s.now()
	updated := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(&models.Engagement{}).
				Where("id = ?", u.EngagementID).
				Updates(map[string]interface{}{
					"last_milestone":       u.Milestone,
					"last_reward_at":       now,
					"total_reward_claimed": gorm.Expr("total_reward_claimed + ?", u.Amount),
				})
			if res.Error != nil {
				return fmt.Errorf("failed to update engagement %d: %w", u.EngagementID, res.Error)
			}
			updated += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		metrics.RecordLedgerOperation("reconcile", "failed")
		return 0, err
	}

	metrics.RecordLedgerOperation("reconcile", "success")
	return updated, nil
}

// CountPending returns how many accounts currently satisfy the eligibility
// predicate, uncapped. Used for reporting only.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cooldown)

	var count int64
	err := s.db.WithContext(ctx).Model(&models.Engagement{}).
		Where("wallet_address <> ''").
		Where("activity_seconds >= ?", s.minEligibleSeconds).
		Where(
			s.db.Where("last_milestone < floor(activity_seconds / 3600)").
				Or("last_reward_at IS NULL").
				Or("last_reward_at < ?", cutoff),
		).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending accounts: %w", err)
	}
	return count, nil
}

// Stats aggregates the engagement table for the report endpoint.
func (s *Store) Stats(ctx context.Context) (models.LedgerStats, error) {
	var stats models.LedgerStats
	err := s.db.WithContext(ctx).Model(&models.Engagement{}).
		Select("COUNT(*) AS total_accounts, COALESCE(AVG(activity_seconds), 0) AS avg_activity_seconds, COALESCE(SUM(total_reward_claimed), 0) AS total_reward_claimed").
		Scan(&stats).Error
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate ledger stats: %w", err)
	}
	return stats, nil
}

// Ping verifies the ledger connection without touching any rows.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
