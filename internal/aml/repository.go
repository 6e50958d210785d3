package aml

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/musig5344/ocasino-sub000/internal/codec"
	"github.com/musig5344/ocasino-sub000/internal/ledger"
)

var (
	ErrAssessmentNotFound = errors.New("assessment not found")
	ErrProfileNotFound    = errors.New("risk profile not found")
	ErrAlertNotFound      = errors.New("alert not found")
	ErrReportNotFound     = errors.New("report not found")
	ErrInvalidAlertState  = errors.New("invalid alert state for transition")
)

const (
	defaultAlertPageSize = 50
	maxAlertPageSize     = 500
)

// HistoryEntry is one decoded ledger transaction used for behavioral
// analysis.
type HistoryEntry struct {
	TransactionID uuid.UUID
	Type          string
	Amount        decimal.Decimal
	CreatedAt     time.Time
}

// Repository persists risk artifacts and reads decoded transaction history
// out of the ledger tables.
type Repository struct {
	db     *gorm.DB
	codec  *codec.AmountCodec
	logger *zap.SugaredLogger
}

func NewRepository(db *gorm.DB, amountCodec *codec.AmountCodec, logger *zap.Logger) *Repository {
	return &Repository{db: db, codec: amountCodec, logger: logger.Sugar()}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RiskAssessment{}, &RiskProfile{}, &Alert{}, &Report{})
}

// TransactionHistory returns the pair's completed transactions inside the
// window, oldest first, amounts decrypted. Rows whose stored amount fails
// authentication are logged and skipped so one bad row cannot stall the
// pipeline.
func (r *Repository) TransactionHistory(ctx context.Context, playerID, partnerID uuid.UUID, since time.Time, exclude uuid.UUID) ([]HistoryEntry, error) {
	var rows []ledger.Transaction
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND partner_id = ? AND status = ? AND created_at >= ? AND id <> ?",
			playerID, partnerID, ledger.TransactionStatusCompleted, since, exclude).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		amount, err := r.codec.DecryptAmount(row.EncryptedAmount)
		if err != nil {
			amlHistoryDecodeFailures.Inc()
			r.logger.Warnw("skipping history row with undecodable amount",
				"transaction_id", row.ID,
				"error", err)
			continue
		}
		entries = append(entries, HistoryEntry{
			TransactionID: row.ID,
			Type:          string(row.Type),
			Amount:        amount,
			CreatedAt:     row.CreatedAt,
		})
	}
	return entries, nil
}

// CountPartnersForPlayer reports how many partners hold a wallet for the
// player, across the whole platform.
func (r *Repository) CountPartnersForPlayer(ctx context.Context, playerID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ledger.Wallet{}).
		Where("player_id = ?", playerID).
		Distinct("partner_id").
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count partner accounts: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateAssessment(ctx context.Context, assessment *RiskAssessment) error {
	if err := r.db.WithContext(ctx).Create(assessment).Error; err != nil {
		return fmt.Errorf("failed to create assessment: %w", err)
	}
	return nil
}

func (r *Repository) FindAssessmentByTransaction(ctx context.Context, transactionID uuid.UUID) (*RiskAssessment, error) {
	var assessment RiskAssessment
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&assessment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssessmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment: %w", err)
	}
	return &assessment, nil
}

func (r *Repository) GetProfile(ctx context.Context, playerID, partnerID uuid.UUID) (*RiskProfile, error) {
	var profile RiskProfile
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND partner_id = ?", playerID, partnerID).
		First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load risk profile: %w", err)
	}
	return &profile, nil
}

// CreateProfile inserts a fresh profile. Losing a creation race to a
// concurrent assessment folds into updating the incumbent row on
// (player_id, partner_id) instead.
func (r *Repository) CreateProfile(ctx context.Context, profile *RiskProfile) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "player_id"}, {Name: "partner_id"}},
		AssignmentColumns: []string{
			"deposit_score", "withdrawal_score", "gameplay_score", "overall_score",
			"volume_7d", "volume_30d", "count_7d", "count_30d",
			"factor_counts", "last_assessed_at", "updated_at",
		},
	}).Create(profile).Error
	if err != nil {
		return fmt.Errorf("failed to create risk profile: %w", err)
	}
	return nil
}

// UpdateProfile writes back a previously loaded profile.
func (r *Repository) UpdateProfile(ctx context.Context, profile *RiskProfile) error {
	if err := r.db.WithContext(ctx).Save(profile).Error; err != nil {
		return fmt.Errorf("failed to update risk profile: %w", err)
	}
	return nil
}

func (r *Repository) CreateAlert(ctx context.Context, alert *Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (r *Repository) GetAlert(ctx context.Context, alertID uuid.UUID) (*Alert, error) {
	var alert Alert
	err := r.db.WithContext(ctx).Where("id = ?", alertID).First(&alert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return &alert, nil
}

// AlertFilter narrows ListAlerts. PartnerID is mandatory, everything else
// optional.
type AlertFilter struct {
	PartnerID uuid.UUID
	PlayerID  *uuid.UUID
	Status    *AlertStatus
	Severity  *RiskSeverity
	Limit     int
	Offset    int
}

// ListAlerts returns a page of alerts for one partner, newest first, plus
// the total match count.
func (r *Repository) ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, int64, error) {
	if filter.PartnerID == uuid.Nil {
		return nil, 0, fmt.Errorf("partner id is required")
	}

	query := r.db.WithContext(ctx).Model(&Alert{}).Where("partner_id = ?", filter.PartnerID)
	if filter.PlayerID != nil {
		query = query.Where("player_id = ?", *filter.PlayerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", *filter.Severity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAlertPageSize
	}
	if limit > maxAlertPageSize {
		limit = maxAlertPageSize
	}

	var alerts []*Alert
	err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&alerts).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, total, nil
}

// ReviewAlert moves a new alert to reviewed and records the analyst
// verdict.
func (r *Repository) ReviewAlert(ctx context.Context, alertID uuid.UUID, reviewer string, falsePositive bool, notes string) (*Alert, error) {
	var reviewed *Alert
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert Alert
		if err := tx.Where("id = ?", alertID).First(&alert).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return fmt.Errorf("failed to load alert: %w", err)
		}
		if alert.Status != AlertStatusNew {
			return fmt.Errorf("%w: alert %s is %s", ErrInvalidAlertState, alertID, alert.Status)
		}

		now := time.Now().UTC()
		alert.Status = AlertStatusReviewed
		alert.FalsePositive = falsePositive
		alert.ReviewNotes = notes
		alert.ReviewedBy = reviewer
		alert.ReviewedAt = &now
		alert.UpdatedAt = now
		if err := tx.Save(&alert).Error; err != nil {
			return fmt.Errorf("failed to update alert: %w", err)
		}
		reviewed = &alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reviewed, nil
}

// FileReport files a regulatory report for a reviewed alert and closes it
// as reported. Alerts dismissed as false positives cannot be reported.
func (r *Repository) FileReport(ctx context.Context, alertID uuid.UUID, filedBy, narrative string) (*Report, error) {
	var filed *Report
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var alert Alert
		if err := tx.Where("id = ?", alertID).First(&alert).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAlertNotFound
			}
			return fmt.Errorf("failed to load alert: %w", err)
		}
		if alert.FalsePositive {
			return fmt.Errorf("%w: alert %s was dismissed as a false positive", ErrInvalidAlertState, alertID)
		}
		if alert.Status != AlertStatusReviewed {
			return fmt.Errorf("%w: alert %s is %s", ErrInvalidAlertState, alertID, alert.Status)
		}

		report := newReport(&alert, filedBy, narrative)
		if err := tx.Create(report).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: report already filed for alert %s", ErrInvalidAlertState, alertID)
			}
			return fmt.Errorf("failed to create report: %w", err)
		}

		alert.Status = AlertStatusReported
		alert.ReportedAt = &report.FiledAt
		alert.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&alert).Error; err != nil {
			return fmt.Errorf("failed to update alert: %w", err)
		}
		filed = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	amlReports.Inc()
	return filed, nil
}

// AutoFileReport records a system-generated report at detection time, used
// when an assessment requires a report without waiting for analyst review.
// The alert goes straight to reported.
func (r *Repository) AutoFileReport(ctx context.Context, alert *Alert, narrative string) (*Report, error) {
	var filed *Report
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		report := newReport(alert, "system", narrative)
		if err := tx.Create(report).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: report already filed for alert %s", ErrInvalidAlertState, alert.ID)
			}
			return fmt.Errorf("failed to create report: %w", err)
		}

		alert.Status = AlertStatusReported
		alert.ReportedAt = &report.FiledAt
		alert.UpdatedAt = time.Now().UTC()
		if err := tx.Save(alert).Error; err != nil {
			return fmt.Errorf("failed to update alert: %w", err)
		}
		filed = report
		return nil
	})
	if err != nil {
		return nil, err
	}
	amlReports.Inc()
	return filed, nil
}

func (r *Repository) GetReportByAlert(ctx context.Context, alertID uuid.UUID) (*Report, error) {
	var report Report
	err := r.db.WithContext(ctx).Where("alert_id = ?", alertID).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}
	return &report, nil
}

func newReport(alert *Alert, filedBy, narrative string) *Report {
	now := time.Now().UTC()
	id := uuid.New()
	return &Report{
		ID:            id,
		AlertID:       alert.ID,
		TransactionID: alert.TransactionID,
		PlayerID:      alert.PlayerID,
		PartnerID:     alert.PartnerID,
		Reference:     reportReference(now, id),
		Narrative:     narrative,
		FiledBy:       filedBy,
		FiledAt:       now,
	}
}

// reportReference builds the submission number regulators see, for example
// STR-20260115-1a2b3c4d.
func reportReference(at time.Time, id uuid.UUID) string {
	return fmt.Sprintf("STR-%s-%s", at.Format("20060102"), id.String()[:8])
}
