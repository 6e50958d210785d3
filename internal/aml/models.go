// Package aml implements the asynchronous risk engine that scores committed
// wallet transactions. It consumes transaction events after commit, takes no
// wallet locks, and keeps its failures on this side of the ledger boundary.
package aml

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskSeverity grades an assessment or alert.
type RiskSeverity string

const (
	SeverityLow      RiskSeverity = "low"
	SeverityMedium   RiskSeverity = "medium"
	SeverityHigh     RiskSeverity = "high"
	SeverityCritical RiskSeverity = "critical"
)

// FactorType identifies a single detected risk signal.
type FactorType string

const (
	FactorLargeTransaction   FactorType = "large_transaction"
	FactorStructuring        FactorType = "structuring"
	FactorTimeDeviation      FactorType = "time_deviation"
	FactorAmountDeviation    FactorType = "amount_deviation"
	FactorFrequencyDeviation FactorType = "frequency_deviation"
	FactorMultiAccount       FactorType = "multi_account"
	FactorPEPMatch           FactorType = "pep_match"
	FactorSanctionsMatch     FactorType = "sanctions_match"
)

// AlertStatus tracks an alert through the review workflow.
type AlertStatus string

const (
	AlertStatusNew      AlertStatus = "new"
	AlertStatusReviewed AlertStatus = "reviewed"
	AlertStatusReported AlertStatus = "reported"
)

// ProfileCategory buckets transaction types for per-category risk scores.
type ProfileCategory string

const (
	CategoryDeposit    ProfileCategory = "deposit"
	CategoryWithdrawal ProfileCategory = "withdrawal"
	CategoryGameplay   ProfileCategory = "gameplay"
)

// RiskFactor is one scored signal contributing to an assessment.
type RiskFactor struct {
	Type        FactorType `json:"type"`
	Score       float64    `json:"score"`
	Description string     `json:"description"`
}

// RiskAssessment is the stored outcome of scoring one transaction. Exactly
// one row exists per transaction; replays return the stored row.
type RiskAssessment struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID      uuid.UUID       `gorm:"type:uuid;index:idx_assessment_transaction,unique" json:"transaction_id"`
	PlayerID           uuid.UUID       `gorm:"type:uuid;index:idx_assessment_player" json:"player_id"`
	PartnerID          uuid.UUID       `gorm:"type:uuid" json:"partner_id"`
	Type               string          `gorm:"type:varchar(20)" json:"type"`
	Amount             decimal.Decimal `gorm:"type:numeric(18,2)" json:"amount"`
	Currency           string          `gorm:"type:varchar(3)" json:"currency"`
	Score              float64         `json:"score"`
	Severity           RiskSeverity    `gorm:"type:varchar(16)" json:"severity"`
	Factors            string          `gorm:"type:jsonb" json:"-"`
	IsLargeTransaction bool            `json:"is_large_transaction"`
	RequiresAlert      bool            `json:"requires_alert"`
	RequiresReport     bool            `json:"requires_report"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (RiskAssessment) TableName() string { return "risk_assessments" }

// SetFactors serializes the factor list into the jsonb column.
func (a *RiskAssessment) SetFactors(factors []RiskFactor) {
	a.Factors = encodeFactors(factors)
}

// FactorList decodes the stored factors.
func (a *RiskAssessment) FactorList() []RiskFactor {
	return decodeFactors(a.Factors)
}

// RiskProfile is the rolling behavioral picture of one (player, partner)
// pair. Mutated only by the risk engine, after each assessed transaction.
type RiskProfile struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PlayerID        uuid.UUID       `gorm:"type:uuid;index:idx_profile_player_partner,unique" json:"player_id"`
	PartnerID       uuid.UUID       `gorm:"type:uuid;index:idx_profile_player_partner,unique" json:"partner_id"`
	DepositScore    float64         `json:"deposit_score"`
	WithdrawalScore float64         `json:"withdrawal_score"`
	GameplayScore   float64         `json:"gameplay_score"`
	OverallScore    float64         `json:"overall_score"`
	Volume7d        decimal.Decimal `gorm:"column:volume_7d;type:numeric(18,2)" json:"volume_7d"`
	Volume30d       decimal.Decimal `gorm:"column:volume_30d;type:numeric(18,2)" json:"volume_30d"`
	Count7d         int             `gorm:"column:count_7d" json:"count_7d"`
	Count30d        int             `gorm:"column:count_30d" json:"count_30d"`
	FactorCounts    string          `gorm:"type:jsonb" json:"-"`
	LastAssessedAt  time.Time       `json:"last_assessed_at"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (RiskProfile) TableName() string { return "risk_profiles" }

func (p *RiskProfile) categoryScore(category ProfileCategory) float64 {
	switch category {
	case CategoryDeposit:
		return p.DepositScore
	case CategoryWithdrawal:
		return p.WithdrawalScore
	default:
		return p.GameplayScore
	}
}

func (p *RiskProfile) setCategoryScore(category ProfileCategory, score float64) {
	switch category {
	case CategoryDeposit:
		p.DepositScore = score
	case CategoryWithdrawal:
		p.WithdrawalScore = score
	default:
		p.GameplayScore = score
	}
}

// FactorCountMap decodes the accumulated factor history.
func (p *RiskProfile) FactorCountMap() map[string]int {
	counts := make(map[string]int)
	if p.FactorCounts == "" {
		return counts
	}
	if err := json.Unmarshal([]byte(p.FactorCounts), &counts); err != nil {
		return make(map[string]int)
	}
	return counts
}

// SetFactorCounts serializes the accumulated factor history.
func (p *RiskProfile) SetFactorCounts(counts map[string]int) {
	raw, err := json.Marshal(counts)
	if err != nil {
		return
	}
	p.FactorCounts = string(raw)
}

// Alert is a work item for compliance analysts. Status moves new → reviewed
// → reported; reports required at detection time skip review and file
// immediately.
type Alert struct {
	ID            uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID  uuid.UUID    `gorm:"type:uuid;index:idx_alert_assessment" json:"assessment_id"`
	TransactionID uuid.UUID    `gorm:"type:uuid" json:"transaction_id"`
	PlayerID      uuid.UUID    `gorm:"type:uuid;index:idx_alert_player" json:"player_id"`
	PartnerID     uuid.UUID    `gorm:"type:uuid;index:idx_alert_partner" json:"partner_id"`
	Type          FactorType   `gorm:"type:varchar(32)" json:"type"`
	Severity      RiskSeverity `gorm:"type:varchar(16)" json:"severity"`
	Status        AlertStatus  `gorm:"type:varchar(16);index:idx_alert_status" json:"status"`
	Score         float64      `json:"score"`
	Description   string       `gorm:"type:text" json:"description"`
	Factors       string       `gorm:"type:jsonb" json:"-"`
	FalsePositive bool         `json:"false_positive"`
	ReviewNotes   string       `gorm:"type:text" json:"review_notes,omitempty"`
	ReviewedBy    string       `gorm:"type:varchar(128)" json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewed_at,omitempty"`
	ReportedAt    *time.Time   `json:"reported_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (Alert) TableName() string { return "aml_alerts" }

// FactorList decodes the factors attached to the alert.
func (a *Alert) FactorList() []RiskFactor {
	return decodeFactors(a.Factors)
}

// Report is a regulatory submission record. At most one report exists per
// alert.
type Report struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AlertID       uuid.UUID `gorm:"type:uuid;index:idx_report_alert,unique" json:"alert_id"`
	TransactionID uuid.UUID `gorm:"type:uuid" json:"transaction_id"`
	PlayerID      uuid.UUID `gorm:"type:uuid" json:"player_id"`
	PartnerID     uuid.UUID `gorm:"type:uuid" json:"partner_id"`
	Reference     string    `gorm:"type:varchar(64)" json:"reference"`
	Narrative     string    `gorm:"type:text" json:"narrative"`
	FiledBy       string    `gorm:"type:varchar(128)" json:"filed_by"`
	FiledAt       time.Time `json:"filed_at"`
}

func (Report) TableName() string { return "aml_reports" }

func encodeFactors(factors []RiskFactor) string {
	raw, err := json.Marshal(factors)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeFactors(raw string) []RiskFactor {
	if raw == "" {
		return nil
	}
	var factors []RiskFactor
	if err := json.Unmarshal([]byte(raw), &factors); err != nil {
		return nil
	}
	return factors
}

// profileCategory maps a transaction type onto its scoring bucket. Game
// round types and balance corrections all count as gameplay.
func profileCategory(txType string) ProfileCategory {
	switch txType {
	case "deposit":
		return CategoryDeposit
	case "withdrawal":
		return CategoryWithdrawal
	default:
		return CategoryGameplay
	}
}
