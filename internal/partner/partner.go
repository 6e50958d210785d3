package partner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPartnerNotFound is returned when the partner id is unknown.
	ErrPartnerNotFound = errors.New("partner not found")
	// ErrPartnerInactive is returned when the partner exists but is disabled.
	ErrPartnerInactive = errors.New("partner inactive")
	// ErrPermissionDenied is returned when no granted permission matches.
	ErrPermissionDenied = errors.New("permission denied")
)

// Partner is an operator tenant of the wallet platform.
type Partner struct {
	ID          uuid.UUID `gorm:"primaryKey;type:uuid" json:"id" validate:"required"`
	Name        string    `gorm:"size:128;not null" json:"name" validate:"required"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	Permissions string    `gorm:"type:text;not null;default:''" json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for the Partner model.
func (Partner) TableName() string {
	return "partners"
}

// HasPermission reports whether any granted permission matches the required
// one, using the single Permission.Matches comparison.
func (p *Partner) HasPermission(required Permission) bool {
	for _, granted := range ParsePermissions(p.Permissions) {
		if granted.Matches(required) {
			return true
		}
	}
	return false
}

// Checker verifies a partner may perform an operation. The ledger consults
// it at the service boundary, once per operation.
type Checker interface {
	Check(ctx context.Context, partnerID uuid.UUID, required Permission) error
}

// GormChecker is the database-backed Checker.
type GormChecker struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormChecker creates a partner checker reading from the partners table.
func NewGormChecker(db *gorm.DB, logger *zap.Logger) *GormChecker {
	return &GormChecker{db: db, logger: logger}
}

// Check verifies the partner exists, is active, and holds the required
// permission.
func (c *GormChecker) Check(ctx context.Context, partnerID uuid.UUID, required Permission) error {
	var p Partner
	err := c.db.WithContext(ctx).Where("id = ?", partnerID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPartnerNotFound
		}
		return fmt.Errorf("failed to load partner: %w", err)
	}

	if !p.IsActive {
		return ErrPartnerInactive
	}
	if !p.HasPermission(required) {
		c.logger.Warn("partner lacks permission",
			zap.String("partner_id", partnerID.String()),
			zap.String("required", string(required)),
		)
		return ErrPermissionDenied
	}
	return nil
}
