// Package ledger implements the wallet ledger engine: balance-affecting
// operations for player wallets with idempotent transaction processing.
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies the business meaning of a ledger transaction.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeBet        TransactionType = "bet"
	TransactionTypeWin        TransactionType = "win"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
	TransactionTypeCommission TransactionType = "commission"
	TransactionTypeBonus      TransactionType = "bonus"
	TransactionTypeRollback   TransactionType = "rollback"
)

// TransactionStatus is the lifecycle state of a ledger transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCanceled  TransactionStatus = "canceled"
)

// Wallet represents a single player's balance for one operator.
// A player holds at most one wallet per operator; the row is the unit
// of locking for all balance mutations.
type Wallet struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	PlayerID  uuid.UUID       `json:"player_id" gorm:"type:uuid;index:idx_wallet_player_partner,unique;not null"`
	PartnerID uuid.UUID       `json:"partner_id" gorm:"type:uuid;index:idx_wallet_player_partner,unique;index:idx_wallet_partner;not null"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:numeric(18,2);default:0;not null"`
	Currency  string          `json:"currency" gorm:"type:varchar(3);not null" validate:"required,iso4217"`
	IsActive  bool            `json:"is_active" gorm:"default:true;not null"`
	IsLocked  bool            `json:"is_locked" gorm:"default:false;not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName returns the table name for the wallet model
func (Wallet) TableName() string {
	return "wallets"
}

// Transaction is one immutable ledger entry. The monetary amount is stored
// encrypted; OriginalBalance and UpdatedBalance record the wallet balance
// around the mutation and double as an integrity check during rollback.
type Transaction struct {
	ID                    uuid.UUID         `json:"id" gorm:"primaryKey;type:uuid"`
	ReferenceID           string            `json:"reference_id" gorm:"type:varchar(128);index:idx_tx_partner_reference,unique;not null" validate:"required,max=128"`
	PartnerID             uuid.UUID         `json:"partner_id" gorm:"type:uuid;index:idx_tx_partner_reference,unique;not null"`
	WalletID              uuid.UUID         `json:"wallet_id" gorm:"type:uuid;index:idx_tx_wallet_time;not null"`
	PlayerID              uuid.UUID         `json:"player_id" gorm:"type:uuid;index:idx_tx_player;not null"`
	Type                  TransactionType   `json:"type" gorm:"type:varchar(20);index:idx_tx_type;not null"`
	EncryptedAmount       string            `json:"-" gorm:"type:text;not null"`
	Currency              string            `json:"currency" gorm:"type:varchar(3);not null"`
	Status                TransactionStatus `json:"status" gorm:"type:varchar(20);index:idx_tx_status;not null"`
	OriginalBalance       decimal.Decimal   `json:"original_balance" gorm:"type:numeric(18,2);not null"`
	UpdatedBalance        decimal.Decimal   `json:"updated_balance" gorm:"type:numeric(18,2);not null"`
	OriginalTransactionID *uuid.UUID        `json:"original_transaction_id,omitempty" gorm:"type:uuid;index:idx_tx_original,unique"`
	Metadata              string            `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt             time.Time         `json:"created_at" gorm:"index:idx_tx_wallet_time;index:idx_tx_created"`
	UpdatedAt             time.Time         `json:"updated_at"`
	CompletedAt           *time.Time        `json:"completed_at,omitempty"`
}

// TableName returns the table name for the transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// IsDebit reports whether the entry decreased the wallet balance.
func (t *Transaction) IsDebit() bool {
	return t.UpdatedBalance.LessThan(t.OriginalBalance)
}

// Balance is the per-operator aggregate rolled up from wallet rows by the
// settlement worker. Pending holds funds parked in locked or deactivated
// wallets.
type Balance struct {
	ID              uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	PartnerID       uuid.UUID       `json:"partner_id" gorm:"type:uuid;index:idx_balance_partner_currency,unique;not null"`
	Currency        string          `json:"currency" gorm:"type:varchar(3);index:idx_balance_partner_currency,unique;not null"`
	TotalAmount     decimal.Decimal `json:"total_amount" gorm:"type:numeric(18,2);default:0;not null"`
	AvailableAmount decimal.Decimal `json:"available_amount" gorm:"type:numeric(18,2);default:0;not null"`
	PendingAmount   decimal.Decimal `json:"pending_amount" gorm:"type:numeric(18,2);default:0;not null"`
	WalletCount     int64           `json:"wallet_count" gorm:"default:0;not null"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the table name for the balance aggregate
func (Balance) TableName() string {
	return "balances"
}
