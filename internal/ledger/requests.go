package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DebitRequest removes funds from a wallet. ReferenceID is the operator's
// idempotency key; replays of the same (PartnerID, ReferenceID) pair return
// the stored outcome of the first attempt.
type DebitRequest struct {
	PlayerID    uuid.UUID         `json:"player_id" validate:"required"`
	PartnerID   uuid.UUID         `json:"partner_id" validate:"required"`
	ReferenceID string            `json:"reference_id" validate:"required,max=128"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency" validate:"required,iso4217"`
	Type        TransactionType   `json:"type,omitempty" validate:"omitempty,oneof=bet withdrawal commission adjustment"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreditRequest adds funds to a wallet, creating the wallet on first use.
type CreditRequest struct {
	PlayerID    uuid.UUID         `json:"player_id" validate:"required"`
	PartnerID   uuid.UUID         `json:"partner_id" validate:"required"`
	ReferenceID string            `json:"reference_id" validate:"required,max=128"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency" validate:"required,iso4217"`
	Type        TransactionType   `json:"type,omitempty" validate:"omitempty,oneof=win deposit refund bonus adjustment"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// RollbackRequest reverses a previously completed transaction identified by
// the operator's original reference. ReferenceID keys the rollback itself.
type RollbackRequest struct {
	PlayerID            uuid.UUID `json:"player_id" validate:"required"`
	PartnerID           uuid.UUID `json:"partner_id" validate:"required"`
	ReferenceID         string    `json:"reference_id" validate:"required,max=128"`
	OriginalReferenceID string    `json:"original_reference_id" validate:"required,max=128"`
	Reason              string    `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// TransactionResult is the outcome returned to the operator for debit,
// credit and rollback calls. Balance is the wallet balance after the
// transaction was applied.
type TransactionResult struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	ReferenceID   string            `json:"reference_id"`
	Status        TransactionStatus `json:"status"`
	Balance       decimal.Decimal   `json:"balance"`
	Currency      string            `json:"currency"`
	CreatedAt     time.Time         `json:"created_at"`
}

// WalletBalance is the read projection served by GetBalance.
type WalletBalance struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	PlayerID  uuid.UUID       `json:"player_id"`
	PartnerID uuid.UUID       `json:"partner_id"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	IsActive  bool            `json:"is_active"`
	IsLocked  bool            `json:"is_locked"`
}

// TransactionView is a decoded transaction row for history listings.
// Amount is the decrypted value; rows whose ciphertext fails authentication
// are reported with a zero amount and AmountUnavailable set.
type TransactionView struct {
	ID                    uuid.UUID         `json:"id"`
	ReferenceID           string            `json:"reference_id"`
	PartnerID             uuid.UUID         `json:"partner_id"`
	WalletID              uuid.UUID         `json:"wallet_id"`
	PlayerID              uuid.UUID         `json:"player_id"`
	Type                  TransactionType   `json:"type"`
	Amount                decimal.Decimal   `json:"amount"`
	AmountUnavailable     bool              `json:"amount_unavailable,omitempty"`
	Currency              string            `json:"currency"`
	Status                TransactionStatus `json:"status"`
	OriginalBalance       decimal.Decimal   `json:"original_balance"`
	UpdatedBalance        decimal.Decimal   `json:"updated_balance"`
	OriginalTransactionID *uuid.UUID        `json:"original_transaction_id,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
}

// ListTransactionsFilter narrows ListTransactions. PartnerID is mandatory;
// every other field is optional. Limit defaults to 50 and is capped at 500.
type ListTransactionsFilter struct {
	PartnerID uuid.UUID          `json:"partner_id" validate:"required"`
	PlayerID  *uuid.UUID         `json:"player_id,omitempty"`
	WalletID  *uuid.UUID         `json:"wallet_id,omitempty"`
	Type      *TransactionType   `json:"type,omitempty"`
	Status    *TransactionStatus `json:"status,omitempty"`
	From      *time.Time         `json:"from,omitempty"`
	To        *time.Time         `json:"to,omitempty"`
	Limit     int                `json:"limit,omitempty" validate:"omitempty,min=1,max=500"`
	Offset    int                `json:"offset,omitempty" validate:"omitempty,min=0"`
}
