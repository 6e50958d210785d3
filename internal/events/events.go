// Package events provides the wallet domain event bus and its publishers.
//
// The Bus is an explicit object owning the event-type to handler mapping. It
// is constructed once at process start and handed to producers and consumers;
// there is no package-level registry.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies a domain event.
type EventType string

const (
	EventTransactionCompleted EventType = "transaction.completed"
	EventBalanceChanged       EventType = "wallet.balance_changed"
)

// Publisher delivers events to an external destination.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event interface{}) error
}

// TransactionCompletedEvent is emitted after a ledger transaction commits.
// The amount here is plaintext; events are the one surface that carries it.
// Metadata passes through whatever the operator attached to the request,
// which downstream consumers mine for context such as player names.
type TransactionCompletedEvent struct {
	TransactionID uuid.UUID         `json:"transaction_id"`
	ReferenceID   string            `json:"reference_id"`
	WalletID      uuid.UUID         `json:"wallet_id"`
	PlayerID      uuid.UUID         `json:"player_id"`
	PartnerID     uuid.UUID         `json:"partner_id"`
	Type          string            `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	Balance       decimal.Decimal   `json:"balance"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

// PartitionKey keeps all events for one wallet on one partition.
func (e *TransactionCompletedEvent) PartitionKey() string {
	return e.WalletID.String()
}

// BalanceChangedEvent is emitted whenever a wallet balance moves.
type BalanceChangedEvent struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	PlayerID  uuid.UUID       `json:"player_id"`
	PartnerID uuid.UUID       `json:"partner_id"`
	Currency  string          `json:"currency"`
	Previous  decimal.Decimal `json:"previous_balance"`
	Current   decimal.Decimal `json:"current_balance"`
	Timestamp time.Time       `json:"timestamp"`
}

// PartitionKey keeps all events for one wallet on one partition.
func (e *BalanceChangedEvent) PartitionKey() string {
	return e.WalletID.String()
}
