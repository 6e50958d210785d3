package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/musig5344/ocasino-sub000/internal/cache"
	"github.com/musig5344/ocasino-sub000/internal/events"
	"github.com/musig5344/ocasino-sub000/internal/partner"
)

// Service defines the wallet ledger operations exposed to operator-facing
// transports.
type Service interface {
	GetBalance(ctx context.Context, playerID, partnerID uuid.UUID) (*WalletBalance, error)
	Debit(ctx context.Context, req *DebitRequest) (*TransactionResult, error)
	Credit(ctx context.Context, req *CreditRequest) (*TransactionResult, error)
	Rollback(ctx context.Context, req *RollbackRequest) (*TransactionResult, error)
	EnsureWalletExists(ctx context.Context, playerID, partnerID uuid.UUID, currency string) (*Wallet, bool, error)
	SetWalletStatus(ctx context.Context, playerID, partnerID uuid.UUID, active, locked bool) (*Wallet, error)
	ListTransactions(ctx context.Context, filter *ListTransactionsFilter) ([]*TransactionView, int64, error)
	RecomputeBalances(ctx context.Context, partnerID uuid.UUID) error
	RunSettlement(ctx context.Context, interval time.Duration)
}

// service implements Service.
type service struct {
	db       *gorm.DB
	repo     *Repository
	cache    *cache.BalanceCache
	bus      *events.Bus
	partners partner.Checker
	logger   *zap.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewService creates the ledger engine.
func NewService(db *gorm.DB, repo *Repository, balances *cache.BalanceCache, bus *events.Bus, partners partner.Checker, logger *zap.Logger) Service {
	return &service{
		db:       db,
		repo:     repo,
		cache:    balances,
		bus:      bus,
		partners: partners,
		logger:   logger,
		validate: validator.New(),
		tracer:   otel.Tracer("ledger"),
	}
}

// GetBalance serves the wallet balance, read-through against the two-tier
// cache.
func (s *service) GetBalance(ctx context.Context, playerID, partnerID uuid.UUID) (*WalletBalance, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.get_balance")
	defer span.End()
	span.SetAttributes(attribute.String("partner_id", partnerID.String()))

	start := time.Now()
	defer func() {
		ledgerDuration.WithLabelValues("get_balance").Observe(time.Since(start).Seconds())
	}()

	if err := s.partners.Check(ctx, partnerID, partner.PermissionRead); err != nil {
		ledgerOperations.WithLabelValues("get_balance", "denied").Inc()
		return nil, err
	}

	if snapshot, err := s.cache.Get(ctx, playerID, partnerID); err == nil {
		ledgerOperations.WithLabelValues("get_balance", "completed").Inc()
		return balanceFromSnapshot(snapshot), nil
	}

	wallet, err := s.repo.GetWallet(ctx, playerID, partnerID)
	if err != nil {
		ledgerOperations.WithLabelValues("get_balance", "failed").Inc()
		return nil, err
	}

	if err := s.cache.Put(ctx, snapshotFromWallet(wallet)); err != nil {
		s.logger.Warn("failed to cache balance",
			zap.String("wallet_id", wallet.ID.String()),
			zap.Error(err))
	}

	ledgerOperations.WithLabelValues("get_balance", "completed").Inc()
	return balanceFromWallet(wallet), nil
}

// Debit removes funds from a wallet. Replays of a known reference return the
// stored outcome without touching the balance.
func (s *service) Debit(ctx context.Context, req *DebitRequest) (*TransactionResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.debit")
	defer span.End()
	span.SetAttributes(
		attribute.String("partner_id", req.PartnerID.String()),
		attribute.String("reference_id", req.ReferenceID),
	)

	start := time.Now()
	defer func() {
		ledgerDuration.WithLabelValues("debit").Observe(time.Since(start).Seconds())
	}()

	if req.Type == "" {
		req.Type = TransactionTypeBet
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid debit request: %w", err)
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := s.partners.Check(ctx, req.PartnerID, partner.PermissionDebit); err != nil {
		ledgerOperations.WithLabelValues("debit", "denied").Inc()
		return nil, err
	}

	// Replays answered without taking the wallet lock.
	if existing, err := s.repo.FindTransactionByReference(ctx, nil, req.PartnerID, req.ReferenceID); err == nil {
		ledgerDuplicates.Inc()
		ledgerOperations.WithLabelValues("debit", "duplicate").Inc()
		return resultFromTransaction(existing), nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	metadata, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	result, err := s.applyDebit(ctx, req, metadata)
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			// A concurrent call with the same reference committed first.
			if existing, findErr := s.repo.FindTransactionByReference(ctx, nil, req.PartnerID, req.ReferenceID); findErr == nil {
				ledgerDuplicates.Inc()
				ledgerOperations.WithLabelValues("debit", "duplicate").Inc()
				return resultFromTransaction(existing), nil
			}
		}
		ledgerOperations.WithLabelValues("debit", "failed").Inc()
		return nil, err
	}

	ledgerOperations.WithLabelValues("debit", "completed").Inc()
	return result, nil
}

func (s *service) applyDebit(ctx context.Context, req *DebitRequest, metadata string) (*TransactionResult, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	wallet, err := s.repo.GetWalletForUpdate(ctx, tx, req.PlayerID, req.PartnerID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	// The unlocked precheck can race; recheck now that the row is held.
	if _, err := s.repo.FindTransactionByReference(ctx, tx, req.PartnerID, req.ReferenceID); err == nil {
		tx.Rollback()
		return nil, ErrDuplicateTransaction
	} else if !errors.Is(err, ErrTransactionNotFound) {
		tx.Rollback()
		return nil, err
	}

	if err := validateWalletForMutation(wallet, req.Currency); err != nil {
		tx.Rollback()
		return nil, err
	}
	if wallet.Balance.LessThan(req.Amount) {
		tx.Rollback()
		return nil, ErrInsufficientFunds
	}

	previous := wallet.Balance
	updated := previous.Sub(req.Amount)

	encrypted, err := s.repo.EncodeAmount(req.Amount)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	entry := &Transaction{
		ID:              uuid.New(),
		ReferenceID:     req.ReferenceID,
		PartnerID:       req.PartnerID,
		WalletID:        wallet.ID,
		PlayerID:        req.PlayerID,
		Type:            req.Type,
		EncryptedAmount: encrypted,
		Currency:        req.Currency,
		Status:          TransactionStatusCompleted,
		OriginalBalance: previous,
		UpdatedBalance:  updated,
		Metadata:        metadata,
		CompletedAt:     &now,
	}
	if err := s.repo.CreateTransactionInTx(ctx, tx, entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	wallet.Balance = updated
	if err := s.repo.SaveWalletInTx(ctx, tx, wallet); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.finishMutation(ctx, wallet, entry, req.Amount, previous, req.Metadata)
	return resultFromTransaction(entry), nil
}

// Credit adds funds to a wallet, creating the wallet on first use.
func (s *service) Credit(ctx context.Context, req *CreditRequest) (*TransactionResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.credit")
	defer span.End()
	span.SetAttributes(
		attribute.String("partner_id", req.PartnerID.String()),
		attribute.String("reference_id", req.ReferenceID),
	)

	start := time.Now()
	defer func() {
		ledgerDuration.WithLabelValues("credit").Observe(time.Since(start).Seconds())
	}()

	if req.Type == "" {
		req.Type = TransactionTypeWin
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid credit request: %w", err)
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := s.partners.Check(ctx, req.PartnerID, partner.PermissionCredit); err != nil {
		ledgerOperations.WithLabelValues("credit", "denied").Inc()
		return nil, err
	}

	if existing, err := s.repo.FindTransactionByReference(ctx, nil, req.PartnerID, req.ReferenceID); err == nil {
		ledgerDuplicates.Inc()
		ledgerOperations.WithLabelValues("credit", "duplicate").Inc()
		return resultFromTransaction(existing), nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	metadata, err := encodeMetadata(req.Metadata)
	if err != nil {
		return nil, err
	}

	result, err := s.applyCredit(ctx, req, metadata)
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		// Lost a wallet-creation race; the row exists now, lock it this time.
		result, err = s.applyCredit(ctx, req, metadata)
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			if existing, findErr := s.repo.FindTransactionByReference(ctx, nil, req.PartnerID, req.ReferenceID); findErr == nil {
				ledgerDuplicates.Inc()
				ledgerOperations.WithLabelValues("credit", "duplicate").Inc()
				return resultFromTransaction(existing), nil
			}
		}
		ledgerOperations.WithLabelValues("credit", "failed").Inc()
		return nil, err
	}

	ledgerOperations.WithLabelValues("credit", "completed").Inc()
	return result, nil
}

func (s *service) applyCredit(ctx context.Context, req *CreditRequest, metadata string) (*TransactionResult, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	created := false
	wallet, err := s.repo.GetWalletForUpdate(ctx, tx, req.PlayerID, req.PartnerID)
	if errors.Is(err, ErrWalletNotFound) {
		wallet = &Wallet{
			ID:        uuid.New(),
			PlayerID:  req.PlayerID,
			PartnerID: req.PartnerID,
			Balance:   decimal.Zero,
			Currency:  req.Currency,
			IsActive:  true,
		}
		if createErr := s.repo.CreateWalletInTx(ctx, tx, wallet); createErr != nil {
			tx.Rollback()
			return nil, createErr
		}
		created = true
	} else if err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := s.repo.FindTransactionByReference(ctx, tx, req.PartnerID, req.ReferenceID); err == nil {
		tx.Rollback()
		return nil, ErrDuplicateTransaction
	} else if !errors.Is(err, ErrTransactionNotFound) {
		tx.Rollback()
		return nil, err
	}

	if !created {
		if err := validateWalletForMutation(wallet, req.Currency); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	previous := wallet.Balance
	updated := previous.Add(req.Amount)

	encrypted, err := s.repo.EncodeAmount(req.Amount)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	entry := &Transaction{
		ID:              uuid.New(),
		ReferenceID:     req.ReferenceID,
		PartnerID:       req.PartnerID,
		WalletID:        wallet.ID,
		PlayerID:        req.PlayerID,
		Type:            req.Type,
		EncryptedAmount: encrypted,
		Currency:        req.Currency,
		Status:          TransactionStatusCompleted,
		OriginalBalance: previous,
		UpdatedBalance:  updated,
		Metadata:        metadata,
		CompletedAt:     &now,
	}
	if err := s.repo.CreateTransactionInTx(ctx, tx, entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	wallet.Balance = updated
	if err := s.repo.SaveWalletInTx(ctx, tx, wallet); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.finishMutation(ctx, wallet, entry, req.Amount, previous, req.Metadata)
	return resultFromTransaction(entry), nil
}

// Rollback reverses a completed transaction. It is idempotent by original:
// repeated attempts return the stored rollback outcome.
func (s *service) Rollback(ctx context.Context, req *RollbackRequest) (*TransactionResult, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.rollback")
	defer span.End()
	span.SetAttributes(
		attribute.String("partner_id", req.PartnerID.String()),
		attribute.String("original_reference_id", req.OriginalReferenceID),
	)

	start := time.Now()
	defer func() {
		ledgerDuration.WithLabelValues("rollback").Observe(time.Since(start).Seconds())
	}()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid rollback request: %w", err)
	}
	if err := s.partners.Check(ctx, req.PartnerID, partner.PermissionRollback); err != nil {
		ledgerOperations.WithLabelValues("rollback", "denied").Inc()
		return nil, err
	}

	original, err := s.repo.FindTransactionByReference(ctx, nil, req.PartnerID, req.OriginalReferenceID)
	if err != nil {
		ledgerOperations.WithLabelValues("rollback", "failed").Inc()
		return nil, err
	}
	if original.PlayerID != req.PlayerID {
		ledgerOperations.WithLabelValues("rollback", "failed").Inc()
		return nil, ErrTransactionNotFound
	}

	if existing, err := s.repo.FindRollbackByOriginal(ctx, nil, original.ID); err == nil {
		ledgerDuplicates.Inc()
		ledgerOperations.WithLabelValues("rollback", "duplicate").Inc()
		return resultFromTransaction(existing), nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	if original.Status != TransactionStatusCompleted || original.Type == TransactionTypeRollback {
		ledgerOperations.WithLabelValues("rollback", "failed").Inc()
		return nil, ErrInvalidTransactionStatus
	}

	// The rollback's own reference must not collide with another entry.
	if _, err := s.repo.FindTransactionByReference(ctx, nil, req.PartnerID, req.ReferenceID); err == nil {
		ledgerOperations.WithLabelValues("rollback", "failed").Inc()
		return nil, ErrDuplicateTransaction
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return nil, err
	}

	result, err := s.applyRollback(ctx, req, original)
	if err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			if existing, findErr := s.repo.FindRollbackByOriginal(ctx, nil, original.ID); findErr == nil {
				ledgerDuplicates.Inc()
				ledgerOperations.WithLabelValues("rollback", "duplicate").Inc()
				return resultFromTransaction(existing), nil
			}
		}
		ledgerOperations.WithLabelValues("rollback", "failed").Inc()
		return nil, err
	}

	ledgerOperations.WithLabelValues("rollback", "completed").Inc()
	return result, nil
}

func (s *service) applyRollback(ctx context.Context, req *RollbackRequest, original *Transaction) (*TransactionResult, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	wallet, err := s.repo.GetWalletForUpdateByID(ctx, tx, original.WalletID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if _, err := s.repo.FindRollbackByOriginal(ctx, tx, original.ID); err == nil {
		tx.Rollback()
		return nil, ErrDuplicateTransaction
	} else if !errors.Is(err, ErrTransactionNotFound) {
		tx.Rollback()
		return nil, err
	}

	amount, err := s.repo.DecodeAmount(original)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	previous := wallet.Balance
	updated := rollbackBalance(previous, original, amount)
	if updated.IsNegative() {
		// Reversing a win that was already spent may drive the wallet
		// negative; the entry is recorded and flagged rather than refused.
		s.logger.Warn("rollback drives balance negative",
			zap.String("wallet_id", wallet.ID.String()),
			zap.String("original_transaction_id", original.ID.String()),
			zap.String("balance", updated.String()))
	}

	encrypted, err := s.repo.EncodeAmount(amount)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	var metadata string
	var metadataMap map[string]string
	if req.Reason != "" {
		metadataMap = map[string]string{"reason": req.Reason}
		metadata, err = encodeMetadata(metadataMap)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	originalID := original.ID
	entry := &Transaction{
		ID:                    uuid.New(),
		ReferenceID:           req.ReferenceID,
		PartnerID:             req.PartnerID,
		WalletID:              wallet.ID,
		PlayerID:              wallet.PlayerID,
		Type:                  TransactionTypeRollback,
		EncryptedAmount:       encrypted,
		Currency:              original.Currency,
		Status:                TransactionStatusCompleted,
		OriginalBalance:       previous,
		UpdatedBalance:        updated,
		OriginalTransactionID: &originalID,
		Metadata:              metadata,
		CompletedAt:           &now,
	}
	if err := s.repo.CreateTransactionInTx(ctx, tx, entry); err != nil {
		tx.Rollback()
		return nil, err
	}

	wallet.Balance = updated
	if err := s.repo.SaveWalletInTx(ctx, tx, wallet); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.finishMutation(ctx, wallet, entry, amount, previous, metadataMap)
	return resultFromTransaction(entry), nil
}

// EnsureWalletExists creates the wallet for a (player, partner) pair if it
// does not exist yet, so operators can provision wallets ahead of the first
// debit.
func (s *service) EnsureWalletExists(ctx context.Context, playerID, partnerID uuid.UUID, currency string) (*Wallet, bool, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.ensure_wallet")
	defer span.End()
	span.SetAttributes(attribute.String("partner_id", partnerID.String()))

	if err := s.validate.Var(currency, "required,iso4217"); err != nil {
		return nil, false, fmt.Errorf("invalid currency %q: %w", currency, err)
	}
	if err := s.partners.Check(ctx, partnerID, partner.PermissionCredit); err != nil {
		return nil, false, err
	}

	wallet, err := s.repo.GetWallet(ctx, playerID, partnerID)
	if err == nil {
		return wallet, false, nil
	}
	if !errors.Is(err, ErrWalletNotFound) {
		return nil, false, err
	}

	wallet = &Wallet{
		ID:        uuid.New(),
		PlayerID:  playerID,
		PartnerID: partnerID,
		Balance:   decimal.Zero,
		Currency:  currency,
		IsActive:  true,
	}
	if err := s.repo.CreateWalletInTx(ctx, s.db, wallet); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, findErr := s.repo.GetWallet(ctx, playerID, partnerID)
			if findErr != nil {
				return nil, false, findErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	s.logger.Info("wallet created",
		zap.String("wallet_id", wallet.ID.String()),
		zap.String("player_id", playerID.String()),
		zap.String("partner_id", partnerID.String()),
		zap.String("currency", currency))
	return wallet, true, nil
}

// SetWalletStatus updates the active and locked flags. It is a back-office
// operation gated on the wildcard grant.
func (s *service) SetWalletStatus(ctx context.Context, playerID, partnerID uuid.UUID, active, locked bool) (*Wallet, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.set_wallet_status")
	defer span.End()

	if err := s.partners.Check(ctx, partnerID, partner.PermissionAll); err != nil {
		return nil, err
	}

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	wallet, err := s.repo.GetWalletForUpdate(ctx, tx, playerID, partnerID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	wallet.IsActive = active
	wallet.IsLocked = locked
	if err := s.repo.SaveWalletInTx(ctx, tx, wallet); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.cache.Invalidate(ctx, wallet.ID, wallet.PlayerID, wallet.PartnerID); err != nil {
		s.logger.Warn("failed to invalidate balance cache",
			zap.String("wallet_id", wallet.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("wallet status changed",
		zap.String("wallet_id", wallet.ID.String()),
		zap.Bool("active", active),
		zap.Bool("locked", locked))
	return wallet, nil
}

// ListTransactions returns decoded transaction history for a partner.
func (s *service) ListTransactions(ctx context.Context, filter *ListTransactionsFilter) ([]*TransactionView, int64, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.list_transactions")
	defer span.End()
	span.SetAttributes(attribute.String("partner_id", filter.PartnerID.String()))

	if err := s.validate.Struct(filter); err != nil {
		return nil, 0, fmt.Errorf("invalid list filter: %w", err)
	}
	if err := s.partners.Check(ctx, filter.PartnerID, partner.PermissionRead); err != nil {
		return nil, 0, err
	}

	return s.repo.ListTransactions(ctx, filter)
}

// finishMutation runs the post-commit side effects shared by every
// balance-affecting operation. The ledger entry has already committed, so
// failures here are logged, never returned.
func (s *service) finishMutation(ctx context.Context, wallet *Wallet, entry *Transaction, amount, previous decimal.Decimal, metadata map[string]string) {
	if err := s.cache.Invalidate(ctx, wallet.ID, wallet.PlayerID, wallet.PartnerID); err != nil {
		s.logger.Warn("failed to invalidate balance cache",
			zap.String("wallet_id", wallet.ID.String()),
			zap.Error(err))
	}

	if s.bus == nil {
		return
	}

	now := time.Now().UTC()
	if err := s.bus.Publish(ctx, events.EventTransactionCompleted, &events.TransactionCompletedEvent{
		TransactionID: entry.ID,
		ReferenceID:   entry.ReferenceID,
		WalletID:      entry.WalletID,
		PlayerID:      entry.PlayerID,
		PartnerID:     entry.PartnerID,
		Type:          string(entry.Type),
		Amount:        amount,
		Currency:      entry.Currency,
		Balance:       entry.UpdatedBalance,
		Metadata:      metadata,
		Timestamp:     now,
	}); err != nil {
		s.logger.Warn("failed to publish transaction event",
			zap.String("transaction_id", entry.ID.String()),
			zap.Error(err))
	}

	if err := s.bus.Publish(ctx, events.EventBalanceChanged, &events.BalanceChangedEvent{
		WalletID:  wallet.ID,
		PlayerID:  wallet.PlayerID,
		PartnerID: wallet.PartnerID,
		Currency:  wallet.Currency,
		Previous:  previous,
		Current:   wallet.Balance,
		Timestamp: now,
	}); err != nil {
		s.logger.Warn("failed to publish balance event",
			zap.String("wallet_id", wallet.ID.String()),
			zap.Error(err))
	}
}

// validateWalletForMutation enforces the state checks shared by debit and
// credit.
func validateWalletForMutation(wallet *Wallet, currency string) error {
	if !wallet.IsActive {
		return ErrWalletInactive
	}
	if wallet.IsLocked {
		return ErrWalletLocked
	}
	if wallet.Currency != currency {
		return ErrCurrencyMismatch
	}
	return nil
}

// rollbackBalance computes the balance after inverting the original entry.
// Entries that debited the wallet are credited back and vice versa; the
// stored balance pair decides direction for types that can move either way.
func rollbackBalance(balance decimal.Decimal, original *Transaction, amount decimal.Decimal) decimal.Decimal {
	switch original.Type {
	case TransactionTypeBet, TransactionTypeWithdrawal, TransactionTypeCommission:
		return balance.Add(amount)
	case TransactionTypeWin, TransactionTypeDeposit, TransactionTypeRefund, TransactionTypeBonus:
		return balance.Sub(amount)
	default:
		if original.IsDebit() {
			return balance.Add(amount)
		}
		return balance.Sub(amount)
	}
}

func resultFromTransaction(tx *Transaction) *TransactionResult {
	return &TransactionResult{
		TransactionID: tx.ID,
		ReferenceID:   tx.ReferenceID,
		Status:        tx.Status,
		Balance:       tx.UpdatedBalance,
		Currency:      tx.Currency,
		CreatedAt:     tx.CreatedAt,
	}
}

func snapshotFromWallet(w *Wallet) *cache.BalanceSnapshot {
	return &cache.BalanceSnapshot{
		WalletID:  w.ID,
		PlayerID:  w.PlayerID,
		PartnerID: w.PartnerID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		IsActive:  w.IsActive,
		IsLocked:  w.IsLocked,
	}
}

func balanceFromWallet(w *Wallet) *WalletBalance {
	return &WalletBalance{
		WalletID:  w.ID,
		PlayerID:  w.PlayerID,
		PartnerID: w.PartnerID,
		Balance:   w.Balance,
		Currency:  w.Currency,
		IsActive:  w.IsActive,
		IsLocked:  w.IsLocked,
	}
}

func balanceFromSnapshot(s *cache.BalanceSnapshot) *WalletBalance {
	return &WalletBalance{
		WalletID:  s.WalletID,
		PlayerID:  s.PlayerID,
		PartnerID: s.PartnerID,
		Balance:   s.Balance,
		Currency:  s.Currency,
		IsActive:  s.IsActive,
		IsLocked:  s.IsLocked,
	}
}

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(data), nil
}
