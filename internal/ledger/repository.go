package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/musig5344/ocasino-sub000/internal/codec"
)

// Repository provides ledger persistence on top of gorm. Encrypted amounts
// never leave the repository in ciphertext form: read paths decode into
// TransactionView values, and DecodeAmount serves callers that must fail
// when a stored amount cannot be authenticated.
type Repository struct {
	db     *gorm.DB
	codec  *codec.AmountCodec
	logger *zap.Logger
}

// NewRepository creates a ledger repository.
func NewRepository(db *gorm.DB, amountCodec *codec.AmountCodec, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		codec:  amountCodec,
		logger: logger,
	}
}

// AutoMigrate creates or updates the ledger tables.
func (r *Repository) AutoMigrate() error {
	if err := r.db.AutoMigrate(&Wallet{}, &Transaction{}, &Balance{}); err != nil {
		return fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return nil
}

// EncodeAmount encrypts a transaction amount for storage. Every call
// produces fresh ciphertext, including re-encryption during rollback.
func (r *Repository) EncodeAmount(amount decimal.Decimal) (string, error) {
	ciphertext, err := r.codec.EncryptAmount(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailure, err)
	}
	return ciphertext, nil
}

// DecodeAmount decrypts a stored transaction amount. Rollback inversion
// depends on this value, so failures are fatal rather than degraded.
func (r *Repository) DecodeAmount(tx *Transaction) (decimal.Decimal, error) {
	amount, err := r.codec.DecryptAmount(tx.EncryptedAmount)
	if err != nil {
		ledgerDecodeFailures.Inc()
		return decimal.Zero, fmt.Errorf("%w: transaction %s: %v", ErrEncryptionFailure, tx.ID, err)
	}
	return amount, nil
}

// View converts a stored row into its decoded listing projection. Rows whose
// ciphertext fails authentication are returned with a zero amount and the
// AmountUnavailable marker instead of failing the whole listing.
func (r *Repository) View(tx *Transaction) *TransactionView {
	view := &TransactionView{
		ID:                    tx.ID,
		ReferenceID:           tx.ReferenceID,
		PartnerID:             tx.PartnerID,
		WalletID:              tx.WalletID,
		PlayerID:              tx.PlayerID,
		Type:                  tx.Type,
		Currency:              tx.Currency,
		Status:                tx.Status,
		OriginalBalance:       tx.OriginalBalance,
		UpdatedBalance:        tx.UpdatedBalance,
		OriginalTransactionID: tx.OriginalTransactionID,
		CreatedAt:             tx.CreatedAt,
	}

	amount, err := r.codec.DecryptAmount(tx.EncryptedAmount)
	if err != nil {
		ledgerDecodeFailures.Inc()
		r.logger.Error("failed to decode transaction amount",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
		view.Amount = decimal.Zero
		view.AmountUnavailable = true
		return view
	}

	view.Amount = amount
	return view
}

// GetWallet loads a wallet without locking it.
func (r *Repository) GetWallet(ctx context.Context, playerID, partnerID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND partner_id = ?", playerID, partnerID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}
	return &wallet, nil
}

// GetWalletForUpdate loads a wallet under FOR UPDATE inside dbTx. Holding
// this row lock is what serializes concurrent mutations of one wallet;
// nothing else in the engine takes locks.
func (r *Repository) GetWalletForUpdate(ctx context.Context, dbTx *gorm.DB, playerID, partnerID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := dbTx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("player_id = ? AND partner_id = ?", playerID, partnerID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// GetWalletForUpdateByID locks a wallet row by primary key inside dbTx.
func (r *Repository) GetWalletForUpdateByID(ctx context.Context, dbTx *gorm.DB, walletID uuid.UUID) (*Wallet, error) {
	var wallet Wallet
	err := dbTx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", walletID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock wallet: %w", err)
	}
	return &wallet, nil
}

// CreateWalletInTx inserts a new wallet row inside dbTx. A duplicate-key
// error surfaces as gorm.ErrDuplicatedKey so callers can fall back to the
// concurrently created row.
func (r *Repository) CreateWalletInTx(ctx context.Context, dbTx *gorm.DB, wallet *Wallet) error {
	if err := dbTx.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// SaveWalletInTx persists a mutated wallet inside dbTx.
func (r *Repository) SaveWalletInTx(ctx context.Context, dbTx *gorm.DB, wallet *Wallet) error {
	if err := dbTx.WithContext(ctx).Save(wallet).Error; err != nil {
		return fmt.Errorf("failed to save wallet: %w", err)
	}
	return nil
}

// FindTransactionByReference returns the transaction stored under an
// operator's idempotency key. Pass dbTx to read inside a held lock; with a
// nil dbTx the query runs on the pool.
func (r *Repository) FindTransactionByReference(ctx context.Context, dbTx *gorm.DB, partnerID uuid.UUID, referenceID string) (*Transaction, error) {
	db := r.db
	if dbTx != nil {
		db = dbTx
	}
	var tx Transaction
	err := db.WithContext(ctx).
		Where("partner_id = ? AND reference_id = ?", partnerID, referenceID).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &tx, nil
}

// FindTransactionByID loads a single transaction row.
func (r *Repository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var tx Transaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &tx, nil
}

// FindRollbackByOriginal returns the rollback entry that references the
// given original transaction, if one exists.
func (r *Repository) FindRollbackByOriginal(ctx context.Context, dbTx *gorm.DB, originalID uuid.UUID) (*Transaction, error) {
	db := r.db
	if dbTx != nil {
		db = dbTx
	}
	var tx Transaction
	err := db.WithContext(ctx).
		Where("original_transaction_id = ?", originalID).
		First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find rollback: %w", err)
	}
	return &tx, nil
}

// CreateTransactionInTx inserts a ledger entry inside dbTx. Unique-key
// violations on (partner_id, reference_id) or original_transaction_id map
// to ErrDuplicateTransaction.
func (r *Repository) CreateTransactionInTx(ctx context.Context, dbTx *gorm.DB, tx *Transaction) error {
	if err := dbTx.WithContext(ctx).Create(tx).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// ListTransactions returns decoded history entries, newest first, plus the
// total row count for the filter.
func (r *Repository) ListTransactions(ctx context.Context, filter *ListTransactionsFilter) ([]*TransactionView, int64, error) {
	query := r.db.WithContext(ctx).Model(&Transaction{}).Where("partner_id = ?", filter.PartnerID)
	if filter.PlayerID != nil {
		query = query.Where("player_id = ?", *filter.PlayerID)
	}
	if filter.WalletID != nil {
		query = query.Where("wallet_id = ?", *filter.WalletID)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var rows []*Transaction
	if err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}

	views := make([]*TransactionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, r.View(row))
	}
	return views, total, nil
}

// walletAggregate is one per-currency rollup row scanned from the wallets
// table.
type walletAggregate struct {
	Currency    string
	Total       decimal.Decimal
	Available   decimal.Decimal
	WalletCount int64
}

// AggregateWalletBalances sums wallet balances per currency for a partner.
// Available counts only active, unlocked wallets.
func (r *Repository) AggregateWalletBalances(ctx context.Context, partnerID uuid.UUID) ([]walletAggregate, error) {
	var aggs []walletAggregate
	err := r.db.WithContext(ctx).Model(&Wallet{}).
		Select("currency, COALESCE(SUM(balance), 0) AS total, COALESCE(SUM(CASE WHEN is_active AND NOT is_locked THEN balance ELSE 0 END), 0) AS available, COUNT(*) AS wallet_count").
		Where("partner_id = ?", partnerID).
		Group("currency").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate wallet balances: %w", err)
	}
	return aggs, nil
}

// ListPartnersWithWallets returns the distinct partner ids present in the
// wallets table.
func (r *Repository) ListPartnersWithWallets(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&Wallet{}).
		Distinct("partner_id").
		Pluck("partner_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	return ids, nil
}

// UpsertBalance writes one per-currency aggregate row, replacing any
// previous rollup for the same (partner_id, currency) pair.
func (r *Repository) UpsertBalance(ctx context.Context, balance *Balance) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partner_id"}, {Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_amount", "available_amount", "pending_amount", "wallet_count", "updated_at"}),
	}).Create(balance).Error
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

// GetBalanceAggregate loads the rollup row for a partner and currency.
func (r *Repository) GetBalanceAggregate(ctx context.Context, partnerID uuid.UUID, currency string) (*Balance, error) {
	var balance Balance
	err := r.db.WithContext(ctx).
		Where("partner_id = ? AND currency = ?", partnerID, currency).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance aggregate: %w", err)
	}
	return &balance, nil
}
