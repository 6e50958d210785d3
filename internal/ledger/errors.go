package ledger

import "errors"

// Sentinel errors returned by ledger operations. Callers branch on these
// with errors.Is; operator-facing layers map them onto response codes.
var (
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrWalletInactive           = errors.New("wallet inactive")
	ErrWalletLocked             = errors.New("wallet locked")
	ErrCurrencyMismatch         = errors.New("currency mismatch")
	ErrInsufficientFunds        = errors.New("insufficient funds")
	ErrDuplicateTransaction     = errors.New("duplicate transaction")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrInvalidTransactionStatus = errors.New("invalid transaction status")
	ErrEncryptionFailure        = errors.New("amount encryption failure")
	ErrInvalidAmount            = errors.New("amount must be positive")
)
