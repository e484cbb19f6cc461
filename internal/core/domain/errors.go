package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the wallet core wraps exactly one of
// these, so callers can classify failures with errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotFound         = errors.New("not found")
	ErrNetworkFailure   = errors.New("network failure")
	ErrProtocol         = errors.New("protocol error")
	ErrState            = errors.New("state error")
	ErrDecryptionFailed = errors.New("decryption failed")
)

var (
	ErrDuplicateProof       = fmt.Errorf("%w: duplicate proof", ErrInvalidInput)
	ErrInsufficientBalance  = fmt.Errorf("%w: insufficient balance", ErrState)
	ErrInvoiceMissingAmount = fmt.Errorf("%w: invoice is missing amount", ErrInvalidInput)
	ErrInvalidAmount        = fmt.Errorf("%w: amount must be greater than zero", ErrInvalidInput)
	ErrInvalidMintURL       = fmt.Errorf("%w: malformed mint url", ErrInvalidInput)
	ErrInvalidToken         = fmt.Errorf("%w: malformed token", ErrInvalidInput)
	ErrInvalidUnit          = fmt.Errorf("%w: unit not supported by mint", ErrInvalidInput)
	ErrTokenMintMismatch    = fmt.Errorf("%w: token belongs to another mint", ErrInvalidInput)
	ErrMintNotFound         = fmt.Errorf("%w: mint", ErrNotFound)
	ErrWalletNotFound       = fmt.Errorf("%w: wallet", ErrNotFound)
	ErrVaultNotFound        = fmt.Errorf("%w: seed vault", ErrNotFound)
	ErrQuoteNotFound        = fmt.Errorf("%w: quote", ErrNotFound)
	ErrProofNotFound        = fmt.Errorf("%w: proof", ErrNotFound)
	ErrTransactionNotFound  = fmt.Errorf("%w: transaction", ErrNotFound)
	ErrMintAlreadyExists    = fmt.Errorf("%w: mint already exists", ErrState)
	ErrQuoteAlreadyExists   = fmt.Errorf("%w: quote already exists", ErrState)
	ErrVaultAlreadyExists   = fmt.Errorf("%w: seed vault already exists", ErrState)
	ErrProofNotUnspent      = fmt.Errorf("%w: proof not unspent", ErrState)
	ErrCounterOverflow      = fmt.Errorf("%w: keyset counter overflow", ErrState)
	ErrNotInitialized       = fmt.Errorf("%w: wallet not initialized", ErrState)
	ErrStalePreparedSend    = fmt.Errorf("%w: prepared send no longer valid", ErrState)
	ErrQuoteNotPaid         = fmt.Errorf("%w: quote not paid", ErrProtocol)
	ErrQuoteExpired         = fmt.Errorf("%w: quote expired", ErrProtocol)
	ErrFeeTooHigh           = fmt.Errorf("%w: fee reserve exceeds max fee", ErrProtocol)
	ErrMintUnreachable      = fmt.Errorf("%w: mint unreachable", ErrNetworkFailure)
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidInput, "InvalidInput"},
	{ErrNotFound, "NotFound"},
	{ErrNetworkFailure, "NetworkFailure"},
	{ErrProtocol, "ProtocolError"},
	{ErrState, "StateError"},
	{ErrDecryptionFailed, "DecryptionFailed"},
}

// ErrorKind returns the name of the kind wrapped by err, or "Unknown" if err
// doesn't wrap any of the known kinds.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// NetworkError wraps err as a retryable network failure.
func NetworkError(err error) error {
	if err == nil || errors.Is(err, ErrNetworkFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
}

// ProtocolError wraps a rejection coming from a mint.
func ProtocolError(detail string) error {
	return fmt.Errorf("%w: %s", ErrProtocol, detail)
}
