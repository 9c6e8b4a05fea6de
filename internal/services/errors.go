package services

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Kind separates "nothing happened, fix your input" from "try again later".
type Kind int

const (
	KindRejected Kind = iota
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "rejected"
}

// LedgerError is a typed business or infrastructure failure.
type LedgerError struct {
	Code string
	Kind Kind
}

func (e *LedgerError) Error() string {
	return e.Code
}

var (
	ErrInsufficientBalance    = &LedgerError{Code: "insufficient_balance", Kind: KindRejected}
	ErrInvalidAmount          = &LedgerError{Code: "invalid_amount", Kind: KindRejected}
	ErrInvalidInput           = &LedgerError{Code: "invalid_input", Kind: KindRejected}
	ErrAlreadyPaid            = &LedgerError{Code: "already_paid", Kind: KindRejected}
	ErrAlreadySettled         = &LedgerError{Code: "already_settled", Kind: KindRejected}
	ErrMissingRequiredAccount = &LedgerError{Code: "missing_required_account", Kind: KindRejected}
	ErrCurrencyMismatch       = &LedgerError{Code: "currency_mismatch", Kind: KindRejected}
	ErrDeletionBlocked        = &LedgerError{Code: "deletion_blocked", Kind: KindRejected}
	ErrNotFound               = &LedgerError{Code: "not_found", Kind: KindRejected}
	ErrAccountInactive        = &LedgerError{Code: "account_inactive", Kind: KindRejected}

	ErrRateUnavailable    = &LedgerError{Code: "rate_unavailable", Kind: KindTransient}
	ErrConcurrentUpdate   = &LedgerError{Code: "concurrent_update", Kind: KindTransient}
	ErrPersistenceFailure = &LedgerError{Code: "persistence_failure", Kind: KindTransient}
)

// KindOf classifies err. Errors outside the taxonomy count as transient.
func KindOf(err error) Kind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindTransient
}

// IsTransient reports whether the caller may retry the same request.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// CodeOf returns the taxonomy code, or persistence_failure for foreign errors.
func CodeOf(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrPersistenceFailure.Code
}

func rejectf(base *LedgerError, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}

// persistence wraps a storage error. Foreign-key violations mean some other
// row still depends on the one being removed.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return fmt.Errorf("%w: %s: %v", ErrDeletionBlocked, op, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistenceFailure, op, err)
}
