package loan

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"agrifin-loan-engine/pkg/amortization"
)

var (
	ErrNotFound                = errors.New("loan not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrPendingLoanExists       = errors.New("borrower already has a pending loan")
	ErrInvalidTransition       = errors.New("invalid loan transition")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrOverpayment             = errors.New("repayment exceeds outstanding balance")
	ErrInsufficientHeadroom    = errors.New("disbursement exceeds committed principal")
	ErrConcurrencyTimeout      = errors.New("timed out on loan lock")
	ErrReconciliationDrift     = errors.New("reconciliation drift")
	ErrPersistence             = errors.New("persistence failure")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidTerms is re-exported so callers need not import the calculator.
	ErrInvalidTerms = amortization.ErrInvalidTerms
)

// InvalidTransitionError is a state machine rule violation. Event is empty when
// the rejected operation was a ledger posting rather than a status change.
type InvalidTransitionError struct {
	LoanID string
	From   Status
	Event  Event
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition from %s", e.From)
	if e.Event != "" {
		msg += fmt.Sprintf(" on %s", e.Event)
	}
	if e.LoanID != "" {
		msg += " for loan " + e.LoanID
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

type OverpaymentError struct {
	Outstanding decimal.Decimal
	Requested   decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("repayment of %s exceeds outstanding balance %s", e.Requested, e.Outstanding)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

type InsufficientHeadroomError struct {
	Principal decimal.Decimal
	Disbursed decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientHeadroomError) Error() string {
	return fmt.Sprintf("disbursement of %s exceeds headroom %s (principal %s, disbursed %s)",
		e.Requested, e.Principal.Sub(e.Disbursed), e.Principal, e.Disbursed)
}

func (e *InsufficientHeadroomError) Unwrap() error { return ErrInsufficientHeadroom }

// ReconciliationDriftError is advisory: it reports, it never corrects.
type ReconciliationDriftError struct {
	LoanID string
	Fields []string
}

func (e *ReconciliationDriftError) Error() string {
	return fmt.Sprintf("reconciliation drift on loan %s: %v", e.LoanID, e.Fields)
}

func (e *ReconciliationDriftError) Unwrap() error { return ErrReconciliationDrift }

// PersistenceError wraps a storage failure. Both ErrPersistence and the
// underlying driver error stay reachable through errors.Is.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// Code maps an engine error to a stable machine-readable code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTerms):
		return "INVALID_TERMS"
	case errors.Is(err, ErrInvalidTransition):
		return "INVALID_TRANSITION"
	case errors.Is(err, ErrOverpayment):
		return "OVERPAYMENT"
	case errors.Is(err, ErrInsufficientHeadroom):
		return "INSUFFICIENT_HEADROOM"
	case errors.Is(err, ErrConcurrencyTimeout):
		return "CONCURRENCY_TIMEOUT"
	case errors.Is(err, ErrReconciliationDrift):
		return "RECONCILIATION_DRIFT"
	case errors.Is(err, ErrNotFound):
		return "LOAN_NOT_FOUND"
	case errors.Is(err, ErrTransactionNotFound):
		return "TRANSACTION_NOT_FOUND"
	case errors.Is(err, ErrPendingLoanExists):
		return "PENDING_LOAN_EXISTS"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		return "DUPLICATE_IDEMPOTENCY_KEY"
	case errors.Is(err, ErrPersistence):
		return "PERSISTENCE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsRetryable reports whether the caller may safely retry the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyTimeout) || errors.Is(err, ErrPersistence)
}

// Classify turns whatever came out of a unit of work into the engine taxonomy:
// domain errors pass through, context expiry becomes ErrConcurrencyTimeout and
// anything else is a PersistenceError.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrencyTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %v", ErrConcurrencyTimeout, op, err)
	}
	switch Code(err) {
	case "INTERNAL_ERROR", "PERSISTENCE_ERROR":
	default:
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
