package uow

import (
	"context"

	"agrifin-loan-engine/internal/domain/approval"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
)

// Repos are bound to the enclosing DB transaction.
type Repos struct {
	Loans        loan.Repository
	Transactions ledger.Repository
	Approvals    approval.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// exclusive per-loan section: take the loan lock, open a tx, row-lock the
	// loan, then pass it in. Returning an error rolls everything back.
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}

// Locker serializes mutations per key across goroutines (or replicas).
type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
