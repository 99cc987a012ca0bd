package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	Save(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	// GetByLoanIDForUpdate row-locks the loan; only meaningful inside a tx.
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	GetPendingLoanByBorrowerID(ctx context.Context, borrowerID string) (*Loan, error)

	// ListReconcilable returns public ids of non-archived loans with ledger activity.
	ListReconcilable(ctx context.Context) ([]string, error)
	// SetReconciled only touches the drift flag.
	SetReconciled(ctx context.Context, id uint64, reconciled bool) error
}
