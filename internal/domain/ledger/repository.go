package ledger

import "context"

type Repository interface {
	// Create appends an entry. There is no update of amounts or balances.
	Create(ctx context.Context, tx *Transaction) error
	GetByTransactionID(ctx context.Context, loanID uint64, transactionID string) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, loanID uint64, key string) (*Transaction, error)
	// ListByLoan returns entries with sequence <= uptoSeq in sequence order.
	ListByLoan(ctx context.Context, loanID uint64, uptoSeq uint64) ([]Transaction, error)
	CountByType(ctx context.Context, loanID uint64, t Type) (int64, error)
	// MarkReconciled flips the reconciliation flag on completed entries up to uptoSeq.
	MarkReconciled(ctx context.Context, loanID uint64, uptoSeq uint64) error
}
