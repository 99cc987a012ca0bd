package approval

import "context"

type Repository interface {
	Create(ctx context.Context, a *Approval) error

	// Latest decision for a loan (numeric FK)
	GetByLoanID(ctx context.Context, loanID uint64) (*Approval, error)

	// Full decision history, oldest first
	ListByLoanID(ctx context.Context, loanID uint64) ([]Approval, error)
}
