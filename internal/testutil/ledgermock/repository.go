package ledgermock

import (
	"context"
	"errors"

	"agrifin-loan-engine/internal/domain/ledger"
)

var _ ledger.Repository = (*Repo)(nil)

var errUnimplemented = errors.New("ledgermock: method not implemented")

// Repo is a function-backed mock that satisfies ledger.Repository, with the
// same fall-through to Next as loanmock.Repo.
type Repo struct {
	Next ledger.Repository

	CreateFn              func(ctx context.Context, tx *ledger.Transaction) error
	GetByTransactionIDFn  func(ctx context.Context, loanID uint64, transactionID string) (*ledger.Transaction, error)
	GetByIdempotencyKeyFn func(ctx context.Context, loanID uint64, key string) (*ledger.Transaction, error)
	ListByLoanFn          func(ctx context.Context, loanID uint64, uptoSeq uint64) ([]ledger.Transaction, error)
	CountByTypeFn         func(ctx context.Context, loanID uint64, t ledger.Type) (int64, error)
	MarkReconciledFn      func(ctx context.Context, loanID uint64, uptoSeq uint64) error
}

func (m *Repo) Create(ctx context.Context, tx *ledger.Transaction) error {
	switch {
	case m.CreateFn != nil:
		return m.CreateFn(ctx, tx)
	case m.Next != nil:
		return m.Next.Create(ctx, tx)
	}
	return nil
}

func (m *Repo) GetByTransactionID(ctx context.Context, loanID uint64, transactionID string) (*ledger.Transaction, error) {
	switch {
	case m.GetByTransactionIDFn != nil:
		return m.GetByTransactionIDFn(ctx, loanID, transactionID)
	case m.Next != nil:
		return m.Next.GetByTransactionID(ctx, loanID, transactionID)
	}
	return nil, errUnimplemented
}

func (m *Repo) GetByIdempotencyKey(ctx context.Context, loanID uint64, key string) (*ledger.Transaction, error) {
	switch {
	case m.GetByIdempotencyKeyFn != nil:
		return m.GetByIdempotencyKeyFn(ctx, loanID, key)
	case m.Next != nil:
		return m.Next.GetByIdempotencyKey(ctx, loanID, key)
	}
	return nil, errUnimplemented
}

func (m *Repo) ListByLoan(ctx context.Context, loanID uint64, uptoSeq uint64) ([]ledger.Transaction, error) {
	switch {
	case m.ListByLoanFn != nil:
		return m.ListByLoanFn(ctx, loanID, uptoSeq)
	case m.Next != nil:
		return m.Next.ListByLoan(ctx, loanID, uptoSeq)
	}
	return nil, errUnimplemented
}

func (m *Repo) CountByType(ctx context.Context, loanID uint64, t ledger.Type) (int64, error) {
	switch {
	case m.CountByTypeFn != nil:
		return m.CountByTypeFn(ctx, loanID, t)
	case m.Next != nil:
		return m.Next.CountByType(ctx, loanID, t)
	}
	return 0, errUnimplemented
}

func (m *Repo) MarkReconciled(ctx context.Context, loanID uint64, uptoSeq uint64) error {
	switch {
	case m.MarkReconciledFn != nil:
		return m.MarkReconciledFn(ctx, loanID, uptoSeq)
	case m.Next != nil:
		return m.Next.MarkReconciled(ctx, loanID, uptoSeq)
	}
	return nil
}
