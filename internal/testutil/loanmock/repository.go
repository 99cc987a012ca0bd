package loanmock

import (
	"context"
	"errors"

	domain "agrifin-loan-engine/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

var errUnimplemented = errors.New("loanmock: method not implemented")

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset reads fall through to Next when it is set, else return errUnimplemented.
// Unset writes are no-ops unless Next is set.
type Repo struct {
	Next domain.Repository

	CreateFn                     func(ctx context.Context, l *domain.Loan) error
	SaveFn                       func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn                func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn       func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetPendingLoanByBorrowerIDFn func(ctx context.Context, borrowerID string) (*domain.Loan, error)
	ListReconcilableFn           func(ctx context.Context) ([]string, error)
	SetReconciledFn              func(ctx context.Context, id uint64, reconciled bool) error
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	switch {
	case m.CreateFn != nil:
		return m.CreateFn(ctx, l)
	case m.Next != nil:
		return m.Next.Create(ctx, l)
	}
	return nil
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	switch {
	case m.SaveFn != nil:
		return m.SaveFn(ctx, l)
	case m.Next != nil:
		return m.Next.Save(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	switch {
	case m.GetByLoanIDFn != nil:
		return m.GetByLoanIDFn(ctx, loanID)
	case m.Next != nil:
		return m.Next.GetByLoanID(ctx, loanID)
	}
	return nil, errUnimplemented
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	switch {
	case m.GetByLoanIDForUpdateFn != nil:
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	case m.Next != nil:
		return m.Next.GetByLoanIDForUpdate(ctx, loanID)
	}
	return nil, errUnimplemented
}

func (m *Repo) GetPendingLoanByBorrowerID(ctx context.Context, borrowerID string) (*domain.Loan, error) {
	switch {
	case m.GetPendingLoanByBorrowerIDFn != nil:
		return m.GetPendingLoanByBorrowerIDFn(ctx, borrowerID)
	case m.Next != nil:
		return m.Next.GetPendingLoanByBorrowerID(ctx, borrowerID)
	}
	return nil, errUnimplemented
}

func (m *Repo) ListReconcilable(ctx context.Context) ([]string, error) {
	switch {
	case m.ListReconcilableFn != nil:
		return m.ListReconcilableFn(ctx)
	case m.Next != nil:
		return m.Next.ListReconcilable(ctx)
	}
	return nil, errUnimplemented
}

func (m *Repo) SetReconciled(ctx context.Context, id uint64, reconciled bool) error {
	switch {
	case m.SetReconciledFn != nil:
		return m.SetReconciledFn(ctx, id, reconciled)
	case m.Next != nil:
		return m.Next.SetReconciled(ctx, id, reconciled)
	}
	return nil
}
