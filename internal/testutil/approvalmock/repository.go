package approvalmock

import (
	"context"
	"errors"

	domain "agrifin-loan-engine/internal/domain/approval"
)

var _ domain.Repository = (*Repo)(nil)

var errUnimplemented = errors.New("approvalmock: method not implemented")

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	Next domain.Repository

	CreateFn       func(ctx context.Context, a *domain.Approval) error
	GetByLoanIDFn  func(ctx context.Context, loanNumericID uint64) (*domain.Approval, error)
	ListByLoanIDFn func(ctx context.Context, loanNumericID uint64) ([]domain.Approval, error)
}

func (m *Repo) Create(ctx context.Context, a *domain.Approval) error {
	switch {
	case m.CreateFn != nil:
		return m.CreateFn(ctx, a)
	case m.Next != nil:
		return m.Next.Create(ctx, a)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanNumericID uint64) (*domain.Approval, error) {
	switch {
	case m.GetByLoanIDFn != nil:
		return m.GetByLoanIDFn(ctx, loanNumericID)
	case m.Next != nil:
		return m.Next.GetByLoanID(ctx, loanNumericID)
	}
	return nil, errUnimplemented
}

func (m *Repo) ListByLoanID(ctx context.Context, loanNumericID uint64) ([]domain.Approval, error) {
	switch {
	case m.ListByLoanIDFn != nil:
		return m.ListByLoanIDFn(ctx, loanNumericID)
	case m.Next != nil:
		return m.Next.ListByLoanID(ctx, loanNumericID)
	}
	return nil, errUnimplemented
}
