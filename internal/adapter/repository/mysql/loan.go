package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	loanDomain "agrifin-loan-engine/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) GetByLoanID(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out)
	return found(&out, res.Error, loanDomain.ErrNotFound)
}

func (r *LoanRepository) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("loan_id = ?", loanID).
		First(&out)
	return found(&out, res.Error, loanDomain.ErrNotFound)
}

func (r *LoanRepository) GetPendingLoanByBorrowerID(ctx context.Context, borrowerID string) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Where("borrower_id = ? AND status IN ?", borrowerID, []loanDomain.Status{
			loanDomain.StatusDraft, loanDomain.StatusSubmitted, loanDomain.StatusUnderReview,
		}).
		Order("status_updated_at DESC, id DESC").
		First(&out)
	return found(&out, res.Error, loanDomain.ErrNotFound)
}

func (r *LoanRepository) ListReconcilable(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("archived_at IS NULL AND ledger_sequence > 0").
		Order("id").
		Pluck("loan_id", &ids).Error
	return ids, err
}

func (r *LoanRepository) SetReconciled(ctx context.Context, id uint64, reconciled bool) error {
	return r.db.WithContext(ctx).
		Model(&loanDomain.Loan{}).
		Where("id = ?", id).
		UpdateColumn("is_reconciled", reconciled).Error
}

// found maps gorm's not-found onto the domain sentinel.
func found[T any](v *T, err error, notFound error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
