package mysql

import (
	"context"

	approvalDomain "agrifin-loan-engine/internal/domain/approval"

	"gorm.io/gorm"
)

type ApprovalRepository struct{ db *gorm.DB }

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository { return &ApprovalRepository{db: db} }

func (r *ApprovalRepository) Create(ctx context.Context, a *approvalDomain.Approval) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *ApprovalRepository) GetByLoanID(ctx context.Context, loanNumericID uint64) (*approvalDomain.Approval, error) {
	var out approvalDomain.Approval
	res := r.db.WithContext(ctx).
		Where("loan_id = ?", loanNumericID).
		Order("decision_date DESC, id DESC").
		First(&out)
	return found(&out, res.Error, approvalDomain.ErrNotFound)
}

func (r *ApprovalRepository) ListByLoanID(ctx context.Context, loanNumericID uint64) ([]approvalDomain.Approval, error) {
	var out []approvalDomain.Approval
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanNumericID).
		Order("decision_date ASC, id ASC").
		Find(&out).Error
	return out, err
}
