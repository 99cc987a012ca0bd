package mysql

import (
	"context"

	"gorm.io/gorm"

	"agrifin-loan-engine/internal/domain/ledger"
	loanDomain "agrifin-loan-engine/internal/domain/loan"
)

type TransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *ledger.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, loanID uint64, transactionID string) (*ledger.Transaction, error) {
	var out ledger.Transaction
	res := r.db.WithContext(ctx).
		Where("loan_id = ? AND transaction_id = ?", loanID, transactionID).
		First(&out)
	return found(&out, res.Error, loanDomain.ErrTransactionNotFound)
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, loanID uint64, key string) (*ledger.Transaction, error) {
	var out ledger.Transaction
	res := r.db.WithContext(ctx).
		Where("loan_id = ? AND idempotency_key = ?", loanID, key).
		First(&out)
	return found(&out, res.Error, loanDomain.ErrTransactionNotFound)
}

func (r *TransactionRepository) ListByLoan(ctx context.Context, loanID uint64, uptoSeq uint64) ([]ledger.Transaction, error) {
	var out []ledger.Transaction
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND sequence <= ?", loanID, uptoSeq).
		Order("sequence ASC").
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) CountByType(ctx context.Context, loanID uint64, t ledger.Type) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&ledger.Transaction{}).
		Where("loan_id = ? AND type = ? AND status = ?", loanID, t, ledger.StatusCompleted).
		Count(&n).Error
	return n, err
}

// MarkReconciled is the only update the ledger ever sees; amounts stay untouched.
func (r *TransactionRepository) MarkReconciled(ctx context.Context, loanID uint64, uptoSeq uint64) error {
	return r.db.WithContext(ctx).
		Model(&ledger.Transaction{}).
		Where("loan_id = ? AND sequence <= ? AND status = ? AND is_reconciled = ?", loanID, uptoSeq, ledger.StatusCompleted, false).
		UpdateColumn("is_reconciled", true).Error
}
