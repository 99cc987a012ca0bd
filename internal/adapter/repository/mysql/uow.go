package mysql

import (
	"context"

	"gorm.io/gorm"

	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
)

type GormUoW struct {
	db     *gorm.DB
	locker uow.Locker
}

func NewGormUoW(db *gorm.DB, locker uow.Locker) *GormUoW {
	return &GormUoW{db: db, locker: locker}
}

func repos(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Loans:        &LoanRepository{db: tx},
		Transactions: &TransactionRepository{db: tx},
		Approvals:    &ApprovalRepository{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repos(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanID string, fn func(r uow.Repos, l *loan.Loan) error) error {
	unlock, err := u.locker.Lock(ctx, "loan:"+loanID)
	if err != nil {
		return err
	}
	defer unlock()

	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := repos(tx)
		// lock the loan row up-front; the process lock alone does not cover other writers
		l, err := r.Loans.GetByLoanIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}
