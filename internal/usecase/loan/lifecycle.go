package loan

import (
	"context"
	"fmt"
	"time"

	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
)

// Submit hands a draft to credit review. The loan's terms are frozen from here.
func (u *Usecase) Submit(ctx context.Context, loanID, actor string) (*loan.Loan, error) {
	var res *loan.Loan
	err := u.poster.Exec(ctx, "submit", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		if !loan.CanTransition(l.Status, loan.EventSubmit) {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: loan.EventSubmit}
		}
		now := u.poster.Now()
		l.SubmittedAt = &now
		if err := u.move(ctx, r, l, loan.EventSubmit, actor, out); err != nil {
			return err
		}
		res = l
		return nil
	})
	return res, err
}

// Cancel withdraws a loan that has not received any funds.
func (u *Usecase) Cancel(ctx context.Context, loanID, actor, reason string) (*loan.Loan, error) {
	var res *loan.Loan
	err := u.poster.Exec(ctx, "cancel", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		if !loan.CanTransition(l.Status, loan.EventCancel) {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: loan.EventCancel}
		}
		if l.DisbursedAmount.IsPositive() {
			return &loan.InvalidTransitionError{
				LoanID: l.LoanID,
				From:   l.Status,
				Event:  loan.EventCancel,
				Reason: fmt.Sprintf("%s already disbursed", l.DisbursedAmount),
			}
		}
		now := u.poster.Now()
		l.ClosedAt = &now
		if reason != "" {
			l.RejectionReason = reason
		}
		if err := u.move(ctx, r, l, loan.EventCancel, actor, out); err != nil {
			return err
		}
		res = l
		return nil
	})
	return res, err
}

// Activate starts repayment. A nil firstPayment defaults to one month after
// disbursement.
func (u *Usecase) Activate(ctx context.Context, loanID, actor string, firstPayment *time.Time) (*loan.Loan, error) {
	var res *loan.Loan
	err := u.poster.Exec(ctx, "activate", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		if !loan.CanTransition(l.Status, loan.EventActivate) {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: loan.EventActivate}
		}
		fp := u.poster.Now().AddDate(0, 1, 0)
		if l.DisbursementDate != nil {
			fp = l.DisbursementDate.AddDate(0, 1, 0)
		}
		if firstPayment != nil {
			fp = firstPayment.UTC()
		}
		maturity := fp.AddDate(0, l.TenorMonths-1, 0)
		l.FirstPaymentDate = &fp
		l.MaturityDate = &maturity
		if err := u.move(ctx, r, l, loan.EventActivate, actor, out); err != nil {
			return err
		}
		res = l
		return nil
	})
	return res, err
}

// MarkDefaulted moves an active loan to defaulted once the missed installments
// as of asOf reach the policy threshold.
func (u *Usecase) MarkDefaulted(ctx context.Context, loanID, actor string, asOf time.Time) (*loan.Loan, error) {
	var res *loan.Loan
	err := u.poster.Exec(ctx, "default", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		if !loan.CanTransition(l.Status, loan.EventDefault) {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: loan.EventDefault}
		}
		missed := MissedInstallments(l, asOf)
		if missed < u.policy.DefaultAfterMissed {
			return &loan.InvalidTransitionError{
				LoanID: l.LoanID,
				From:   l.Status,
				Event:  loan.EventDefault,
				Reason: fmt.Sprintf("%d missed installments, policy requires %d", missed, u.policy.DefaultAfterMissed),
			}
		}
		now := u.poster.Now()
		l.ClosedAt = &now
		if err := u.move(ctx, r, l, loan.EventDefault, actor, out); err != nil {
			return err
		}
		res = l
		return nil
	})
	return res, err
}

// Archive hides a closed loan from sweeps. Loans are never deleted.
func (u *Usecase) Archive(ctx context.Context, loanID, actor string) (*loan.Loan, error) {
	var res *loan.Loan
	err := u.poster.Exec(ctx, "archive", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		res = l
		if l.ArchivedAt != nil {
			return nil
		}
		if !l.Status.IsTerminal() {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Reason: "only closed loans can be archived"}
		}
		now := u.poster.Now()
		l.ArchivedAt = &now
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		u.log.Infow("loan archived", "loan_id", l.LoanID, "actor", actor)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
