package loan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
	ledgeruc "agrifin-loan-engine/internal/usecase/ledger"
	"agrifin-loan-engine/pkg/amortization"
)

// Disburse releases funds on an approved loan. Tranched loans stay approved
// until the last tranche completes the committed principal.
func (u *Usecase) Disburse(ctx context.Context, loanID string, in DisburseInput) (*PostingResult, error) {
	var res *PostingResult
	err := u.poster.Exec(ctx, "disburse", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		prev, err := u.poster.Replay(ctx, r, l, in.IdempotencyKey, ledger.TypeDisbursement, in.Tranche)
		if err != nil {
			return err
		}
		if prev != nil {
			res = &PostingResult{Loan: l, Transactions: []*ledger.Transaction{prev}, Replayed: true}
			return nil
		}

		if !loan.CanTransition(l.Status, loan.EventDisburse) {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: loan.EventDisburse}
		}

		headroom := l.Headroom()
		amount := headroom
		if in.Tranche != nil {
			amount = *in.Tranche
		}
		if amount.GreaterThan(headroom) {
			return &loan.InsufficientHeadroomError{Principal: l.Principal, Disbursed: l.DisbursedAmount, Requested: amount}
		}
		if amount.LessThan(headroom) {
			if l.Tranches <= 1 {
				return fmt.Errorf("%w: loan is not tranched, disburse the full %s", loan.ErrInvalidAmount, headroom)
			}
			done, err := r.Transactions.CountByType(ctx, l.ID, ledger.TypeDisbursement)
			if err != nil {
				return err
			}
			if done+1 >= int64(l.Tranches) {
				return fmt.Errorf("%w: final tranche must release the remaining %s", loan.ErrInvalidAmount, headroom)
			}
		}

		posted, err := u.poster.Post(ctx, r, l, ledgeruc.PostInput{
			Type:           ledger.TypeDisbursement,
			Amount:         amount,
			PayerID:        l.LenderID,
			PayeeID:        l.BorrowerID,
			ProcessedBy:    in.ProcessedBy,
			Method:         in.Method,
			IdempotencyKey: in.IdempotencyKey,
		}, out)
		if err != nil {
			return err
		}

		if l.DisbursementDate == nil {
			at := posted.Transaction.CreatedAt
			l.DisbursementDate = &at
		}
		if l.Headroom().IsZero() {
			if err := u.move(ctx, r, l, loan.EventDisburse, in.ProcessedBy, out); err != nil {
				return err
			}
		} else if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		res = &PostingResult{Loan: l, Transactions: []*ledger.Transaction{posted.Transaction}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// refundKey derives the key of the refund split off a repayment. It is a fixed
// length so any accepted repayment key yields one that fits the column.
func refundKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return "refund:" + hex.EncodeToString(sum[:16])
}

// RecordRepayment posts a repayment-class entry on an active loan and
// completes the loan when nothing is left outstanding.
func (u *Usecase) RecordRepayment(ctx context.Context, loanID string, in RepaymentInput) (*PostingResult, error) {
	if in.Kind == "" {
		in.Kind = ledger.TypeRepayment
	}
	if !in.Kind.IsRepaymentClass() {
		return nil, fmt.Errorf("%w: %s is not a repayment kind", loan.ErrInvalidInput, in.Kind)
	}

	var res *PostingResult
	err := u.poster.Exec(ctx, "repay", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		replayed, err := u.replayRepayment(ctx, r, l, in)
		if err != nil {
			return err
		}
		if replayed != nil {
			res = replayed
			return nil
		}

		if !loan.CanTransition(l.Status, loan.EventRepay) {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: loan.EventRepay}
		}

		amount, excess := in.Amount, decimal.Zero
		if in.AllowRefund && amount.GreaterThan(l.OutstandingBalance) && l.OutstandingBalance.IsPositive() {
			amount, excess = l.OutstandingBalance, amount.Sub(l.OutstandingBalance)
		}

		posted, err := u.poster.Post(ctx, r, l, ledgeruc.PostInput{
			Type:           in.Kind,
			Amount:         amount,
			PayerID:        in.PayerID,
			PayeeID:        l.LenderID,
			ProcessedBy:    in.ProcessedBy,
			Method:         in.Method,
			IdempotencyKey: in.IdempotencyKey,
		}, out)
		if err != nil {
			return err
		}
		res = &PostingResult{Loan: l, Transactions: []*ledger.Transaction{posted.Transaction}}

		if l.OutstandingBalance.IsZero() {
			now := u.poster.Now()
			l.ClosedAt = &now
			if err := u.move(ctx, r, l, loan.EventComplete, in.ProcessedBy, out); err != nil {
				return err
			}
		}

		if excess.IsPositive() {
			refund, err := u.poster.Post(ctx, r, l, ledgeruc.PostInput{
				Type:           ledger.TypeRefund,
				Amount:         excess,
				PayerID:        l.LenderID,
				PayeeID:        in.PayerID,
				ProcessedBy:    in.ProcessedBy,
				Method:         in.Method,
				IdempotencyKey: refundKey(in.IdempotencyKey),
				Notes:          "overpayment refund",
			}, out)
			if err != nil {
				return err
			}
			res.Transactions = append(res.Transactions, refund.Transaction)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// replayRepayment recognizes a retried repayment, including one that was
// split into a settling repayment and a refund.
func (u *Usecase) replayRepayment(ctx context.Context, r uow.Repos, l *loan.Loan, in RepaymentInput) (*PostingResult, error) {
	if in.IdempotencyKey == "" {
		return nil, nil
	}
	prev, err := u.poster.Replay(ctx, r, l, in.IdempotencyKey, in.Kind, nil)
	if err != nil || prev == nil {
		return nil, err
	}
	res := &PostingResult{Loan: l, Transactions: []*ledger.Transaction{prev}, Replayed: true}
	total := prev.Amount
	if in.AllowRefund {
		refund, err := u.poster.Replay(ctx, r, l, refundKey(in.IdempotencyKey), ledger.TypeRefund, nil)
		if err != nil {
			return nil, err
		}
		if refund != nil {
			res.Transactions = append(res.Transactions, refund)
			total = total.Add(refund.Amount)
		}
	}
	if !total.Equal(in.Amount) {
		return nil, fmt.Errorf("%w: %q was used for %s %s", loan.ErrDuplicateIdempotencyKey, in.IdempotencyKey, prev.Type, total)
	}
	return res, nil
}

// AccrueInterest books one period of interest on the outstanding balance as a
// positive adjustment.
func (u *Usecase) AccrueInterest(ctx context.Context, loanID, actor, idempotencyKey string) (*PostingResult, error) {
	var res *PostingResult
	err := u.poster.Exec(ctx, "accrue interest", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		prev, err := u.poster.Replay(ctx, r, l, idempotencyKey, ledger.TypeAdjustment, nil)
		if err != nil {
			return err
		}
		if prev != nil {
			res = &PostingResult{Loan: l, Transactions: []*ledger.Transaction{prev}, Replayed: true}
			return nil
		}
		if l.Status != loan.StatusActive {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Reason: "interest accrues on active loans only"}
		}
		interest := amortization.MonthlyInterest(l.OutstandingBalance, l.AnnualRate, l.Currency)
		if !interest.IsPositive() {
			return fmt.Errorf("%w: no interest to accrue", loan.ErrInvalidAmount)
		}
		posted, err := u.poster.Post(ctx, r, l, ledgeruc.PostInput{
			Type:           ledger.TypeAdjustment,
			Amount:         interest,
			ProcessedBy:    actor,
			IdempotencyKey: idempotencyKey,
			Notes:          "interest accrual",
		}, out)
		if err != nil {
			return err
		}
		res = &PostingResult{Loan: l, Transactions: []*ledger.Transaction{posted.Transaction}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// PostAdjustment appends a signed correction.
func (u *Usecase) PostAdjustment(ctx context.Context, loanID string, in AdjustmentInput) (*PostingResult, error) {
	res, err := u.poster.PostTransaction(ctx, loanID, ledgeruc.PostInput{
		Type:           ledger.TypeAdjustment,
		Amount:         in.Amount,
		ProcessedBy:    in.ProcessedBy,
		IdempotencyKey: in.IdempotencyKey,
		Notes:          in.Notes,
	})
	if err != nil {
		return nil, err
	}
	l, err := u.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return &PostingResult{Loan: l, Transactions: []*ledger.Transaction{res.Transaction}, Replayed: res.Replayed}, nil
}

// ReverseTransaction appends an adjustment that cancels the balance effect of
// an earlier entry. The original entry is never modified. Reversing twice
// returns the first reversal.
func (u *Usecase) ReverseTransaction(ctx context.Context, loanID, transactionID, actor, reason string) (*PostingResult, error) {
	var res *PostingResult
	err := u.poster.Exec(ctx, "reverse", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		orig, err := r.Transactions.GetByTransactionID(ctx, l.ID, transactionID)
		if err != nil {
			return err
		}
		if !orig.Counts() {
			return fmt.Errorf("%w: transaction %s is %s", loan.ErrInvalidInput, orig.TransactionID, orig.Status)
		}
		if orig.ReversalOf != nil {
			return fmt.Errorf("%w: transaction %s is itself a reversal", loan.ErrInvalidInput, orig.TransactionID)
		}
		effect := ledger.Effect(orig.Type, orig.Amount)
		if effect.IsZero() {
			return fmt.Errorf("%w: %s does not move the balance, post a refund instead", loan.ErrInvalidInput, orig.Type)
		}

		notes := "reversal of " + orig.TransactionID
		if reason != "" {
			notes += ": " + reason
		}
		posted, err := u.poster.Post(ctx, r, l, ledgeruc.PostInput{
			Type:           ledger.TypeAdjustment,
			Amount:         effect.Neg(),
			ProcessedBy:    actor,
			IdempotencyKey: "reversal:" + orig.TransactionID,
			ReversalOf:     orig.TransactionID,
			Notes:          notes,
		}, out)
		if err != nil {
			return err
		}
		res = &PostingResult{Loan: l, Transactions: []*ledger.Transaction{posted.Transaction}, Replayed: posted.Replayed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ResetRate re-prices a variable-rate loan: the new installment amortizes the
// outstanding balance over the installments still due.
func (u *Usecase) ResetRate(ctx context.Context, loanID, actor string, newRate decimal.Decimal) (*loan.Loan, error) {
	var res *loan.Loan
	err := u.poster.Exec(ctx, "rate reset", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		if l.InterestType != loan.InterestVariable {
			return fmt.Errorf("%w: loan %s has a fixed rate", loan.ErrInvalidInput, l.LoanID)
		}
		if l.Status != loan.StatusDisbursed && l.Status != loan.StatusActive {
			return &loan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Reason: "rate reset needs a disbursed or active loan"}
		}
		remaining := l.PaymentsDue
		if remaining == 0 {
			return fmt.Errorf("%w: no installments left to re-price", loan.ErrInvalidInput)
		}
		pay, err := amortization.Reestimate(l.OutstandingBalance, remaining, newRate, l.Currency)
		if err != nil {
			return err
		}

		oldRate, oldPay := l.AnnualRate, l.MonthlyPayment
		l.AnnualRate = newRate
		l.MonthlyPayment = pay
		l.TotalAmount = l.PaidAmount.Add(pay.Mul(decimal.NewFromInt(int64(remaining))))
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out.Add(event.New(event.NameRateReset, l.LoanID, u.poster.Now(), map[string]any{
			"old_rate":            oldRate.String(),
			"new_rate":            newRate.String(),
			"old_monthly_payment": oldPay.String(),
			"new_monthly_payment": pay.String(),
			"actor":               actor,
		}))
		u.log.Infow("rate reset", "loan_id", l.LoanID, "new_rate", newRate.String(), "monthly_payment", pay.String())
		res = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
