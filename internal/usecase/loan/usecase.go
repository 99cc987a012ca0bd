package loan

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
	"agrifin-loan-engine/internal/logger"
	ledgeruc "agrifin-loan-engine/internal/usecase/ledger"
	"agrifin-loan-engine/pkg/amortization"
	"agrifin-loan-engine/pkg/id"
)

// Usecase drives a loan through its lifecycle. Every mutation goes through the
// poster's per-loan exclusive section.
type Usecase struct {
	loans  loan.Repository
	txs    ledger.Repository
	uow    uow.UnitOfWork
	poster *ledgeruc.Poster
	locker uow.Locker
	log    *zap.SugaredLogger
	policy Policy
}

type Option func(*Usecase)

// WithLocker serializes loan creation per borrower.
func WithLocker(l uow.Locker) Option { return func(u *Usecase) { u.locker = l } }
func WithLogger(l *zap.SugaredLogger) Option { return func(u *Usecase) { u.log = l } }
func WithPolicy(p Policy) Option { return func(u *Usecase) { u.policy = p } }

func NewUsecase(loans loan.Repository, txs ledger.Repository, u uow.UnitOfWork, poster *ledgeruc.Poster, opts ...Option) *Usecase {
	uc := &Usecase{
		loans:  loans,
		txs:    txs,
		uow:    u,
		poster: poster,
		log:    logger.Get(),
		policy: Policy{DefaultAfterMissed: 3},
	}
	for _, o := range opts {
		o(uc)
	}
	return uc
}

var currencyRe = regexp.MustCompile(`^[A-Z]{3}$`)

func validateCreate(in *CreateLoanInput) error {
	if in.BorrowerID == "" || in.LenderID == "" || in.CoSignerID == "" {
		return fmt.Errorf("%w: borrower, lender and co-signer are required", loan.ErrInvalidInput)
	}
	if !currencyRe.MatchString(in.Currency) {
		return fmt.Errorf("%w: currency must be an ISO 4217 code, got %q", loan.ErrInvalidInput, in.Currency)
	}
	if in.InterestType == "" {
		in.InterestType = loan.InterestFixed
	}
	if in.InterestType != loan.InterestFixed && in.InterestType != loan.InterestVariable {
		return &amortization.InvalidTermsError{Field: "interest_type", Reason: "must be fixed or variable"}
	}
	if in.Tranches == 0 {
		in.Tranches = 1
	}
	if in.Tranches < 0 {
		return &amortization.InvalidTermsError{Field: "tranches", Reason: "must be positive"}
	}
	if !in.Principal.Equal(amortization.Round(in.Principal, in.Currency)) {
		return &amortization.InvalidTermsError{Field: "principal", Reason: "has more precision than " + in.Currency + " allows"}
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateLoan opens a draft application. The borrower may hold only one
// pending application at a time.
func (u *Usecase) CreateLoan(ctx context.Context, in CreateLoanInput) (*loan.Loan, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}
	sched, err := amortization.ComputeSchedule(amortization.Terms{
		Principal:   in.Principal,
		AnnualRate:  in.AnnualRate,
		TenorMonths: in.TenorMonths,
		RateType:    amortization.RateType(in.InterestType),
		Currency:    in.Currency,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := u.poster.Bound(ctx)
	defer cancel()

	if u.locker != nil {
		unlock, err := u.locker.Lock(ctx, "borrower:"+in.BorrowerID)
		if err != nil {
			return nil, loan.Classify("create loan", err)
		}
		defer unlock()
	}

	now := u.poster.Now()
	l := &loan.Loan{
		LoanID:              id.NewID32(),
		BorrowerID:          in.BorrowerID,
		LenderID:            in.LenderID,
		CoSignerID:          in.CoSignerID,
		InsuranceProviderID: optional(in.InsuranceProviderID),
		DeRiskingProviderID: optional(in.DeRiskingProviderID),
		Principal:           in.Principal,
		AnnualRate:          in.AnnualRate,
		InterestType:        in.InterestType,
		TenorMonths:         in.TenorMonths,
		Purpose:             in.Purpose,
		Tranches:            in.Tranches,
		Currency:            in.Currency,
		MonthlyPayment:      sched.MonthlyPayment,
		TotalAmount:         sched.TotalAmount,
		Status:              loan.StatusDraft,
		StatusUpdatedAt:     now,
		ApplicationDate:     now,
		AgreementDocumentID: in.AgreementDocumentID,
		ScheduleDocumentID:  in.ScheduleDocumentID,
		PaymentsDue:         loan.PaymentsDueFor(in.TenorMonths, 0),
		IsReconciled:        true,
	}

	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		pending, err := r.Loans.GetPendingLoanByBorrowerID(ctx, in.BorrowerID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s", loan.ErrPendingLoanExists, pending.LoanID)
		case !errors.Is(err, loan.ErrNotFound):
			return err
		}
		return r.Loans.Create(ctx, l)
	})
	if err != nil {
		return nil, loan.Classify("create loan", err)
	}

	var out event.Outbox
	out.Add(event.StatusChanged(l.LoanID, "", string(loan.StatusDraft), in.BorrowerID, now))
	u.poster.Flush(context.WithoutCancel(ctx), &out)

	u.log.Infow("loan created",
		"loan_id", l.LoanID,
		"borrower_id", l.BorrowerID,
		"principal", l.Principal.String(),
		"monthly_payment", l.MonthlyPayment.String(),
	)
	return l, nil
}

func (u *Usecase) GetLoan(ctx context.Context, loanID string) (*loan.Loan, error) {
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, loan.Classify("get loan", err)
	}
	return l, nil
}

// ListTransactions returns the ledger of a loan in sequence order.
func (u *Usecase) ListTransactions(ctx context.Context, loanID string) ([]ledger.Transaction, error) {
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, loan.Classify("list transactions", err)
	}
	txs, err := u.txs.ListByLoan(ctx, l.ID, l.LedgerSequence)
	if err != nil {
		return nil, loan.Classify("list transactions", err)
	}
	return txs, nil
}

// Schedule recomputes the installment table at the loan's current terms.
func (u *Usecase) Schedule(ctx context.Context, loanID string) (*amortization.Schedule, error) {
	l, err := u.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, loan.Classify("schedule", err)
	}
	return amortization.ComputeSchedule(amortization.Terms{
		Principal:   l.Principal,
		AnnualRate:  l.AnnualRate,
		TenorMonths: l.TenorMonths,
		RateType:    amortization.RateType(l.InterestType),
		Currency:    l.Currency,
	})
}

// move applies ev to l, persists it and queues the status event.
func (u *Usecase) move(ctx context.Context, r uow.Repos, l *loan.Loan, ev loan.Event, actor string, out *event.Outbox) error {
	from, err := l.Apply(ev, u.poster.Now())
	if err != nil {
		return err
	}
	if from == l.Status {
		return nil
	}
	if err := r.Loans.Save(ctx, l); err != nil {
		return err
	}
	out.Add(event.StatusChanged(l.LoanID, string(from), string(l.Status), actor, l.StatusUpdatedAt))
	u.log.Infow("loan status changed",
		"loan_id", l.LoanID,
		"from", from,
		"to", l.Status,
		"event", ev,
		"actor", actor,
	)
	return nil
}
