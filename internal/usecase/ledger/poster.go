package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
	"agrifin-loan-engine/internal/logger"
	"agrifin-loan-engine/pkg/amortization"
	"agrifin-loan-engine/pkg/id"
)

// Poster is the only writer of ledger entries. Every posting happens inside the
// loan's exclusive section and updates the cached aggregates in the same tx.
type Poster struct {
	uow     uow.UnitOfWork
	pub     event.Publisher
	log     *zap.SugaredLogger
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Poster)

func WithPublisher(p event.Publisher) Option { return func(ps *Poster) { ps.pub = p } }
func WithLogger(l *zap.SugaredLogger) Option { return func(ps *Poster) { ps.log = l } }
func WithTimeout(d time.Duration) Option { return func(ps *Poster) { ps.timeout = d } }
func WithClock(now func() time.Time) Option { return func(ps *Poster) { ps.now = now } }

func NewPoster(u uow.UnitOfWork, opts ...Option) *Poster {
	p := &Poster{
		uow:     u,
		log:     logger.Get(),
		timeout: 10 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Now is the poster's clock, shared with the workflows built on it.
func (p *Poster) Now() time.Time { return p.now() }

// Bound applies the operation timeout to ctx.
func (p *Poster) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// Exec runs fn in the loan's exclusive section, bounded by the operation
// timeout. Events added to the outbox are published only after commit.
func (p *Poster) Exec(ctx context.Context, op, loanID string, fn func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error) error {
	ctx, cancel := p.Bound(ctx)
	defer cancel()

	var out event.Outbox
	err := p.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
		return fn(ctx, r, l, &out)
	})
	if err != nil {
		return loan.Classify(op, err)
	}
	p.Flush(context.WithoutCancel(ctx), &out)
	return nil
}

// Flush publishes committed events. Delivery failures are logged only.
func (p *Poster) Flush(ctx context.Context, out *event.Outbox) {
	if err := out.Flush(ctx, p.pub); err != nil {
		p.log.Errorw("event publish failed", "error", err)
	}
}

type PostInput struct {
	Type           ledger.Type
	Amount         decimal.Decimal
	PayerID        string
	PayeeID        string
	ProcessedBy    string
	Method         string
	IdempotencyKey string
	ReversalOf     string
	Notes          string
}

type Result struct {
	Transaction *ledger.Transaction
	// Replayed is set when the idempotency key matched an earlier posting
	// and nothing was written.
	Replayed bool
}

// PostTransaction appends one entry in its own unit of work.
func (p *Poster) PostTransaction(ctx context.Context, loanID string, in PostInput) (*Result, error) {
	var res *Result
	err := p.Exec(ctx, "post "+string(in.Type), loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		var err error
		res, err = p.Post(ctx, r, l, in, out)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Post validates and appends one entry for l using the caller's repos. It must
// run inside WithinLoanTx for l. All checks happen before the first write.
func (p *Poster) Post(ctx context.Context, r uow.Repos, l *loan.Loan, in PostInput, out *event.Outbox) (*Result, error) {
	if err := validateInput(l, in); err != nil {
		return nil, err
	}

	prev, err := p.Replay(ctx, r, l, in.IdempotencyKey, in.Type, &in.Amount)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		return &Result{Transaction: prev, Replayed: true}, nil
	}

	if !loan.AllowsTransaction(l.Status, in.Type) {
		return nil, &loan.InvalidTransitionError{
			LoanID: l.LoanID,
			From:   l.Status,
			Reason: fmt.Sprintf("%s not permitted", in.Type),
		}
	}

	var reverses ledger.Type
	if in.ReversalOf != "" {
		orig, err := r.Transactions.GetByTransactionID(ctx, l.ID, in.ReversalOf)
		if err != nil {
			return nil, err
		}
		reverses = orig.Type
	}

	agg := l.Aggregates()
	before := agg.OutstandingBalance
	effect := ledger.Effect(in.Type, in.Amount)
	after := before.Add(effect)
	switch {
	case in.Type.IsRepaymentClass() && after.IsNegative():
		return nil, &loan.OverpaymentError{Outstanding: before, Requested: in.Amount}
	case in.Type == ledger.TypeDisbursement && in.Amount.GreaterThan(l.Headroom()):
		return nil, &loan.InsufficientHeadroomError{Principal: l.Principal, Disbursed: l.DisbursedAmount, Requested: in.Amount}
	case l.Status.IsTerminal() && effect.IsPositive():
		return nil, &loan.InvalidTransitionError{
			LoanID: l.LoanID,
			From:   l.Status,
			Reason: fmt.Sprintf("%s of %s would raise the balance of a %s loan", in.Type, in.Amount, l.Status),
		}
	// a reversal restores whatever balance the reversed entry changed, even below zero
	case in.Type == ledger.TypeAdjustment && in.ReversalOf == "" && after.IsNegative():
		return nil, fmt.Errorf("%w: adjustment of %s takes balance %s below zero", loan.ErrInvalidAmount, in.Amount, before)
	}

	tx := &ledger.Transaction{
		TransactionID: id.NewID32(),
		LoanID:        l.ID,
		Sequence:      l.LedgerSequence + 1,
		Type:          in.Type,
		Amount:        in.Amount,
		Currency:      l.Currency,
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        ledger.StatusCompleted,
		PayerID:       in.PayerID,
		PayeeID:       in.PayeeID,
		ProcessedBy:   in.ProcessedBy,
		PaymentMethod: in.Method,
		Notes:         in.Notes,
		CreatedAt:     p.now(),
	}
	if in.IdempotencyKey != "" {
		k := in.IdempotencyKey
		tx.IdempotencyKey = &k
	}
	if in.ReversalOf != "" {
		ref := in.ReversalOf
		tx.ReversalOf = &ref
	}
	if err := r.Transactions.Create(ctx, tx); err != nil {
		return nil, err
	}

	agg.ApplyEntry(in.Type, in.Amount, reverses, l.TenorMonths)
	l.SetAggregates(agg)
	l.LedgerSequence = tx.Sequence
	if err := r.Loans.Save(ctx, l); err != nil {
		return nil, err
	}

	e := event.New(event.NameTransactionPosted, l.LoanID, tx.CreatedAt, map[string]any{
		"type":           string(tx.Type),
		"amount":         tx.Amount.String(),
		"sequence":       tx.Sequence,
		"balance_before": tx.BalanceBefore.String(),
		"balance_after":  tx.BalanceAfter.String(),
	})
	e.TransactionID = tx.TransactionID
	out.Add(e)

	p.log.Infow("transaction posted",
		"loan_id", l.LoanID,
		"transaction_id", tx.TransactionID,
		"type", tx.Type,
		"amount", tx.Amount.String(),
		"sequence", tx.Sequence,
		"balance_after", tx.BalanceAfter.String(),
	)
	return &Result{Transaction: tx}, nil
}

// Replay looks up an earlier posting under key. It returns (nil, nil) when the
// key is empty or unused, and ErrDuplicateIdempotencyKey when the key was used
// for a different type or amount. A nil amount matches any amount.
func (p *Poster) Replay(ctx context.Context, r uow.Repos, l *loan.Loan, key string, t ledger.Type, amount *decimal.Decimal) (*ledger.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	prev, err := r.Transactions.GetByIdempotencyKey(ctx, l.ID, key)
	if errors.Is(err, loan.ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if prev.Type != t || (amount != nil && !prev.Amount.Equal(*amount)) {
		return nil, fmt.Errorf("%w: %q was used for %s %s", loan.ErrDuplicateIdempotencyKey, key, prev.Type, prev.Amount)
	}
	return prev, nil
}

func validateInput(l *loan.Loan, in PostInput) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", loan.ErrInvalidInput, in.Type)
	}
	if len(in.IdempotencyKey) > ledger.MaxIdempotencyKeyLen {
		return fmt.Errorf("%w: idempotency key longer than %d characters", loan.ErrInvalidInput, ledger.MaxIdempotencyKeyLen)
	}
	if in.Type == ledger.TypeAdjustment {
		if in.Amount.IsZero() {
			return fmt.Errorf("%w: adjustment must be non-zero", loan.ErrInvalidAmount)
		}
	} else if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: %s amount must be positive, got %s", loan.ErrInvalidAmount, in.Type, in.Amount)
	}
	if !in.Amount.Equal(amortization.Round(in.Amount, l.Currency)) {
		return fmt.Errorf("%w: %s has more precision than %s allows", loan.ErrInvalidAmount, in.Amount, l.Currency)
	}
	return nil
}
