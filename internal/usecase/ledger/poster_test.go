package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
	"agrifin-loan-engine/internal/testutil"
	"agrifin-loan-engine/internal/testutil/ledgermock"
	"agrifin-loan-engine/internal/testutil/loanmock"
	"agrifin-loan-engine/internal/testutil/uowmock"
)

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// book is an in-memory ledger for a single loan.
type book struct {
	loan  loan.Loan
	txs   []*ledger.Transaction
	saves int
}

func newBook(status loan.Status, outstanding string) *book {
	out := d(outstanding)
	return &book{loan: loan.Loan{
		ID:                 1,
		LoanID:             "LN-1",
		LenderID:           "LEND",
		BorrowerID:         "BORR",
		Principal:          d("1000"),
		TenorMonths:        4,
		Currency:           "KES",
		Status:             status,
		DisbursedAmount:    out,
		OutstandingBalance: out,
		PaymentsDue:        4,
	}}
}

func (b *book) repos() uow.Repos {
	loans := &loanmock.Repo{
		GetByLoanIDForUpdateFn: func(_ context.Context, loanID string) (*loan.Loan, error) {
			if loanID != b.loan.LoanID {
				return nil, loan.ErrNotFound
			}
			cp := b.loan
			return &cp, nil
		},
		SaveFn: func(_ context.Context, l *loan.Loan) error {
			b.loan = *l
			b.saves++
			return nil
		},
	}
	txs := &ledgermock.Repo{
		CreateFn: func(_ context.Context, tx *ledger.Transaction) error {
			b.txs = append(b.txs, tx)
			return nil
		},
		GetByIdempotencyKeyFn: func(_ context.Context, _ uint64, key string) (*ledger.Transaction, error) {
			for _, tx := range b.txs {
				if tx.IdempotencyKey != nil && *tx.IdempotencyKey == key {
					return tx, nil
				}
			}
			return nil, loan.ErrTransactionNotFound
		},
		GetByTransactionIDFn: func(_ context.Context, _ uint64, transactionID string) (*ledger.Transaction, error) {
			for _, tx := range b.txs {
				if tx.TransactionID == transactionID {
					return tx, nil
				}
			}
			return nil, loan.ErrTransactionNotFound
		},
	}
	return uow.Repos{Loans: loans, Transactions: txs}
}

type capture struct{ events []event.Event }

func (c *capture) Publish(_ context.Context, e event.Event) error {
	c.events = append(c.events, e)
	return nil
}

func newPoster(b *book, opts ...Option) (*Poster, *capture) {
	c := &capture{}
	base := []Option{
		WithPublisher(c),
		WithLogger(zap.NewNop().Sugar()),
		WithClock(func() time.Time { return now }),
	}
	u := uowmock.Passthrough(b.repos())
	return NewPoster(u, append(base, opts...)...), c
}

func TestPostTransaction_AppendsAndUpdatesAggregates(t *testing.T) {
	b := newBook(loan.StatusActive, "1000")
	p, c := newPoster(b)
	ctx := context.Background()

	res, err := p.PostTransaction(ctx, "LN-1", PostInput{Type: ledger.TypeRepayment, Amount: d("300"), PayerID: "BORR"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	tx := res.Transaction
	assert.Equal(t, uint64(1), tx.Sequence)
	assert.Equal(t, ledger.StatusCompleted, tx.Status)
	assert.Equal(t, "KES", tx.Currency)
	assert.True(t, d("1000").Equal(tx.BalanceBefore))
	assert.True(t, d("700").Equal(tx.BalanceAfter))
	assert.Equal(t, now, tx.CreatedAt)
	assert.Len(t, tx.TransactionID, 32)

	_, err = p.PostTransaction(ctx, "LN-1", PostInput{Type: ledger.TypeFeePayment, Amount: d("12.50")})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), b.loan.LedgerSequence)
	assert.True(t, d("700").Equal(b.loan.OutstandingBalance))
	assert.True(t, d("300").Equal(b.loan.PaidAmount))
	assert.Equal(t, 1, b.loan.PaymentsMade)
	assert.Equal(t, 3, b.loan.PaymentsDue)
	assert.True(t, b.txs[1].BalanceBefore.Equal(b.txs[0].BalanceAfter))

	require.Len(t, c.events, 2)
	assert.Equal(t, event.NameTransactionPosted, c.events[0].Name)
	assert.Equal(t, tx.TransactionID, c.events[0].TransactionID)
	assert.Equal(t, tx.CreatedAt, c.events[0].OccurredAt)
}

func TestPostTransaction_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		status loan.Status
		out    string
		in     PostInput
		code   string
	}{
		{"unknown type", loan.StatusActive, "100", PostInput{Type: "gift", Amount: d("1")}, "INVALID_INPUT"},
		{"zero repayment", loan.StatusActive, "100", PostInput{Type: ledger.TypeRepayment, Amount: d("0")}, "INVALID_AMOUNT"},
		{"negative fee", loan.StatusActive, "100", PostInput{Type: ledger.TypeFeePayment, Amount: d("-1")}, "INVALID_AMOUNT"},
		{"zero adjustment", loan.StatusActive, "100", PostInput{Type: ledger.TypeAdjustment, Amount: d("0")}, "INVALID_AMOUNT"},
		{"sub-cent amount", loan.StatusActive, "100", PostInput{Type: ledger.TypeRepayment, Amount: d("0.001")}, "INVALID_AMOUNT"},
		{"overpayment", loan.StatusActive, "100", PostInput{Type: ledger.TypeRepayment, Amount: d("100.01")}, "OVERPAYMENT"},
		{"adjustment below zero", loan.StatusActive, "100", PostInput{Type: ledger.TypeAdjustment, Amount: d("-101")}, "INVALID_AMOUNT"},
		{"repayment on draft", loan.StatusDraft, "0", PostInput{Type: ledger.TypeRepayment, Amount: d("1")}, "INVALID_TRANSITION"},
		{"disbursement on active", loan.StatusActive, "100", PostInput{Type: ledger.TypeDisbursement, Amount: d("1")}, "INVALID_TRANSITION"},
		{"disbursement over headroom", loan.StatusApproved, "0", PostInput{Type: ledger.TypeDisbursement, Amount: d("1000.01")}, "INSUFFICIENT_HEADROOM"},
		{"anything on cancelled", loan.StatusCancelled, "0", PostInput{Type: ledger.TypeAdjustment, Amount: d("5")}, "INVALID_TRANSITION"},
		{"raise completed balance", loan.StatusCompleted, "0", PostInput{Type: ledger.TypeAdjustment, Amount: d("5")}, "INVALID_TRANSITION"},
		{"raise defaulted balance", loan.StatusDefaulted, "100", PostInput{Type: ledger.TypeAdjustment, Amount: d("5")}, "INVALID_TRANSITION"},
		{"key too long", loan.StatusActive, "100", PostInput{Type: ledger.TypeRepayment, Amount: d("1"), IdempotencyKey: strings.Repeat("x", 65)}, "INVALID_INPUT"},
		{"reversal of unknown entry", loan.StatusActive, "100", PostInput{Type: ledger.TypeAdjustment, Amount: d("5"), ReversalOf: "missing"}, "TRANSACTION_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBook(tt.status, tt.out)
			if tt.status == loan.StatusApproved {
				b.loan.DisbursedAmount = decimal.Zero
			}
			p, c := newPoster(b)
			_, err := p.PostTransaction(context.Background(), "LN-1", tt.in)
			testutil.AssertCode(t, err, tt.code)
			assert.Empty(t, b.txs)
			assert.Zero(t, b.saves)
			assert.Empty(t, c.events)
		})
	}
}

func TestPostTransaction_Reversal(t *testing.T) {
	b := newBook(loan.StatusActive, "1000")
	p, _ := newPoster(b)
	ctx := context.Background()

	paid, err := p.PostTransaction(ctx, "LN-1", PostInput{Type: ledger.TypeRepayment, Amount: d("250")})
	require.NoError(t, err)
	require.Equal(t, 1, b.loan.PaymentsMade)

	_, err = p.PostTransaction(ctx, "LN-1", PostInput{
		Type:       ledger.TypeAdjustment,
		Amount:     d("250"),
		ReversalOf: paid.Transaction.TransactionID,
	})
	require.NoError(t, err)
	assert.True(t, d("1000").Equal(b.loan.OutstandingBalance))
	assert.True(t, b.loan.PaidAmount.IsZero())
	assert.Equal(t, 0, b.loan.PaymentsMade)
	assert.Equal(t, 4, b.loan.PaymentsDue)

	// reversing the disbursement may leave the balance negative
	b.txs = append(b.txs, &ledger.Transaction{TransactionID: "disb", Type: ledger.TypeDisbursement, Amount: d("1000"), Status: ledger.StatusCompleted})
	_, err = p.PostTransaction(ctx, "LN-1", PostInput{Type: ledger.TypeRepayment, Amount: d("300")})
	require.NoError(t, err)
	_, err = p.PostTransaction(ctx, "LN-1", PostInput{Type: ledger.TypeAdjustment, Amount: d("-1000"), ReversalOf: "disb"})
	require.NoError(t, err)
	assert.True(t, d("-300").Equal(b.loan.OutstandingBalance))
	assert.True(t, b.loan.DisbursedAmount.IsZero())
}

func TestPostTransaction_Idempotency(t *testing.T) {
	b := newBook(loan.StatusActive, "1000")
	p, c := newPoster(b)
	ctx := context.Background()
	in := PostInput{Type: ledger.TypeRepayment, Amount: d("100"), IdempotencyKey: "k-1"}

	first, err := p.PostTransaction(ctx, "LN-1", in)
	require.NoError(t, err)
	again, err := p.PostTransaction(ctx, "LN-1", in)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Same(t, first.Transaction, again.Transaction)
	assert.Len(t, b.txs, 1)
	assert.Len(t, c.events, 1)

	in.Amount = d("200")
	_, err = p.PostTransaction(ctx, "LN-1", in)
	assert.ErrorIs(t, err, loan.ErrDuplicateIdempotencyKey)

	in.Amount = d("100")
	in.Type = ledger.TypePenaltyPayment
	_, err = p.PostTransaction(ctx, "LN-1", in)
	assert.ErrorIs(t, err, loan.ErrDuplicateIdempotencyKey)
	assert.Len(t, b.txs, 1)
}

func TestPostTransaction_ReplayWinsOverLaterState(t *testing.T) {
	b := newBook(loan.StatusActive, "100")
	p, _ := newPoster(b)
	ctx := context.Background()
	in := PostInput{Type: ledger.TypeRepayment, Amount: d("100"), IdempotencyKey: "settle"}

	_, err := p.PostTransaction(ctx, "LN-1", in)
	require.NoError(t, err)
	b.loan.Status = loan.StatusCompleted

	// a retry after completion still returns the original entry
	res, err := p.PostTransaction(ctx, "LN-1", in)
	require.NoError(t, err)
	assert.True(t, res.Replayed)
}

func TestExec_Errors(t *testing.T) {
	b := newBook(loan.StatusActive, "100")
	p, c := newPoster(b)

	_, err := p.PostTransaction(context.Background(), "LN-404", PostInput{Type: ledger.TypeRepayment, Amount: d("1")})
	testutil.AssertCode(t, err, "LOAN_NOT_FOUND")

	boom := errors.New("boom")
	err = p.Exec(context.Background(), "custom", "LN-1", func(ctx context.Context, r uow.Repos, l *loan.Loan, out *event.Outbox) error {
		out.Add(event.New("never", l.LoanID, now, nil))
		return boom
	})
	testutil.AssertCode(t, err, "PERSISTENCE_ERROR")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, c.events)
}

func TestExec_Timeout(t *testing.T) {
	b := newBook(loan.StatusActive, "100")
	p, _ := newPoster(b, WithTimeout(20*time.Millisecond))

	err := p.Exec(context.Background(), "slow", "LN-1", func(ctx context.Context, _ uow.Repos, _ *loan.Loan, _ *event.Outbox) error {
		<-ctx.Done()
		return ctx.Err()
	})
	testutil.AssertCode(t, err, "CONCURRENCY_TIMEOUT")
}

type failing struct{}

func (failing) Publish(context.Context, event.Event) error { return errors.New("broker down") }

func TestExec_PublishFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := newBook(loan.StatusActive, "100")
	p := NewPoster(uowmock.Passthrough(b.repos()), WithPublisher(failing{}), WithLogger(zap.New(core).Sugar()))

	_, err := p.PostTransaction(context.Background(), "LN-1", PostInput{Type: ledger.TypeRepayment, Amount: d("10")})
	require.NoError(t, err)
	assert.Len(t, b.txs, 1)
	assert.Equal(t, 1, logs.FilterMessage("event publish failed").Len())
}
