package loan

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agrifin-loan-engine/internal/adapter/repository/mysql"
	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/infrastructure/lock"
	"agrifin-loan-engine/internal/testutil"
	approvaluc "agrifin-loan-engine/internal/usecase/approval"
	ledgeruc "agrifin-loan-engine/internal/usecase/ledger"
	"agrifin-loan-engine/internal/usecase/reconcile"
	"agrifin-loan-engine/pkg/id"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	db     *gorm.DB
	locker *lock.Local
	loans  *mysql.LoanRepository
	txs    *mysql.TransactionRepository
	poster *ledgeruc.Poster
	uc     *Usecase
	appr   *approvaluc.Usecase
	rec    *reconcile.Service
	pub    *recorder
}

func newHarness(t *testing.T, opts ...ledgeruc.Option) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	h := &harness{
		db:     db,
		locker: lock.NewLocal(),
		loans:  mysql.NewLoanRepository(db),
		txs:    mysql.NewTransactionRepository(db),
		pub:    &recorder{},
	}
	nop := zap.NewNop().Sugar()
	base := []ledgeruc.Option{
		ledgeruc.WithPublisher(h.pub),
		ledgeruc.WithLogger(nop),
		ledgeruc.WithClock(func() time.Time { return t0 }),
		ledgeruc.WithTimeout(5 * time.Second),
	}
	h.poster = ledgeruc.NewPoster(mysql.NewGormUoW(db, h.locker), append(base, opts...)...)
	h.uc = NewUsecase(h.loans, h.txs, mysql.NewGormUoW(db, h.locker), h.poster,
		WithLocker(h.locker), WithLogger(nop), WithPolicy(Policy{DefaultAfterMissed: 3}))
	h.appr = approvaluc.NewUsecase(h.loans, mysql.NewApprovalRepository(db), h.poster)
	h.rec = reconcile.NewService(h.loans, h.txs, reconcile.WithLogger(nop), reconcile.WithPublisher(h.pub))
	return h
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func createInput(principal string, rate string, tenor int) CreateLoanInput {
	return CreateLoanInput{
		BorrowerID:   id.NewID32(),
		LenderID:     id.NewID32(),
		CoSignerID:   id.NewID32(),
		Principal:    dec(principal),
		AnnualRate:   dec(rate),
		InterestType: loan.InterestFixed,
		TenorMonths:  tenor,
		Purpose:      "seed and fertilizer",
		Currency:     "KES",
	}
}

// approved walks a fresh application up to approved.
func (h *harness) approved(t *testing.T, in CreateLoanInput) *loan.Loan {
	t.Helper()
	ctx := context.Background()
	l, err := h.uc.CreateLoan(ctx, in)
	require.NoError(t, err)
	_, err = h.uc.Submit(ctx, l.LoanID, in.BorrowerID)
	require.NoError(t, err)
	_, err = h.appr.BeginReview(ctx, approvaluc.BeginReviewInput{LoanID: l.LoanID, ReviewerID: "officer-1"})
	require.NoError(t, err)
	_, err = h.appr.Approve(ctx, approvaluc.ApproveInput{LoanID: l.LoanID, ApproverID: "officer-2", Notes: "ok"})
	require.NoError(t, err)
	got, err := h.uc.GetLoan(ctx, l.LoanID)
	require.NoError(t, err)
	require.Equal(t, loan.StatusApproved, got.Status)
	return got
}

// active disburses in full and activates.
func (h *harness) active(t *testing.T, in CreateLoanInput) *loan.Loan {
	t.Helper()
	ctx := context.Background()
	l := h.approved(t, in)
	_, err := h.uc.Disburse(ctx, l.LoanID, DisburseInput{ProcessedBy: "ops"})
	require.NoError(t, err)
	got, err := h.uc.Activate(ctx, l.LoanID, "ops", nil)
	require.NoError(t, err)
	require.Equal(t, loan.StatusActive, got.Status)
	return got
}

func (h *harness) repay(t *testing.T, loanID, amount string) (*PostingResult, error) {
	t.Helper()
	return h.uc.RecordRepayment(context.Background(), loanID, RepaymentInput{
		Amount:  dec(amount),
		PayerID: "borrower",
		Method:  "mobile_money",
	})
}

func (h *harness) entries(t *testing.T, loanID string) []ledger.Transaction {
	t.Helper()
	txs, err := h.uc.ListTransactions(context.Background(), loanID)
	require.NoError(t, err)
	return txs
}

// assertBooksAgree checks continuity and replay equivalence.
func (h *harness) assertBooksAgree(t *testing.T, loanID string) {
	t.Helper()
	txs := h.entries(t, loanID)
	for i := 1; i < len(txs); i++ {
		assert.True(t, txs[i-1].BalanceAfter.Equal(txs[i].BalanceBefore), "continuity broken at sequence %d", txs[i].Sequence)
		assert.Equal(t, txs[i-1].Sequence+1, txs[i].Sequence)
	}
	rep, err := h.rec.Reconcile(context.Background(), loanID)
	require.NoError(t, err)
	assert.False(t, rep.Drift, "unexpected drift: fields=%v breaks=%v", rep.Fields, rep.Breaks)
	assert.NoError(t, rep.Err())
}
