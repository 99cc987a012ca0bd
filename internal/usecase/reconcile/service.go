// Package reconcile replays a loan's ledger and compares the result with the
// cached aggregates on the loan row. It reports drift and never corrects it.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agrifin-loan-engine/internal/domain/event"
	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/logger"
)

// Break is one defect found while walking the ledger.
type Break struct {
	Sequence uint64 `json:"sequence"`
	Reason   string `json:"reason"`
}

type Report struct {
	LoanID       string          `json:"loan_id"`
	UpToSequence uint64          `json:"up_to_sequence"`
	Entries      int             `json:"entries"`
	Expected     loan.Aggregates `json:"expected"`
	Actual       loan.Aggregates `json:"actual"`
	Fields       []string        `json:"fields,omitempty"`
	Breaks       []Break         `json:"breaks,omitempty"`
	Drift        bool            `json:"drift"`
	CheckedAt    time.Time       `json:"checked_at"`
}

// Err is the advisory drift error, nil when the books agree.
func (r *Report) Err() error {
	if !r.Drift {
		return nil
	}
	fields := append([]string(nil), r.Fields...)
	for _, b := range r.Breaks {
		fields = append(fields, fmt.Sprintf("seq %d: %s", b.Sequence, b.Reason))
	}
	return &loan.ReconciliationDriftError{LoanID: r.LoanID, Fields: fields}
}

type Service struct {
	loans       loan.Repository
	txs         ledger.Repository
	pub         event.Publisher
	log         *zap.SugaredLogger
	concurrency int
	now         func() time.Time
}

type Option func(*Service)

func WithPublisher(p event.Publisher) Option { return func(s *Service) { s.pub = p } }
func WithLogger(l *zap.SugaredLogger) Option { return func(s *Service) { s.log = l } }
func WithConcurrency(n int) Option { return func(s *Service) { s.concurrency = n } }

func NewService(loans loan.Repository, txs ledger.Repository, opts ...Option) *Service {
	s := &Service{
		loans:       loans,
		txs:         txs,
		log:         logger.Get(),
		concurrency: 4,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Replay folds entries (in sequence order) into aggregates and checks the
// balance chain. Only completed entries count.
func Replay(entries []ledger.Transaction, tenorMonths int) (loan.Aggregates, []Break) {
	agg := loan.Aggregates{PaymentsDue: loan.PaymentsDueFor(tenorMonths, 0)}
	var breaks []Break
	var want uint64 = 1
	counted := make(map[string]ledger.Type, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.Sequence != want {
			breaks = append(breaks, Break{Sequence: e.Sequence, Reason: fmt.Sprintf("expected sequence %d", want)})
		}
		want = e.Sequence + 1
		if !e.Counts() {
			continue
		}
		if !e.BalanceBefore.Equal(agg.OutstandingBalance) {
			breaks = append(breaks, Break{Sequence: e.Sequence, Reason: fmt.Sprintf(
				"balance_before %s does not continue running balance %s", e.BalanceBefore, agg.OutstandingBalance)})
		}
		var reverses ledger.Type
		if e.ReversalOf != nil {
			reverses = counted[*e.ReversalOf]
		}
		agg.ApplyEntry(e.Type, e.Amount, reverses, tenorMonths)
		counted[e.TransactionID] = e.Type
		if !e.BalanceAfter.Equal(agg.OutstandingBalance) {
			breaks = append(breaks, Break{Sequence: e.Sequence, Reason: fmt.Sprintf(
				"balance_after %s, replay gives %s", e.BalanceAfter, agg.OutstandingBalance)})
		}
	}
	return agg, breaks
}

func diff(expected, actual loan.Aggregates) []string {
	var out []string
	if !expected.DisbursedAmount.Equal(actual.DisbursedAmount) {
		out = append(out, "disbursed_amount")
	}
	if !expected.PaidAmount.Equal(actual.PaidAmount) {
		out = append(out, "paid_amount")
	}
	if !expected.OutstandingBalance.Equal(actual.OutstandingBalance) {
		out = append(out, "outstanding_balance")
	}
	if expected.PaymentsMade != actual.PaymentsMade {
		out = append(out, "payments_made")
	}
	if expected.PaymentsDue != actual.PaymentsDue {
		out = append(out, "payments_due")
	}
	return out
}

// Reconcile checks one loan. It takes no lock: the loan row's ledger_sequence
// is the snapshot and only entries up to it are replayed, so postings that
// land meanwhile are left for the next run.
func (s *Service) Reconcile(ctx context.Context, loanID string) (*Report, error) {
	l, err := s.loans.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, loan.Classify("reconcile", err)
	}
	entries, err := s.txs.ListByLoan(ctx, l.ID, l.LedgerSequence)
	if err != nil {
		return nil, loan.Classify("reconcile", err)
	}

	expected, breaks := Replay(entries, l.TenorMonths)
	var last uint64
	if n := len(entries); n > 0 {
		last = entries[n-1].Sequence
	}
	if last != l.LedgerSequence {
		breaks = append(breaks, Break{Sequence: l.LedgerSequence, Reason: fmt.Sprintf("ledger ends at sequence %d", last)})
	}

	rep := &Report{
		LoanID:       l.LoanID,
		UpToSequence: l.LedgerSequence,
		Entries:      len(entries),
		Expected:     expected,
		Actual:       l.Aggregates(),
		Breaks:       breaks,
		CheckedAt:    s.now(),
	}
	rep.Fields = diff(rep.Expected, rep.Actual)
	rep.Drift = len(rep.Fields) > 0 || len(rep.Breaks) > 0

	if rep.Drift {
		if err := s.loans.SetReconciled(ctx, l.ID, false); err != nil {
			return nil, loan.Classify("reconcile", err)
		}
		s.log.Warnw("reconciliation drift",
			"loan_id", l.LoanID,
			"up_to_sequence", rep.UpToSequence,
			"fields", rep.Fields,
			"breaks", len(rep.Breaks),
		)
		if s.pub != nil {
			e := event.New(event.NameReconciliationDrift, l.LoanID, rep.CheckedAt, map[string]any{
				"up_to_sequence": rep.UpToSequence,
				"fields":         rep.Fields,
				"breaks":         len(rep.Breaks),
			})
			if err := s.pub.Publish(context.WithoutCancel(ctx), e); err != nil {
				s.log.Errorw("event publish failed", "loan_id", l.LoanID, "error", err)
			}
		}
		return rep, nil
	}

	if err := s.txs.MarkReconciled(ctx, l.ID, l.LedgerSequence); err != nil {
		return nil, loan.Classify("reconcile", err)
	}
	if !l.IsReconciled {
		if err := s.loans.SetReconciled(ctx, l.ID, true); err != nil {
			return nil, loan.Classify("reconcile", err)
		}
	}
	s.log.Debugw("reconciled", "loan_id", l.LoanID, "up_to_sequence", rep.UpToSequence, "entries", rep.Entries)
	return rep, nil
}

// ReconcileAll sweeps every reconcilable loan with bounded parallelism and
// returns the drifted reports. A failure on one loan does not stop the sweep;
// the first such error is returned alongside the reports.
func (s *Service) ReconcileAll(ctx context.Context) ([]*Report, error) {
	ids, err := s.loans.ListReconcilable(ctx)
	if err != nil {
		return nil, loan.Classify("reconcile sweep", err)
	}

	var (
		mu       sync.Mutex
		drifted  []*Report
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.concurrency, 1))
	for _, loanID := range ids {
		g.Go(func() error {
			rep, err := s.Reconcile(gctx, loanID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Errorw("reconcile failed", "loan_id", loanID, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			if rep.Drift {
				drifted = append(drifted, rep)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Infow("reconciliation sweep done", "loans", len(ids), "drifted", len(drifted))
	return drifted, firstErr
}
