package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"agrifin-loan-engine/internal/domain/ledger"
	"agrifin-loan-engine/internal/domain/loan"
)

type CreateLoanInput struct {
	BorrowerID          string            `json:"borrower_id"`
	LenderID            string            `json:"lender_id"`
	CoSignerID          string            `json:"co_signer_id"`
	InsuranceProviderID string            `json:"insurance_provider_id"`
	DeRiskingProviderID string            `json:"derisking_provider_id"`
	Principal           decimal.Decimal   `json:"principal"`
	AnnualRate          decimal.Decimal   `json:"annual_rate"`
	InterestType        loan.InterestType `json:"interest_type"`
	TenorMonths         int               `json:"tenor_months"`
	Purpose             string            `json:"purpose"`
	Tranches            int               `json:"tranches"`
	Currency            string            `json:"currency"`
	AgreementDocumentID string            `json:"agreement_document_id"`
	ScheduleDocumentID  string            `json:"schedule_document_id"`
}

type DisburseInput struct {
	// Tranche is the amount to release; nil releases the remaining headroom.
	Tranche        *decimal.Decimal `json:"tranche"`
	ProcessedBy    string           `json:"processed_by"`
	Method         string           `json:"method"`
	IdempotencyKey string           `json:"idempotency_key"`
}

type RepaymentInput struct {
	Amount decimal.Decimal `json:"amount"`
	// Kind is repayment, interest_payment or penalty_payment; empty means repayment.
	Kind        ledger.Type `json:"kind"`
	PayerID     string      `json:"payer_id"`
	ProcessedBy string      `json:"processed_by"`
	Method      string      `json:"method"`
	// AllowRefund turns an overpayment into a settling repayment plus a refund
	// of the excess instead of an error.
	AllowRefund    bool   `json:"allow_refund"`
	IdempotencyKey string `json:"idempotency_key"`
}

type AdjustmentInput struct {
	Amount         decimal.Decimal `json:"amount"`
	ProcessedBy    string          `json:"processed_by"`
	Notes          string          `json:"notes"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// PostingResult is what a money movement returns. Transactions is in posting order.
type PostingResult struct {
	Loan         *loan.Loan            `json:"loan"`
	Transactions []*ledger.Transaction `json:"transactions"`
	Replayed     bool                  `json:"replayed"`
}

type Policy struct {
	// DefaultAfterMissed is the number of missed installments that allows
	// a loan to be marked defaulted.
	DefaultAfterMissed int
}

// installmentDates returns the scheduled due dates of l.
func installmentDates(l *loan.Loan) []time.Time {
	if l.FirstPaymentDate == nil {
		return nil
	}
	out := make([]time.Time, 0, l.TenorMonths)
	for k := 0; k < l.TenorMonths; k++ {
		out = append(out, l.FirstPaymentDate.AddDate(0, k, 0))
	}
	return out
}

// MissedInstallments counts installments due on or before asOf that have not
// been paid.
func MissedInstallments(l *loan.Loan, asOf time.Time) int {
	due := 0
	for _, d := range installmentDates(l) {
		if d.After(asOf) {
			break
		}
		due++
	}
	if missed := due - l.PaymentsMade; missed > 0 {
		return missed
	}
	return 0
}
