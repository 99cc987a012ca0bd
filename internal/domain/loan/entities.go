package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"agrifin-loan-engine/internal/domain/ledger"
)

type InterestType string

const (
	InterestFixed    InterestType = "fixed"
	InterestVariable InterestType = "variable"
)

// Loan is the financing agreement row. The aggregate fields at the bottom are a
// cache over the transactions ledger and must always equal a replay of it.
type Loan struct {
	ID     uint64 `gorm:"primaryKey;column:id" json:"-"`
	LoanID string `gorm:"size:32;not null;uniqueIndex:ux_loans_loan_id" json:"loan_id"`

	// Parties (stakeholder ids, owned by the identity service)
	BorrowerID          string  `gorm:"size:32;not null;index:idx_loans_borrower" json:"borrower_id"`
	LenderID            string  `gorm:"size:32;not null" json:"lender_id"`
	CoSignerID          string  `gorm:"size:32;not null" json:"co_signer_id"`
	InsuranceProviderID *string `gorm:"size:32" json:"insurance_provider_id,omitempty"`
	DeRiskingProviderID *string `gorm:"size:32" json:"derisking_provider_id,omitempty"`

	// Terms
	Principal    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"principal"`
	AnnualRate   decimal.Decimal `gorm:"type:decimal(7,4);not null" json:"annual_rate"`
	InterestType InterestType    `gorm:"size:10;not null" json:"interest_type"`
	TenorMonths  int             `gorm:"not null" json:"tenor_months"`
	Purpose      string          `gorm:"size:64" json:"purpose"`
	Tranches     int             `gorm:"not null" json:"tranches"`
	Currency     string          `gorm:"size:3;not null" json:"currency"`

	// Derived terms
	MonthlyPayment decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"monthly_payment"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"total_amount"`

	// Workflow
	Status           Status     `gorm:"size:20;not null;index:idx_loans_status" json:"status"`
	StatusUpdatedAt  time.Time  `json:"status_updated_at"`
	ApplicationDate  time.Time  `json:"application_date"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	ReviewedBy       string     `gorm:"size:32" json:"reviewed_by,omitempty"`
	ApprovalDate     *time.Time `json:"approval_date,omitempty"`
	ApprovedBy       string     `gorm:"size:32" json:"approved_by,omitempty"`
	ApprovalNotes    string     `gorm:"type:text" json:"approval_notes,omitempty"`
	RejectionReason  string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	DisbursementDate *time.Time `json:"disbursement_date,omitempty"`
	FirstPaymentDate *time.Time `json:"first_payment_date,omitempty"`
	MaturityDate     *time.Time `json:"maturity_date,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	ArchivedAt       *time.Time `gorm:"index" json:"archived_at,omitempty"`

	// Documents are referenced by id only.
	AgreementDocumentID string `gorm:"size:64" json:"agreement_document_id,omitempty"`
	ScheduleDocumentID  string `gorm:"size:64" json:"schedule_document_id,omitempty"`

	// Cached ledger aggregates
	DisbursedAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"disbursed_amount"`
	PaidAmount         decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"paid_amount"`
	OutstandingBalance decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"outstanding_balance"`
	PaymentsMade       int             `gorm:"not null" json:"payments_made"`
	PaymentsDue        int             `gorm:"not null" json:"payments_due"`
	LedgerSequence     uint64          `gorm:"not null" json:"ledger_sequence"`
	IsReconciled       bool            `gorm:"not null" json:"is_reconciled"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

// Aggregates is the replayable part of a loan.
type Aggregates struct {
	DisbursedAmount    decimal.Decimal `json:"disbursed_amount"`
	PaidAmount         decimal.Decimal `json:"paid_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	PaymentsMade       int             `json:"payments_made"`
	PaymentsDue        int             `json:"payments_due"`
}

func (l *Loan) Aggregates() Aggregates {
	return Aggregates{
		DisbursedAmount:    l.DisbursedAmount,
		PaidAmount:         l.PaidAmount,
		OutstandingBalance: l.OutstandingBalance,
		PaymentsMade:       l.PaymentsMade,
		PaymentsDue:        l.PaymentsDue,
	}
}

// Equal compares amounts by value, so 10 and 10.00 are the same.
func (a Aggregates) Equal(b Aggregates) bool {
	return a.DisbursedAmount.Equal(b.DisbursedAmount) &&
		a.PaidAmount.Equal(b.PaidAmount) &&
		a.OutstandingBalance.Equal(b.OutstandingBalance) &&
		a.PaymentsMade == b.PaymentsMade &&
		a.PaymentsDue == b.PaymentsDue
}

// Headroom is the committed principal not yet disbursed.
func (l *Loan) Headroom() decimal.Decimal {
	return l.Principal.Sub(l.DisbursedAmount)
}

// PaymentsDueFor derives the remaining installment count from the tenor.
func PaymentsDueFor(tenorMonths, paymentsMade int) int {
	if due := tenorMonths - paymentsMade; due > 0 {
		return due
	}
	return 0
}

// ApplyEntry folds one completed ledger entry into the aggregates. Posting and
// reconciliation replay both go through here. reverses is the type of the entry
// a reversal cancels, empty for anything else; a reversal backs that entry out
// of the counters as well as the balance.
func (a *Aggregates) ApplyEntry(t ledger.Type, amount decimal.Decimal, reverses ledger.Type, tenorMonths int) {
	a.OutstandingBalance = a.OutstandingBalance.Add(ledger.Effect(t, amount))
	switch {
	case reverses == ledger.TypeDisbursement:
		a.DisbursedAmount = a.DisbursedAmount.Add(amount)
	case reverses.IsRepaymentClass():
		a.PaidAmount = a.PaidAmount.Sub(amount)
	case t == ledger.TypeDisbursement:
		a.DisbursedAmount = a.DisbursedAmount.Add(amount)
	case t.IsRepaymentClass():
		a.PaidAmount = a.PaidAmount.Add(amount)
	}
	switch {
	case reverses.IsInstallment() && a.PaymentsMade > 0:
		a.PaymentsMade--
	case t.IsInstallment():
		a.PaymentsMade++
	}
	a.PaymentsDue = PaymentsDueFor(tenorMonths, a.PaymentsMade)
}

// SetAggregates writes a into the cached columns.
func (l *Loan) SetAggregates(a Aggregates) {
	l.DisbursedAmount = a.DisbursedAmount
	l.PaidAmount = a.PaidAmount
	l.OutstandingBalance = a.OutstandingBalance
	l.PaymentsMade = a.PaymentsMade
	l.PaymentsDue = a.PaymentsDue
}
