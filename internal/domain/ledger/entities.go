package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeDisbursement     Type = "disbursement"
	TypeRepayment        Type = "repayment"
	TypeInterestPayment  Type = "interest_payment"
	TypePenaltyPayment   Type = "penalty_payment"
	TypeInsurancePremium Type = "insurance_premium"
	TypeDeRiskingPayment Type = "derisking_payment"
	TypeFeePayment       Type = "fee_payment"
	TypeRefund           Type = "refund"
	TypeAdjustment       Type = "adjustment"
)

var knownTypes = map[Type]bool{
	TypeDisbursement: true, TypeRepayment: true, TypeInterestPayment: true,
	TypePenaltyPayment: true, TypeInsurancePremium: true, TypeDeRiskingPayment: true,
	TypeFeePayment: true, TypeRefund: true, TypeAdjustment: true,
}

func (t Type) Valid() bool { return knownTypes[t] }

// IsRepaymentClass types reduce the outstanding balance and may never take it below zero.
func (t Type) IsRepaymentClass() bool {
	return t == TypeRepayment || t == TypeInterestPayment || t == TypePenaltyPayment
}

// IsInstallment types count toward payments made.
func (t Type) IsInstallment() bool {
	return t == TypeRepayment || t == TypeInterestPayment
}

// Effect is the signed change an entry makes to the outstanding balance.
// Premiums, fees and refunds pass through to third parties and leave it alone.
func Effect(t Type, amount decimal.Decimal) decimal.Decimal {
	switch {
	case t == TypeDisbursement:
		return amount
	case t.IsRepaymentClass():
		return amount.Neg()
	case t == TypeAdjustment:
		return amount
	default:
		return decimal.Zero
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusReversed   Status = "reversed"
)

// MaxIdempotencyKeyLen matches the idempotency_key column.
const MaxIdempotencyKeyLen = 64

// Transaction is an append-only ledger entry. Once completed its amount and
// balances never change; corrections are new entries.
type Transaction struct {
	ID            uint64 `gorm:"primaryKey;column:id" json:"-"`
	TransactionID string `gorm:"size:32;not null;uniqueIndex:ux_transactions_transaction_id" json:"transaction_id"`
	LoanID        uint64 `gorm:"not null;uniqueIndex:ux_transactions_loan_seq,priority:1;uniqueIndex:ux_transactions_loan_idemp,priority:1" json:"-"`
	Sequence      uint64 `gorm:"not null;uniqueIndex:ux_transactions_loan_seq,priority:2" json:"sequence"`

	Type          Type            `gorm:"size:24;not null" json:"type"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Currency      string          `gorm:"size:3;not null" json:"currency"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"balance_after"`
	Status        Status          `gorm:"size:16;not null;index:idx_transactions_status" json:"status"`

	PayerID        string  `gorm:"size:32" json:"payer_id,omitempty"`
	PayeeID        string  `gorm:"size:32" json:"payee_id,omitempty"`
	ProcessedBy    string  `gorm:"size:32" json:"processed_by,omitempty"`
	PaymentMethod  string  `gorm:"size:32" json:"payment_method,omitempty"`
	IdempotencyKey *string `gorm:"size:64;uniqueIndex:ux_transactions_loan_idemp,priority:2" json:"idempotency_key,omitempty"`
	ReversalOf     *string `gorm:"size:32" json:"reversal_of,omitempty"`
	Notes          string  `gorm:"type:text" json:"notes,omitempty"`
	FailureReason  string  `gorm:"type:text" json:"failure_reason,omitempty"`
	IsReconciled   bool    `gorm:"not null" json:"is_reconciled"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }

// Counts reports whether the entry participates in balance computation.
func (t *Transaction) Counts() bool { return t.Status == StatusCompleted }
