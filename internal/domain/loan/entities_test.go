package loan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"agrifin-loan-engine/internal/domain/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAggregatesApplyEntry(t *testing.T) {
	var a Aggregates
	a.ApplyEntry(ledger.TypeDisbursement, d("1000000"), "", 12)
	a.ApplyEntry(ledger.TypeInsurancePremium, d("5000"), "", 12)
	a.ApplyEntry(ledger.TypeRepayment, d("106618.55"), "", 12)
	a.ApplyEntry(ledger.TypePenaltyPayment, d("100"), "", 12)
	a.ApplyEntry(ledger.TypeInterestPayment, d("12000"), "", 12)
	a.ApplyEntry(ledger.TypeAdjustment, d("-0.45"), "", 12)

	assert.True(t, a.DisbursedAmount.Equal(d("1000000")))
	assert.True(t, a.PaidAmount.Equal(d("118718.55")))
	assert.True(t, a.OutstandingBalance.Equal(d("881281")))
	assert.Equal(t, 2, a.PaymentsMade)
	assert.Equal(t, 10, a.PaymentsDue)
}

func TestAggregatesApplyReversal(t *testing.T) {
	var a Aggregates
	a.ApplyEntry(ledger.TypeDisbursement, d("1200"), "", 12)
	a.ApplyEntry(ledger.TypeRepayment, d("100"), "", 12)
	a.ApplyEntry(ledger.TypePenaltyPayment, d("20"), "", 12)

	a.ApplyEntry(ledger.TypeAdjustment, d("100"), ledger.TypeRepayment, 12)
	assert.True(t, a.OutstandingBalance.Equal(d("1180")))
	assert.True(t, a.PaidAmount.Equal(d("20")))
	assert.Equal(t, 0, a.PaymentsMade)
	assert.Equal(t, 12, a.PaymentsDue)

	// a penalty is not an installment, so the count stays put
	a.ApplyEntry(ledger.TypeAdjustment, d("20"), ledger.TypePenaltyPayment, 12)
	assert.True(t, a.PaidAmount.IsZero())
	assert.Equal(t, 0, a.PaymentsMade)

	a.ApplyEntry(ledger.TypeAdjustment, d("-1200"), ledger.TypeDisbursement, 12)
	assert.True(t, a.DisbursedAmount.IsZero())
	assert.True(t, a.OutstandingBalance.IsZero())

	// a plain adjustment only moves the balance
	a.ApplyEntry(ledger.TypeAdjustment, d("5"), "", 12)
	assert.True(t, a.OutstandingBalance.Equal(d("5")))
	assert.True(t, a.PaidAmount.IsZero())
	assert.True(t, a.DisbursedAmount.IsZero())
}

func TestAggregatesEqualByValue(t *testing.T) {
	a := Aggregates{OutstandingBalance: d("10"), PaymentsDue: 3}
	b := Aggregates{OutstandingBalance: d("10.00"), PaymentsDue: 3}
	assert.True(t, a.Equal(b))
	b.PaymentsMade = 1
	assert.False(t, a.Equal(b))
}

func TestPaymentsDueFor(t *testing.T) {
	assert.Equal(t, 12, PaymentsDueFor(12, 0))
	assert.Equal(t, 0, PaymentsDueFor(12, 12))
	assert.Equal(t, 0, PaymentsDueFor(12, 15))
}

func TestLoanAggregatesRoundTrip(t *testing.T) {
	l := &Loan{Principal: d("500")}
	l.SetAggregates(Aggregates{DisbursedAmount: d("200"), OutstandingBalance: d("200"), PaymentsDue: 6})
	assert.True(t, l.Headroom().Equal(d("300")))
	assert.Equal(t, 6, l.Aggregates().PaymentsDue)
}
