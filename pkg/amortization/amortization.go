// Package amortization turns loan terms into an installment schedule.
//
// Every function here is pure: no I/O, no shared state, safe for concurrent use.
// Amounts are rounded to the currency minor unit with banker's rounding so that
// rounding errors do not accumulate in one direction over a long schedule.
package amortization

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type RateType string

const (
	RateFixed    RateType = "fixed"
	RateVariable RateType = "variable"
)

var ErrInvalidTerms = errors.New("invalid loan terms")

// InvalidTermsError names the offending input.
type InvalidTermsError struct {
	Field  string
	Reason string
}

func (e *InvalidTermsError) Error() string {
	return fmt.Sprintf("invalid loan terms: %s %s", e.Field, e.Reason)
}

func (e *InvalidTermsError) Unwrap() error { return ErrInvalidTerms }

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// zeroDecimalCurrencies have no minor unit in practice.
var zeroDecimalCurrencies = map[string]bool{
	"IDR": true, "JPY": true, "KRW": true, "VND": true, "UGX": true, "RWF": true,
}

// MinorUnits returns the number of decimal places used by the currency.
func MinorUnits(currency string) int32 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Round applies banker's rounding at the currency minor unit.
func Round(v decimal.Decimal, currency string) decimal.Decimal {
	return v.RoundBank(MinorUnits(currency))
}

type Terms struct {
	Principal   decimal.Decimal
	AnnualRate  decimal.Decimal // percent, e.g. 12 for 12% p.a.
	TenorMonths int
	RateType    RateType
	Currency    string
}

// Installment is one row of a schedule.
type Installment struct {
	Period    int             `json:"period"`
	Payment   decimal.Decimal `json:"payment"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
	Balance   decimal.Decimal `json:"balance"`
}

type Schedule struct {
	RateType       RateType        `json:"rate_type"`
	Currency       string          `json:"currency"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	Installments   []Installment   `json:"installments"`
}

func validate(principal, annualRate decimal.Decimal, tenor int) error {
	if tenor <= 0 {
		return &InvalidTermsError{Field: "tenor_months", Reason: "must be positive"}
	}
	if !principal.IsPositive() {
		return &InvalidTermsError{Field: "principal", Reason: "must be positive"}
	}
	if annualRate.IsNegative() {
		return &InvalidTermsError{Field: "annual_rate", Reason: "must not be negative"}
	}
	return nil
}

func monthlyRate(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(twelve).Div(hundred)
}

// payment computes the level installment P*r / (1 - (1+r)^-n), or P/n at zero rate.
func payment(principal, r decimal.Decimal, n int, currency string) decimal.Decimal {
	if r.IsZero() {
		return Round(principal.Div(decimal.NewFromInt(int64(n))), currency)
	}
	// (1+r)^n / ((1+r)^n - 1) is the same factor with a positive exponent.
	factor := decimal.NewFromInt(1).Add(r).Pow(decimal.NewFromInt(int64(n)))
	return Round(principal.Mul(r).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1))), currency)
}

// ComputeSchedule builds the installment table for the given terms.
// The last installment absorbs rounding so the principal components sum to the
// original principal exactly.
func ComputeSchedule(t Terms) (*Schedule, error) {
	if err := validate(t.Principal, t.AnnualRate, t.TenorMonths); err != nil {
		return nil, err
	}
	rt := t.RateType
	if rt == "" {
		rt = RateFixed
	}
	if rt != RateFixed && rt != RateVariable {
		return nil, &InvalidTermsError{Field: "rate_type", Reason: "must be fixed or variable"}
	}

	r := monthlyRate(t.AnnualRate)
	pay := payment(t.Principal, r, t.TenorMonths, t.Currency)

	rows := make([]Installment, 0, t.TenorMonths)
	balance := t.Principal
	totalInterest := decimal.Zero
	for period := 1; period <= t.TenorMonths; period++ {
		interest := Round(balance.Mul(r), t.Currency)
		principalPart := pay.Sub(interest)
		if period == t.TenorMonths || principalPart.GreaterThan(balance) {
			principalPart = balance
		}
		balance = balance.Sub(principalPart)
		totalInterest = totalInterest.Add(interest)
		rows = append(rows, Installment{
			Period:    period,
			Payment:   principalPart.Add(interest),
			Interest:  interest,
			Principal: principalPart,
			Balance:   balance,
		})
	}

	return &Schedule{
		RateType:       rt,
		Currency:       t.Currency,
		MonthlyPayment: pay,
		TotalAmount:    pay.Mul(decimal.NewFromInt(int64(t.TenorMonths))),
		TotalInterest:  totalInterest,
		Installments:   rows,
	}, nil
}

// Reestimate returns the revised level installment after a rate reset: the same
// formula applied to the outstanding principal over the remaining term.
func Reestimate(outstanding decimal.Decimal, remainingMonths int, newAnnualRate decimal.Decimal, currency string) (decimal.Decimal, error) {
	if outstanding.IsZero() {
		return decimal.Zero, nil
	}
	if err := validate(outstanding, newAnnualRate, remainingMonths); err != nil {
		return decimal.Zero, err
	}
	return payment(outstanding, monthlyRate(newAnnualRate), remainingMonths, currency), nil
}

// MonthlyInterest is one period of interest on balance at the annual rate.
func MonthlyInterest(balance, annualRate decimal.Decimal, currency string) decimal.Decimal {
	if !balance.IsPositive() || !annualRate.IsPositive() {
		return decimal.Zero
	}
	return Round(balance.Mul(monthlyRate(annualRate)), currency)
}
