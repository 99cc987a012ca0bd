package loan

import (
	"errors"
	"time"

	"agrifin-loan-engine/internal/domain/ledger"
)

type Status string

const (
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusDisbursed   Status = "disbursed"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusDefaulted   Status = "defaulted"
	StatusCancelled   Status = "cancelled"
)

// IsTerminal reports whether no further transition can leave s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusDefaulted || s == StatusCancelled
}

// IsPending reports whether the loan is still an application.
func (s Status) IsPending() bool {
	return s == StatusDraft || s == StatusSubmitted || s == StatusUnderReview
}

type Event string

const (
	EventSubmit      Event = "submit"
	EventBeginReview Event = "begin_review"
	EventApprove     Event = "approve"
	EventReject      Event = "reject"
	EventDisburse    Event = "disburse"
	EventActivate    Event = "activate"
	EventRepay       Event = "repay"
	EventComplete    Event = "complete"
	EventDefault     Event = "miss_payments_beyond_policy"
	EventCancel      Event = "cancel"
)

var transitions = map[Status]map[Event]Status{
	StatusDraft: {
		EventSubmit: StatusSubmitted,
		EventCancel: StatusCancelled,
	},
	StatusSubmitted: {
		EventBeginReview: StatusUnderReview,
		EventCancel:      StatusCancelled,
	},
	StatusUnderReview: {
		EventApprove: StatusApproved,
		EventReject:  StatusCancelled,
		EventCancel:  StatusCancelled,
	},
	// A partial tranche keeps the loan approved; the engine only moves to
	// disbursed once the committed principal is out.
	StatusApproved: {
		EventDisburse: StatusDisbursed,
		EventCancel:   StatusCancelled,
	},
	StatusDisbursed: {
		EventActivate: StatusActive,
	},
	StatusActive: {
		EventRepay:    StatusActive,
		EventComplete: StatusCompleted,
		EventDefault:  StatusDefaulted,
	},
}

// Transition returns the status reached by applying ev to from.
func Transition(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return from, &InvalidTransitionError{From: from, Event: ev}
}

// CanTransition is Transition without the error.
func CanTransition(from Status, ev Event) bool {
	_, ok := transitions[from][ev]
	return ok
}

var permittedTransactions = map[Status]map[ledger.Type]bool{
	StatusApproved: {
		ledger.TypeDisbursement: true,
	},
	StatusDisbursed: {
		ledger.TypeFeePayment:       true,
		ledger.TypeInsurancePremium: true,
		ledger.TypeDeRiskingPayment: true,
		ledger.TypeAdjustment:       true,
	},
	StatusActive: {
		ledger.TypeRepayment:        true,
		ledger.TypeInterestPayment:  true,
		ledger.TypePenaltyPayment:   true,
		ledger.TypeFeePayment:       true,
		ledger.TypeInsurancePremium: true,
		ledger.TypeDeRiskingPayment: true,
		ledger.TypeRefund:           true,
		ledger.TypeAdjustment:       true,
	},
	StatusCompleted: {
		ledger.TypeRefund:     true,
		ledger.TypeAdjustment: true,
	},
	StatusDefaulted: {
		ledger.TypeAdjustment: true,
	},
}

// AllowsTransaction gates which ledger entries may be posted while the loan is in s.
func AllowsTransaction(s Status, t ledger.Type) bool {
	return permittedTransactions[s][t]
}

// Apply moves l along ev and stamps the status time. On error l is unchanged.
func (l *Loan) Apply(ev Event, at time.Time) (from Status, err error) {
	to, err := Transition(l.Status, ev)
	if err != nil {
		var ite *InvalidTransitionError
		if errors.As(err, &ite) {
			ite.LoanID = l.LoanID
		}
		return l.Status, err
	}
	from = l.Status
	l.Status = to
	l.StatusUpdatedAt = at
	return from, nil
}
