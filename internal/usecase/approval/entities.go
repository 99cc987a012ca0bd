package approval

import (
	"time"
)

type BeginReviewInput struct {
	LoanID     string `json:"loan_id"`
	ReviewerID string `json:"reviewer_id"`
}

type ApproveInput struct {
	LoanID     string `json:"loan_id"`
	ApproverID string `json:"approver_id"`
	Notes      string `json:"notes"`
	// ApprovalDate defaults to now.
	ApprovalDate time.Time `json:"approval_date"`
}

type RejectInput struct {
	LoanID     string `json:"loan_id"`
	ReviewerID string `json:"reviewer_id"`
	Reason     string `json:"reason"`
}

type DecisionDTO struct {
	ApprovalID   string    `json:"approval_id"`
	LoanID       string    `json:"loan_id"`
	Decision     string    `json:"decision"`
	DecidedBy    string    `json:"decided_by"`
	Notes        string    `json:"notes,omitempty"`
	DecisionDate time.Time `json:"decision_date"`
	LoanStatus   string    `json:"loan_status"`
}
