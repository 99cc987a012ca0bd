package approval

import (
	"errors"
	"time"
)

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Approval records one credit decision on a loan (table: approvals).
type Approval struct {
	// Internal numeric PK
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Public identifier (32-char lowercase hex)
	ApprovalID string `gorm:"column:approval_id;size:32;not null;uniqueIndex:ux_approvals_approval_id"`
	// FK to loans.id (numeric)
	LoanID       uint64    `gorm:"column:loan_id;not null;index:idx_approvals_loan"`
	Decision     Decision  `gorm:"column:decision;size:16;not null"`
	DecidedBy    string    `gorm:"column:decided_by;size:32;not null"`
	Notes        string    `gorm:"column:notes;type:text"`
	DecisionDate time.Time `gorm:"column:decision_date;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Approval) TableName() string { return "approvals" }

var ErrNotFound = errors.New("approval not found")
