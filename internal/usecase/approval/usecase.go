package approval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	domainApproval "agrifin-loan-engine/internal/domain/approval"
	"agrifin-loan-engine/internal/domain/event"
	domainLoan "agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/domain/uow"
	"agrifin-loan-engine/internal/logger"
	ledgeruc "agrifin-loan-engine/internal/usecase/ledger"
	"agrifin-loan-engine/pkg/id"
)

// Usecase owns the credit decision: review, approve, reject.
type Usecase struct {
	loanRepo     domainLoan.Repository
	approvalRepo domainApproval.Repository
	poster       *ledgeruc.Poster
	log          *zap.SugaredLogger
}

func NewUsecase(loans domainLoan.Repository, approvals domainApproval.Repository, poster *ledgeruc.Poster) *Usecase {
	return &Usecase{loanRepo: loans, approvalRepo: approvals, poster: poster, log: logger.Get()}
}

func (u *Usecase) transition(ctx context.Context, r uow.Repos, l *domainLoan.Loan, ev domainLoan.Event, actor string, out *event.Outbox) error {
	from, err := l.Apply(ev, u.poster.Now())
	if err != nil {
		return err
	}
	if err := r.Loans.Save(ctx, l); err != nil {
		return err
	}
	out.Add(event.StatusChanged(l.LoanID, string(from), string(l.Status), actor, l.StatusUpdatedAt))
	u.log.Infow("loan status changed", "loan_id", l.LoanID, "from", from, "to", l.Status, "event", ev, "actor", actor)
	return nil
}

// BeginReview picks a submitted application up for credit review.
func (u *Usecase) BeginReview(ctx context.Context, in BeginReviewInput) (*domainLoan.Loan, error) {
	if in.ReviewerID == "" {
		return nil, fmt.Errorf("%w: reviewer_id is required", domainLoan.ErrInvalidInput)
	}
	var res *domainLoan.Loan
	err := u.poster.Exec(ctx, "begin review", in.LoanID, func(ctx context.Context, r uow.Repos, l *domainLoan.Loan, out *event.Outbox) error {
		if !domainLoan.CanTransition(l.Status, domainLoan.EventBeginReview) {
			return &domainLoan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: domainLoan.EventBeginReview}
		}
		l.ReviewedBy = in.ReviewerID
		if err := u.transition(ctx, r, l, domainLoan.EventBeginReview, in.ReviewerID, out); err != nil {
			return err
		}
		res = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Approve commits the principal. Only a loan under review can be approved.
func (u *Usecase) Approve(ctx context.Context, in ApproveInput) (*DecisionDTO, error) {
	if in.ApproverID == "" {
		return nil, fmt.Errorf("%w: approver_id is required", domainLoan.ErrInvalidInput)
	}
	var dto *DecisionDTO
	err := u.poster.Exec(ctx, "approve", in.LoanID, func(ctx context.Context, r uow.Repos, l *domainLoan.Loan, out *event.Outbox) error {
		// State guard: only under_review -> approved
		if !domainLoan.CanTransition(l.Status, domainLoan.EventApprove) {
			return &domainLoan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: domainLoan.EventApprove}
		}

		when := in.ApprovalDate.UTC()
		if in.ApprovalDate.IsZero() {
			when = u.poster.Now()
		}
		a := &domainApproval.Approval{
			ApprovalID:   id.NewID32(),
			LoanID:       l.ID, // numeric FK
			Decision:     domainApproval.DecisionApproved,
			DecidedBy:    in.ApproverID,
			Notes:        in.Notes,
			DecisionDate: when,
		}
		if err := r.Approvals.Create(ctx, a); err != nil {
			return err
		}

		l.ApprovedBy = in.ApproverID
		l.ApprovalDate = &when
		l.ApprovalNotes = in.Notes
		if err := u.transition(ctx, r, l, domainLoan.EventApprove, in.ApproverID, out); err != nil {
			return err
		}
		dto = toDTO(a, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// Reject closes an application under review. No money moves.
func (u *Usecase) Reject(ctx context.Context, in RejectInput) (*DecisionDTO, error) {
	if in.ReviewerID == "" || in.Reason == "" {
		return nil, fmt.Errorf("%w: reviewer_id and reason are required", domainLoan.ErrInvalidInput)
	}
	var dto *DecisionDTO
	err := u.poster.Exec(ctx, "reject", in.LoanID, func(ctx context.Context, r uow.Repos, l *domainLoan.Loan, out *event.Outbox) error {
		if !domainLoan.CanTransition(l.Status, domainLoan.EventReject) {
			return &domainLoan.InvalidTransitionError{LoanID: l.LoanID, From: l.Status, Event: domainLoan.EventReject}
		}

		now := u.poster.Now()
		a := &domainApproval.Approval{
			ApprovalID:   id.NewID32(),
			LoanID:       l.ID,
			Decision:     domainApproval.DecisionRejected,
			DecidedBy:    in.ReviewerID,
			Notes:        in.Reason,
			DecisionDate: now,
		}
		if err := r.Approvals.Create(ctx, a); err != nil {
			return err
		}

		l.RejectionReason = in.Reason
		l.ClosedAt = &now
		if err := u.transition(ctx, r, l, domainLoan.EventReject, in.ReviewerID, out); err != nil {
			return err
		}
		dto = toDTO(a, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dto, nil
}

// History lists every decision taken on a loan, oldest first.
func (u *Usecase) History(ctx context.Context, loanID string) ([]DecisionDTO, error) {
	l, err := u.loanRepo.GetByLoanID(ctx, loanID)
	if err != nil {
		return nil, domainLoan.Classify("decision history", err)
	}
	rows, err := u.approvalRepo.ListByLoanID(ctx, l.ID)
	if err != nil {
		return nil, domainLoan.Classify("decision history", err)
	}
	out := make([]DecisionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *toDTO(&rows[i], l))
	}
	return out, nil
}

func toDTO(a *domainApproval.Approval, l *domainLoan.Loan) *DecisionDTO {
	return &DecisionDTO{
		ApprovalID:   a.ApprovalID,
		LoanID:       l.LoanID, // public id
		Decision:     string(a.Decision),
		DecidedBy:    a.DecidedBy,
		Notes:        a.Notes,
		DecisionDate: a.DecisionDate,
		LoanStatus:   string(l.Status),
	}
}
