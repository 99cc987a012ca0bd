package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ucApproval "agrifin-loan-engine/internal/usecase/approval"
)

type ApprovalHandler struct{ uc *ucApproval.Usecase }

func NewApprovalHandler(uc *ucApproval.Usecase) *ApprovalHandler { return &ApprovalHandler{uc: uc} }

type reviewReq struct {
	ReviewerID string `json:"reviewer_id" validate:"required,max=32"`
}

func (h *ApprovalHandler) BeginReview(c echo.Context) error {
	loanID := c.Param("loan_id")
	if loanID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing loan_id path param"})
	}
	var req reviewReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.BeginReview(c.Request().Context(), ucApproval.BeginReviewInput{LoanID: loanID, ReviewerID: req.ReviewerID})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type approveLoanReq struct {
	ApproverID string `json:"approver_id" validate:"required,max=32"`
	Notes      string `json:"notes"       validate:"max=1000"`
	// Accept canonical date `YYYY-MM-DD`; empty means today
	ApprovalDate string `json:"approval_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *ApprovalHandler) ApproveLoan(c echo.Context) error {
	// Validate path param
	loanID := c.Param("loan_id")
	if loanID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing loan_id path param"})
	}
	// Bind + validate body payload JSON
	var req approveLoanReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	in := ucApproval.ApproveInput{LoanID: loanID, ApproverID: req.ApproverID, Notes: req.Notes}
	if req.ApprovalDate != "" {
		in.ApprovalDate, _ = time.Parse(dateLayout, req.ApprovalDate)
	}
	dto, err := h.uc.Approve(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type rejectLoanReq struct {
	ReviewerID string `json:"reviewer_id" validate:"required,max=32"`
	Reason     string `json:"reason"      validate:"required,max=1000"`
}

func (h *ApprovalHandler) RejectLoan(c echo.Context) error {
	loanID := c.Param("loan_id")
	if loanID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing loan_id path param"})
	}
	var req rejectLoanReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	dto, err := h.uc.Reject(c.Request().Context(), ucApproval.RejectInput{LoanID: loanID, ReviewerID: req.ReviewerID, Reason: req.Reason})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *ApprovalHandler) History(c echo.Context) error {
	hist, err := h.uc.History(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": c.Param("loan_id"), "decisions": hist})
}
