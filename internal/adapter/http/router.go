package http

import "github.com/labstack/echo/v4"

// Register mounts every route. mw applies to the /loans group only.
func Register(e *echo.Echo, h *Handler, loans *LoanHandler, approvals *ApprovalHandler, mw ...echo.MiddlewareFunc) {
	e.GET("/health", h.Health)

	g := e.Group("/loans", mw...)
	g.POST("", loans.CreateLoan)
	g.GET("/:loan_id", loans.GetLoan)
	g.GET("/:loan_id/transactions", loans.ListTransactions)
	g.GET("/:loan_id/schedule", loans.Schedule)
	g.GET("/:loan_id/decisions", approvals.History)

	g.POST("/:loan_id/submit", loans.Submit)
	g.POST("/:loan_id/review", approvals.BeginReview)
	g.POST("/:loan_id/approve", approvals.ApproveLoan)
	g.POST("/:loan_id/reject", approvals.RejectLoan)
	g.POST("/:loan_id/disburse", loans.Disburse)
	g.POST("/:loan_id/activate", loans.Activate)
	g.POST("/:loan_id/repayments", loans.RecordRepayment)
	g.POST("/:loan_id/default", loans.MarkDefaulted)
	g.POST("/:loan_id/cancel", loans.Cancel)
	g.POST("/:loan_id/rate-reset", loans.ResetRate)
	g.POST("/:loan_id/accrue-interest", loans.AccrueInterest)
	g.POST("/:loan_id/adjustments", loans.PostAdjustment)
	g.POST("/:loan_id/archive", loans.Archive)
	g.POST("/:loan_id/transactions/:transaction_id/reverse", loans.ReverseTransaction)
	g.POST("/:loan_id/reconcile", loans.Reconcile)
}
