package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"agrifin-loan-engine/internal/adapter/middleware"
	domainLedger "agrifin-loan-engine/internal/domain/ledger"
	domainLoan "agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/usecase/loan"
	"agrifin-loan-engine/internal/usecase/reconcile"
)

type LoanHandler struct {
	uc  *loan.Usecase
	rec *reconcile.Service
}

func NewLoanHandler(uc *loan.Usecase, rec *reconcile.Service) *LoanHandler {
	return &LoanHandler{uc: uc, rec: rec}
}

const dateLayout = "2006-01-02"

// idempotencyKey prefers the key in the body over the Idempotency-Key header.
func idempotencyKey(c echo.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if k, ok := c.Get(middleware.ContextKeyIdempotency).(string); ok {
		return k
	}
	return ""
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

func postingStatus(res *loan.PostingResult) int {
	if res.Replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

type createLoanReq struct {
	BorrowerID          string          `json:"borrower_id"           validate:"required,hex32"`
	LenderID            string          `json:"lender_id"             validate:"required,hex32"`
	CoSignerID          string          `json:"co_signer_id"          validate:"required,hex32"`
	InsuranceProviderID string          `json:"insurance_provider_id" validate:"omitempty,hex32"`
	DeRiskingProviderID string          `json:"derisking_provider_id" validate:"omitempty,hex32"`
	Principal           decimal.Decimal `json:"principal"             validate:"dpos,dec2"`
	AnnualRate          decimal.Decimal `json:"annual_rate"           validate:"dnonneg"`
	InterestType        string          `json:"interest_type"         validate:"omitempty,oneof=fixed variable"`
	TenorMonths         int             `json:"tenor_months"          validate:"required,gte=1,lte=360"`
	Purpose             string          `json:"purpose"               validate:"max=64"`
	Tranches            int             `json:"tranches"              validate:"omitempty,gte=1,lte=24"`
	Currency            string          `json:"currency"              validate:"required,iso4217"`
	AgreementDocumentID string          `json:"agreement_document_id" validate:"max=64"`
	ScheduleDocumentID  string          `json:"schedule_document_id"  validate:"max=64"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.CreateLoan(c.Request().Context(), loan.CreateLoanInput{
		BorrowerID:          req.BorrowerID,
		LenderID:            req.LenderID,
		CoSignerID:          req.CoSignerID,
		InsuranceProviderID: req.InsuranceProviderID,
		DeRiskingProviderID: req.DeRiskingProviderID,
		Principal:           req.Principal,
		AnnualRate:          req.AnnualRate,
		InterestType:        domainLoan.InterestType(req.InterestType),
		TenorMonths:         req.TenorMonths,
		Purpose:             req.Purpose,
		Tranches:            req.Tranches,
		Currency:            req.Currency,
		AgreementDocumentID: req.AgreementDocumentID,
		ScheduleDocumentID:  req.ScheduleDocumentID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	l, err := h.uc.GetLoan(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *LoanHandler) ListTransactions(c echo.Context) error {
	txs, err := h.uc.ListTransactions(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": c.Param("loan_id"), "transactions": txs})
}

func (h *LoanHandler) Schedule(c echo.Context) error {
	s, err := h.uc.Schedule(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

type actorReq struct {
	ActorID string `json:"actor_id" validate:"required,max=32"`
}

func (h *LoanHandler) Submit(c echo.Context) error {
	var req actorReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.Submit(c.Request().Context(), c.Param("loan_id"), req.ActorID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *LoanHandler) Archive(c echo.Context) error {
	var req actorReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.Archive(c.Request().Context(), c.Param("loan_id"), req.ActorID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type cancelReq struct {
	ActorID string `json:"actor_id" validate:"required,max=32"`
	Reason  string `json:"reason"   validate:"max=500"`
}

func (h *LoanHandler) Cancel(c echo.Context) error {
	var req cancelReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.Cancel(c.Request().Context(), c.Param("loan_id"), req.ActorID, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type activateReq struct {
	ActorID string `json:"actor_id" validate:"required,max=32"`
	// Accept canonical date `YYYY-MM-DD`
	FirstPaymentDate string `json:"first_payment_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *LoanHandler) Activate(c echo.Context) error {
	var req activateReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.Activate(c.Request().Context(), c.Param("loan_id"), req.ActorID, parseDate(req.FirstPaymentDate))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type defaultReq struct {
	ActorID string `json:"actor_id" validate:"required,max=32"`
	AsOf    string `json:"as_of"    validate:"omitempty,datetime=2006-01-02"`
}

func (h *LoanHandler) MarkDefaulted(c echo.Context) error {
	var req defaultReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	asOf := time.Now().UTC()
	if d := parseDate(req.AsOf); d != nil {
		asOf = *d
	}
	l, err := h.uc.MarkDefaulted(c.Request().Context(), c.Param("loan_id"), req.ActorID, asOf)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type disburseReq struct {
	Tranche        *decimal.Decimal `json:"tranche"         validate:"omitempty,dpos,dec2"`
	ProcessedBy    string           `json:"processed_by"    validate:"required,max=32"`
	Method         string           `json:"method"          validate:"max=32"`
	IdempotencyKey string           `json:"idempotency_key" validate:"max=64"`
}

func (h *LoanHandler) Disburse(c echo.Context) error {
	var req disburseReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	res, err := h.uc.Disburse(c.Request().Context(), c.Param("loan_id"), loan.DisburseInput{
		Tranche:        req.Tranche,
		ProcessedBy:    req.ProcessedBy,
		Method:         req.Method,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(postingStatus(res), res)
}

type repaymentReq struct {
	Amount         decimal.Decimal `json:"amount"          validate:"dpos,dec2"`
	Kind           string          `json:"kind"            validate:"omitempty,oneof=repayment interest_payment penalty_payment"`
	PayerID        string          `json:"payer_id"        validate:"required,max=32"`
	ProcessedBy    string          `json:"processed_by"    validate:"max=32"`
	Method         string          `json:"method"          validate:"max=32"`
	AllowRefund    bool            `json:"allow_refund"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=64"`
}

func (h *LoanHandler) RecordRepayment(c echo.Context) error {
	var req repaymentReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	res, err := h.uc.RecordRepayment(c.Request().Context(), c.Param("loan_id"), loan.RepaymentInput{
		Amount:         req.Amount,
		Kind:           domainLedger.Type(req.Kind),
		PayerID:        req.PayerID,
		ProcessedBy:    req.ProcessedBy,
		Method:         req.Method,
		AllowRefund:    req.AllowRefund,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(postingStatus(res), res)
}

type accrueReq struct {
	ActorID        string `json:"actor_id"        validate:"required,max=32"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=64"`
}

func (h *LoanHandler) AccrueInterest(c echo.Context) error {
	var req accrueReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	res, err := h.uc.AccrueInterest(c.Request().Context(), c.Param("loan_id"), req.ActorID, idempotencyKey(c, req.IdempotencyKey))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(postingStatus(res), res)
}

type adjustmentReq struct {
	Amount         decimal.Decimal `json:"amount"          validate:"dnonzero,dec2"`
	ProcessedBy    string          `json:"processed_by"    validate:"required,max=32"`
	Notes          string          `json:"notes"           validate:"required,max=500"`
	IdempotencyKey string          `json:"idempotency_key" validate:"max=64"`
}

func (h *LoanHandler) PostAdjustment(c echo.Context) error {
	var req adjustmentReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	res, err := h.uc.PostAdjustment(c.Request().Context(), c.Param("loan_id"), loan.AdjustmentInput{
		Amount:         req.Amount,
		ProcessedBy:    req.ProcessedBy,
		Notes:          req.Notes,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(postingStatus(res), res)
}

type reverseReq struct {
	ActorID string `json:"actor_id" validate:"required,max=32"`
	Reason  string `json:"reason"   validate:"max=500"`
}

func (h *LoanHandler) ReverseTransaction(c echo.Context) error {
	var req reverseReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	res, err := h.uc.ReverseTransaction(c.Request().Context(), c.Param("loan_id"), c.Param("transaction_id"), req.ActorID, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(postingStatus(res), res)
}

type rateResetReq struct {
	ActorID    string          `json:"actor_id"    validate:"required,max=32"`
	AnnualRate decimal.Decimal `json:"annual_rate" validate:"dnonneg"`
}

func (h *LoanHandler) ResetRate(c echo.Context) error {
	var req rateResetReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	if err := c.Validate(&req); err != nil {
		return invalid(c, err)
	}
	l, err := h.uc.ResetRate(c.Request().Context(), c.Param("loan_id"), req.ActorID, req.AnnualRate)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

// Reconcile runs an on-demand check. Drift is reported in the body with 200;
// the check itself succeeded.
func (h *LoanHandler) Reconcile(c echo.Context) error {
	rep, err := h.rec.Reconcile(c.Request().Context(), c.Param("loan_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rep)
}
