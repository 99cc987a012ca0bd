package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"agrifin-loan-engine/internal/domain/loan"
	"agrifin-loan-engine/internal/logger"
)

var statusByCode = map[string]int{
	"INVALID_INPUT":             http.StatusBadRequest,
	"INVALID_TERMS":             http.StatusUnprocessableEntity,
	"INVALID_AMOUNT":            http.StatusUnprocessableEntity,
	"OVERPAYMENT":               http.StatusUnprocessableEntity,
	"INSUFFICIENT_HEADROOM":     http.StatusUnprocessableEntity,
	"INVALID_TRANSITION":        http.StatusConflict,
	"PENDING_LOAN_EXISTS":       http.StatusConflict,
	"DUPLICATE_IDEMPOTENCY_KEY": http.StatusConflict,
	"RECONCILIATION_DRIFT":      http.StatusConflict,
	"LOAN_NOT_FOUND":            http.StatusNotFound,
	"TRANSACTION_NOT_FOUND":     http.StatusNotFound,
	"CONCURRENCY_TIMEOUT":       http.StatusServiceUnavailable,
	"PERSISTENCE_ERROR":         http.StatusServiceUnavailable,
}

// StatusFor maps an engine error to its HTTP status.
func StatusFor(err error) int {
	if s, ok := statusByCode[loan.Code(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err as an ErrorResponse. Storage details stay in the log.
func writeError(c echo.Context, err error) error {
	code := loan.Code(err)
	status := StatusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError || errors.Is(err, loan.ErrPersistence) {
		logger.Get().Errorw("request failed", "path", c.Path(), "code", code, "error", err)
		msg = http.StatusText(status)
	}
	if loan.IsRetryable(err) {
		c.Response().Header().Set("Retry-After", "1")
	}
	return c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body", Code: "INVALID_INPUT"})
}

func invalid(c echo.Context, err error) error {
	return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
		Error:   "validation failed",
		Code:    "INVALID_INPUT",
		Details: ToFieldErrors(err),
	})
}
