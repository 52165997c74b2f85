package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/fixed-checkout/internal/backend"
	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
	"github.com/fjod/go_cart/fixed-checkout/internal/service"
	"github.com/fjod/go_cart/fixed-checkout/internal/session"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

// handleServiceError converts flow errors to HTTP responses. Step errors
// carry their localized message and the stored state.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var stepErr *service.StepError
	if errors.As(err, &stepErr) {
		resp := ErrorResponse{
			Error: stepErr.Message,
			Code:  stepErr.Code,
			State: newSessionResponse(stepErr.State),
		}
		if stepErr.Err != nil {
			resp.Details = stepErr.Err.Error()
		}
		respondJSON(w, stepStatus(stepErr), resp)
		return
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", "checkout session not found")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		slog.ErrorContext(r.Context(), "checkout request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func stepStatus(e *service.StepError) int {
	switch {
	case errors.Is(e.Err, backend.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(e.Err, backend.ErrUnauthorized), errors.Is(e.Err, backend.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(e.Err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch e.Code {
	case i18n.CodeInvalidStep, i18n.CodeOrderLocked, i18n.CodeNothingToRetry, i18n.CodePaymentExpired:
		return http.StatusConflict
	case i18n.CodeInvalidInput:
		return http.StatusBadRequest
	case i18n.CodeInvalidForm, i18n.CodeUnknownPlan, i18n.CodeUnknownContract, i18n.CodeUnknownProduct,
		i18n.CodeUnknownShipping, i18n.CodeUnknownCartLine, i18n.CodeInvalidInstallments,
		i18n.CodeEquipmentRequired, i18n.CodeBusinessError, i18n.CodeBusinessErrorDetail,
		i18n.CodePaymentRejected, i18n.CodePaymentMismatch:
		return http.StatusUnprocessableEntity
	case i18n.CodeSessionExpired:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}
