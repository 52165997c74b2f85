package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fjod/go_cart/fixed-checkout/internal/domain"
	"github.com/fjod/go_cart/fixed-checkout/internal/service"
	"github.com/fjod/go_cart/fixed-checkout/pkg/logger"
)

type CheckoutHandler struct {
	checkout service.CheckoutService
	timeout  time.Duration
}

func NewCheckoutHandler(checkout service.CheckoutService, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		timeout:  timeout,
	}
}

type StartSessionRequestDTO struct {
	Language string `json:"language"`
}

type SelectPlanRequestDTO struct {
	PlanID string `json:"plan_id"`
}

type SelectContractRequestDTO struct {
	ContractID string `json:"contract_id"`
}

type SelectShippingRequestDTO struct {
	OptionID string `json:"option_id"`
}

// SessionResponseDTO is the flow state with the step spelled out
type SessionResponseDTO struct {
	*domain.FlowState
	StepName string `json:"step_name"`
}

type ErrorResponse struct {
	Error   string              `json:"error"`
	Code    string              `json:"code,omitempty"`
	Details string              `json:"details,omitempty"`
	State   *SessionResponseDTO `json:"state,omitempty"`
}

func newSessionResponse(state *domain.FlowState) *SessionResponseDTO {
	if state == nil {
		return nil
	}
	return &SessionResponseDTO{FlowState: state, StepName: state.Step.String()}
}

// POST /api/v1/sessions
func (h *CheckoutHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// the body is optional
	var req StartSessionRequestDTO
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}
	lang := req.Language
	if lang == "" {
		lang = getLanguage(r.Context())
	}

	state, err := h.checkout.StartSession(ctx, lang)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newSessionResponse(state))
}

// GET /api/v1/sessions/{id}
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.checkout.GetSession(ctx, chi.URLParam(r, "id"))
	h.respondState(w, r, state, err)
}

// DELETE /api/v1/sessions/{id}
func (h *CheckoutHandler) CancelSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.checkout.CancelSession(ctx, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/sessions/{id}/location
func (h *CheckoutHandler) ValidateLocation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var address domain.Address
	if !decodeBody(w, r, &address) {
		return
	}
	state, err := h.checkout.ValidateLocation(ctx, chi.URLParam(r, "id"), address)
	h.respondState(w, r, state, err)
}

// GET /api/v1/sessions/{id}/plans
func (h *CheckoutHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	plans, err := h.checkout.ListPlans(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

// POST /api/v1/sessions/{id}/plan
func (h *CheckoutHandler) SelectPlan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectPlanRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.PlanID == "" {
		respondError(w, http.StatusBadRequest, "missing_plan_id", "plan_id is required")
		return
	}
	state, err := h.checkout.SelectPlan(ctx, chi.URLParam(r, "id"), req.PlanID)
	h.respondState(w, r, state, err)
}

// GET /api/v1/sessions/{id}/contracts
func (h *CheckoutHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	contracts, err := h.checkout.ListContracts(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, contracts)
}

// POST /api/v1/sessions/{id}/contract
func (h *CheckoutHandler) SelectContract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectContractRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ContractID == "" {
		respondError(w, http.StatusBadRequest, "missing_contract_id", "contract_id is required")
		return
	}
	state, err := h.checkout.SelectContract(ctx, chi.URLParam(r, "id"), req.ContractID)
	h.respondState(w, r, state, err)
}

// GET /api/v1/sessions/{id}/catalogue
func (h *CheckoutHandler) ListCatalogue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := h.checkout.ListCatalogue(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// POST /api/v1/sessions/{id}/equipment
func (h *CheckoutHandler) AddEquipment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req service.AddEquipmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "missing_product_id", "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}
	state, err := h.checkout.AddEquipment(ctx, chi.URLParam(r, "id"), req)
	h.respondState(w, r, state, err)
}

// DELETE /api/v1/sessions/{id}/equipment/{cartId}
func (h *CheckoutHandler) RemoveEquipment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.checkout.RemoveEquipment(ctx, chi.URLParam(r, "id"), chi.URLParam(r, "cartId"))
	h.respondState(w, r, state, err)
}

// POST /api/v1/sessions/{id}/catalogue/confirm
func (h *CheckoutHandler) ConfirmCatalogue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.checkout.ConfirmCatalogue(ctx, chi.URLParam(r, "id"))
	h.respondState(w, r, state, err)
}

// POST /api/v1/sessions/{id}/form
func (h *CheckoutHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var form domain.CustomerForm
	if !decodeBody(w, r, &form) {
		return
	}
	state, err := h.checkout.SubmitForm(ctx, chi.URLParam(r, "id"), form)
	h.respondState(w, r, state, err)
}

// GET /api/v1/sessions/{id}/shipping
func (h *CheckoutHandler) ListShippingOptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	options, err := h.checkout.ListShippingOptions(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, options)
}

// POST /api/v1/sessions/{id}/shipping
func (h *CheckoutHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SelectShippingRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OptionID == "" {
		respondError(w, http.StatusBadRequest, "missing_option_id", "option_id is required")
		return
	}
	state, err := h.checkout.SelectShipping(ctx, chi.URLParam(r, "id"), req.OptionID)
	h.respondState(w, r, state, err)
}

// POST /api/v1/sessions/{id}/payment
func (h *CheckoutHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.checkout.SubmitPayment(ctx, chi.URLParam(r, "id"))
	h.respondState(w, r, state, err)
}

// POST /api/v1/sessions/{id}/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.checkout.Retry(ctx, chi.URLParam(r, "id"))
	h.respondState(w, r, state, err)
}

// POST /api/v1/sessions/{id}/back
func (h *CheckoutHandler) GoBack(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state, err := h.checkout.GoBack(ctx, chi.URLParam(r, "id"))
	h.respondState(w, r, state, err)
}

// GET /api/v1/sessions/{id}/summary
func (h *CheckoutHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	summary, err := h.checkout.Summary(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// POST /api/v1/payments/callback
// A rejected payment is still a delivered outcome, so it is acknowledged
// with the resulting state.
func (h *CheckoutHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var outcome domain.PaymentOutcome
	if !decodeBody(w, r, &outcome) {
		return
	}
	if outcome.SessionID == "" || outcome.OrderID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "session_id and order_id are required")
		return
	}
	outcome.Status = domain.PaymentStatus(strings.ToUpper(string(outcome.Status)))

	state, err := h.checkout.RecordPaymentOutcome(ctx, outcome)
	if err != nil && errors.Is(err, service.ErrPaymentRejected) && state != nil {
		slog.InfoContext(ctx, "payment rejected by provider",
			logger.SessionID(outcome.SessionID),
			logger.OrderID(outcome.OrderID))
		respondJSON(w, http.StatusOK, newSessionResponse(state))
		return
	}
	h.respondState(w, r, state, err)
}

func (h *CheckoutHandler) respondState(w http.ResponseWriter, r *http.Request, state *domain.FlowState, err error) {
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newSessionResponse(state))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", logger.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
