package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/AlexDid/simple-debts-api/internal/middleware"
	"github.com/AlexDid/simple-debts-api/internal/models"
	"github.com/AlexDid/simple-debts-api/internal/services"
)

// DebtHandler handles debt-related HTTP requests
type DebtHandler struct {
	debtService *services.DebtService
	userService *services.UserService
	hub         *services.EventsHub
	notifier    *services.PushNotifier
}

// NewDebtHandler creates a new debt handler
func NewDebtHandler(debtService *services.DebtService, userService *services.UserService, hub *services.EventsHub, notifier *services.PushNotifier) *DebtHandler {
	return &DebtHandler{
		debtService: debtService,
		userService: userService,
		hub:         hub,
		notifier:    notifier,
	}
}

// notifyCounterparty pushes a debt event to the other participant over
// the hub and, for proposals, to their registered devices. Failures
// never affect the response: the state change already committed.
func (h *DebtHandler) notifyCounterparty(r *http.Request, debt *models.Debt, actorID, event, alert string) {
	counterpartyID, ok := debt.CounterParty(actorID)
	if !ok {
		return
	}

	h.hub.NotifyDebtEvent(counterpartyID, event, debt)

	if alert == "" {
		return
	}
	counterparty, err := h.userService.GetByID(r.Context(), counterpartyID)
	if err != nil {
		log.Error().Err(err).Str("user_id", counterpartyID).Msg("Failed to load counterparty for push")
		return
	}
	h.notifier.Push(r.Context(), counterparty, alert)
}

// CreateDebtRequest represents the request body for creating a debt
type CreateDebtRequest struct {
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
}

// CreateDebt handles POST /api/v1/debts
func (h *DebtHandler) CreateDebt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateDebtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		respondError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	debt, err := h.debtService.Create(ctx, userID, req.UserID, req.Currency)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("counterparty_id", req.UserID).
			Msg("Failed to create debt")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("debt_id", debt.ID).
		Str("currency", debt.Currency).
		Msg("Debt proposed")

	h.notifyCounterparty(r, debt, userID, services.EventDebtProposed, "New debt request")

	respondJSON(w, http.StatusCreated, debt)
}

// ListDebts handles GET /api/v1/debts
func (h *DebtHandler) ListDebts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	debts, err := h.debtService.ListForUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list debts")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, debts)
}

// GetDebt handles GET /api/v1/debts/{debt_id}
func (h *DebtHandler) GetDebt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	debtID := chi.URLParam(r, "debt_id")

	debt, err := h.debtService.GetByID(ctx, userID, debtID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, debt)
}

// AcceptDebt handles POST /api/v1/debts/{debt_id}/creation/accept
func (h *DebtHandler) AcceptDebt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	debtID := chi.URLParam(r, "debt_id")

	debt, err := h.debtService.AcceptCreation(ctx, userID, debtID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("debt_id", debtID).
			Msg("Failed to accept debt creation")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("debt_id", debtID).
		Msg("Debt creation accepted")

	h.notifyCounterparty(r, debt, userID, services.EventDebtAccepted, "Debt request accepted")

	respondJSON(w, http.StatusOK, debt)
}

// DeclineDebt handles POST /api/v1/debts/{debt_id}/creation/decline
func (h *DebtHandler) DeclineDebt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	debtID := chi.URLParam(r, "debt_id")

	// Load the debt first so the counterparty can still be notified
	// after the record is gone.
	debt, err := h.debtService.GetByID(ctx, userID, debtID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if err := h.debtService.DeclineCreation(ctx, userID, debtID); err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("debt_id", debtID).
			Msg("Failed to decline debt creation")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("debt_id", debtID).
		Msg("Debt creation declined")

	h.notifyCounterparty(r, debt, userID, services.EventDebtDeclined, "")

	w.WriteHeader(http.StatusNoContent)
}

// DeleteDebt handles DELETE /api/v1/debts/{debt_id}. The caller leaves
// the debt: a pending creation is declined, an accepted shared debt
// goes through participant removal.
func (h *DebtHandler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	debtID := chi.URLParam(r, "debt_id")

	debt, err := h.debtService.Leave(ctx, userID, debtID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("debt_id", debtID).
			Msg("Failed to leave debt")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("debt_id", debtID).
		Msg("Debt left")

	if debt == nil {
		// Pending creation was declined and removed.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// The remaining participant is recorded as the status acceptor of
	// the orphaned debt.
	if debt.StatusAcceptor != nil {
		h.hub.NotifyDebtEvent(*debt.StatusAcceptor, services.EventDebtUserDeleted, debt)
	}

	respondJSON(w, http.StatusOK, debt)
}
