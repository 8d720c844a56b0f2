package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AlexDid/simple-debts-api/internal/middleware"
	"github.com/AlexDid/simple-debts-api/internal/models"
	"github.com/AlexDid/simple-debts-api/internal/services"
)

// OperationHandler handles operation-related HTTP requests. Every
// mutation responds with the refreshed owning debt, operations
// included.
type OperationHandler struct {
	operationService *services.OperationService
	debtService      *services.DebtService
	hub              *services.EventsHub
	notifier         *services.PushNotifier
	userService      *services.UserService
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operationService *services.OperationService, debtService *services.DebtService, userService *services.UserService, hub *services.EventsHub, notifier *services.PushNotifier) *OperationHandler {
	return &OperationHandler{
		operationService: operationService,
		debtService:      debtService,
		userService:      userService,
		hub:              hub,
		notifier:         notifier,
	}
}

func (h *OperationHandler) notifyAcceptor(r *http.Request, op *models.Operation, event, alert string) {
	if op.StatusAcceptor == nil {
		return
	}
	acceptorID := *op.StatusAcceptor

	h.hub.NotifyOperationEvent(acceptorID, event, op)

	if alert == "" {
		return
	}
	acceptor, err := h.userService.GetByID(r.Context(), acceptorID)
	if err != nil {
		log.Error().Err(err).Str("user_id", acceptorID).Msg("Failed to load acceptor for push")
		return
	}
	h.notifier.Push(r.Context(), acceptor, alert)
}

func (h *OperationHandler) respondWithDebt(w http.ResponseWriter, r *http.Request, userID, debtID string) {
	debt, err := h.debtService.GetByID(r.Context(), userID, debtID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, debt)
}

// CreateOperationRequest represents the request body for creating an operation
type CreateOperationRequest struct {
	DebtID        string          `json:"debt_id"`
	MoneyAmount   decimal.Decimal `json:"money_amount"`
	MoneyReceiver string          `json:"money_receiver"`
	Description   string          `json:"description"`
}

// CreateOperation handles POST /api/v1/operations
func (h *OperationHandler) CreateOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req CreateOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.DebtID == "" {
		respondError(w, "debt_id is required", http.StatusBadRequest)
		return
	}

	op, err := h.operationService.Create(ctx, userID, req.DebtID, req.MoneyAmount, req.MoneyReceiver, req.Description)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("debt_id", req.DebtID).
			Msg("Failed to create operation")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("debt_id", req.DebtID).
		Str("operation_id", op.ID).
		Msg("Operation proposed")

	h.notifyAcceptor(r, op, services.EventOperationProposed, "New operation request")

	h.respondWithDebt(w, r, userID, req.DebtID)
}

// DeleteOperation handles DELETE /api/v1/operations/{operation_id}
func (h *OperationHandler) DeleteOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	opID := chi.URLParam(r, "operation_id")

	op, err := h.operationService.ProposeDeletion(ctx, userID, opID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("operation_id", opID).
			Msg("Failed to propose operation deletion")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("operation_id", opID).
		Msg("Operation deletion proposed")

	h.notifyAcceptor(r, op, services.EventDeletionProposed, "Operation deletion request")

	h.respondWithDebt(w, r, userID, op.DebtID)
}

// AcceptOperation handles POST /api/v1/operations/{operation_id}/creation/accept
func (h *OperationHandler) AcceptOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	opID := chi.URLParam(r, "operation_id")

	op, err := h.operationService.AcceptCreation(ctx, userID, opID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("operation_id", opID).
			Msg("Failed to accept operation")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("operation_id", opID).
		Msg("Operation creation accepted")

	h.hub.NotifyOperationEvent(op.CreatorID, services.EventOperationAccepted, op)

	h.respondWithDebt(w, r, userID, op.DebtID)
}

// DeclineOperation handles POST /api/v1/operations/{operation_id}/creation/decline
func (h *OperationHandler) DeclineOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	opID := chi.URLParam(r, "operation_id")

	op, err := h.operationService.DeclineCreation(ctx, userID, opID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("operation_id", opID).
			Msg("Failed to decline operation")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("operation_id", opID).
		Msg("Operation creation declined")

	h.hub.NotifyOperationEvent(op.CreatorID, services.EventOperationDeclined, op)

	h.respondWithDebt(w, r, userID, op.DebtID)
}

// AcceptOperationDeletion handles POST /api/v1/operations/{operation_id}/deletion/accept
func (h *OperationHandler) AcceptOperationDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	opID := chi.URLParam(r, "operation_id")

	op, err := h.operationService.AcceptDeletion(ctx, userID, opID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("operation_id", opID).
			Msg("Failed to accept operation deletion")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("operation_id", opID).
		Msg("Operation deleted")

	h.hub.NotifyOperationEvent(op.CreatorID, services.EventOperationDeleted, op)

	h.respondWithDebt(w, r, userID, op.DebtID)
}

// DeclineOperationDeletion handles POST /api/v1/operations/{operation_id}/deletion/decline
func (h *OperationHandler) DeclineOperationDeletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	opID := chi.URLParam(r, "operation_id")

	op, err := h.operationService.DeclineDeletion(ctx, userID, opID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Str("operation_id", opID).
			Msg("Failed to decline operation deletion")
		respondServiceError(w, err)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("operation_id", opID).
		Msg("Operation deletion declined")

	h.hub.NotifyOperationEvent(op.CreatorID, services.EventOperationDeclined, op)

	h.respondWithDebt(w, r, userID, op.DebtID)
}
