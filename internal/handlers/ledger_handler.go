package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
)

// Ledger is the coin workflow as the HTTP layer sees it.
type Ledger interface {
	ApplyActivityCompletion(ctx context.Context, actor models.Actor, activityID string) (*services.CompletionResult, error)
	ApplyPenalty(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error)
	GrantCoins(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error)
	RedeemReward(ctx context.Context, actor models.Actor, childID, rewardID string) (*services.RedemptionResult, error)
	Balance(ctx context.Context, actor models.Actor, childID string) (int64, error)
	ListTransactions(ctx context.Context, actor models.Actor, childID string, filter models.TransactionFilter) ([]models.Transaction, error)
	ListRedemptions(ctx context.Context, actor models.Actor, childID string) ([]models.Redemption, error)
	GetRedemption(ctx context.Context, actor models.Actor, redemptionID string) (*models.Redemption, error)
	Reconcile(ctx context.Context, actor models.Actor, childID string) (*models.Reconciliation, error)
}

type LedgerHandler struct {
	service Ledger
}

func NewLedgerHandler(service Ledger) *LedgerHandler {
	return &LedgerHandler{service: service}
}

// AdjustmentRequest grants or deducts coins
// @Description Coin adjustment request structure
type AdjustmentRequest struct {
	Amount int64  `json:"amount" example:"10"`                    // Positive number of coins
	Reason string `json:"reason" example:"Helped with the dishes"` // Shown in the child's history
}

// idempotent carries the Idempotency-Key header into the workflow call.
func idempotent(r *http.Request) context.Context {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return services.WithIdempotencyKey(r.Context(), key)
	}
	return r.Context()
}

// CompleteActivity credits an activity's reward to the calling child
// @Summary Complete activity
// @Description Mark an assigned activity completed and earn its coins
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param activityId path string true "Activity ID"
// @Param Idempotency-Key header string false "Client request key"
// @Success 200 {object} services.CompletionResult
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse "Already completed"
// @Router /activities/{activityId}/complete [post]
func (h *LedgerHandler) CompleteActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	result, err := h.service.ApplyActivityCompletion(idempotent(r), actor, chi.URLParam(r, "activityId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Grant adds bonus coins to a child
// @Summary Grant coins
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Param request body AdjustmentRequest true "Grant request"
// @Success 201 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Router /children/{childId}/grant [post]
func (h *LedgerHandler) Grant(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.service.GrantCoins)
}

// Penalty deducts coins from a child
// @Summary Apply penalty
// @Description Deduct coins. Penalties above the current balance are rejected.
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Param request body AdjustmentRequest true "Penalty request"
// @Success 201 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse "Insufficient balance"
// @Router /children/{childId}/penalty [post]
func (h *LedgerHandler) Penalty(w http.ResponseWriter, r *http.Request) {
	h.adjust(w, r, h.service.ApplyPenalty)
}

type adjustFunc func(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error)

func (h *LedgerHandler) adjust(w http.ResponseWriter, r *http.Request, apply adjustFunc) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req AdjustmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := apply(idempotent(r), actor, chi.URLParam(r, "childId"), req.Amount, req.Reason)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// Redeem buys a reward with the calling child's coins
// @Summary Redeem reward
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param rewardId path string true "Reward ID"
// @Param Idempotency-Key header string false "Client request key"
// @Success 201 {object} services.RedemptionResult
// @Failure 409 {object} services.ErrorResponse "Insufficient balance"
// @Router /rewards/{rewardId}/redeem [post]
func (h *LedgerHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	result, err := h.service.RedeemReward(idempotent(r), actor, actor.ID, chi.URLParam(r, "rewardId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// Balance returns a child's current balance
// @Summary Get balance
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Success 200 {object} object{childId=string,balance=int64}
// @Router /children/{childId}/balance [get]
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	childID := chi.URLParam(r, "childId")
	balance, err := h.service.Balance(r.Context(), actor, childID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"childId": childID, "balance": balance})
}

// Transactions lists a child's ledger, newest first
// @Summary List transactions
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Param kind query string false "earned, spent, penalty or given"
// @Param limit query int false "Page size (max 200)"
// @Success 200 {array} models.Transaction
// @Router /children/{childId}/transactions [get]
func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		services.SendErrorResponse(w, "limit must be a number", http.StatusBadRequest, nil)
		return
	}

	filter := models.TransactionFilter{
		Kind:  models.TransactionKind(r.URL.Query().Get("kind")),
		Limit: int(limit),
	}
	entries, err := h.service.ListTransactions(r.Context(), actor, chi.URLParam(r, "childId"), filter)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Redemptions lists a child's redemptions
// @Summary List redemptions
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Success 200 {array} models.Redemption
// @Router /children/{childId}/redemptions [get]
func (h *LedgerHandler) Redemptions(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	redemptions, err := h.service.ListRedemptions(r.Context(), actor, chi.URLParam(r, "childId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptions)
}

// GetRedemption returns one redemption
// @Summary Get redemption
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param redemptionId path string true "Redemption ID"
// @Success 200 {object} models.Redemption
// @Router /redemptions/{redemptionId} [get]
func (h *LedgerHandler) GetRedemption(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	redemption, err := h.service.GetRedemption(r.Context(), actor, chi.URLParam(r, "redemptionId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

// Reconcile compares a child's balance with its ledger
// @Summary Reconcile balance
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Success 200 {object} models.Reconciliation
// @Router /children/{childId}/reconcile [get]
func (h *LedgerHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Reconcile(r.Context(), actor, chi.URLParam(r, "childId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
