package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
)

// Catalog is the reward catalog.
type Catalog interface {
	CreateReward(ctx context.Context, actor models.Actor, req services.CreateRewardRequest) (*models.Reward, error)
	GetReward(ctx context.Context, actor models.Actor, rewardID string) (*models.Reward, error)
	ListRewards(ctx context.Context, actor models.Actor, sortBy models.RewardSort, maxCost int64) ([]models.Reward, error)
	DeactivateReward(ctx context.Context, actor models.Actor, rewardID string) error
}

type RewardHandler struct {
	service Catalog
}

func NewRewardHandler(service Catalog) *RewardHandler {
	return &RewardHandler{service: service}
}

// CreateReward adds a reward to the catalog
// @Summary Create reward
// @Tags Rewards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateRewardRequest true "Reward"
// @Success 201 {object} models.Reward
// @Router /rewards [post]
func (h *RewardHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.CreateRewardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reward, err := h.service.CreateReward(r.Context(), actor, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reward)
}

// ListRewards lists active rewards
// @Summary List rewards
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param sort query string false "name or coin_cost"
// @Param maxCost query int false "Only rewards costing at most this"
// @Success 200 {array} models.Reward
// @Router /rewards [get]
func (h *RewardHandler) ListRewards(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	maxCost, err := queryInt(r, "maxCost")
	if err != nil {
		services.SendErrorResponse(w, "maxCost must be a number", http.StatusBadRequest, nil)
		return
	}

	rewards, err := h.service.ListRewards(r.Context(), actor, models.RewardSort(r.URL.Query().Get("sort")), maxCost)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

// GetReward returns one reward
// @Summary Get reward
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param rewardId path string true "Reward ID"
// @Success 200 {object} models.Reward
// @Router /rewards/{rewardId} [get]
func (h *RewardHandler) GetReward(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	reward, err := h.service.GetReward(r.Context(), actor, chi.URLParam(r, "rewardId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// DeactivateReward hides a reward from the catalog
// @Summary Deactivate reward
// @Tags Rewards
// @Security BearerAuth
// @Param rewardId path string true "Reward ID"
// @Success 204
// @Router /rewards/{rewardId}/deactivate [post]
func (h *RewardHandler) DeactivateReward(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.DeactivateReward(r.Context(), actor, chi.URLParam(r, "rewardId")); err != nil {
		services.SendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
