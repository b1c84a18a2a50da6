package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
)

// Accounts manages child profiles.
type Accounts interface {
	CreateChild(ctx context.Context, actor models.Actor, req services.CreateChildRequest) (*models.Child, error)
	GetChild(ctx context.Context, actor models.Actor, childID string) (*models.Child, error)
	ListChildren(ctx context.Context, actor models.Actor, includeInactive bool) ([]models.Child, error)
	UpdateChild(ctx context.Context, actor models.Actor, childID string, req services.UpdateChildRequest) (*models.Child, error)
	DeactivateChild(ctx context.Context, actor models.Actor, childID string) error
}

type AccountHandler struct {
	service Accounts
}

func NewAccountHandler(service Accounts) *AccountHandler {
	return &AccountHandler{service: service}
}

// CreateChild registers a child under the calling parent
// @Summary Create child
// @Tags Children
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateChildRequest true "Child profile"
// @Success 201 {object} models.Child
// @Failure 409 {object} services.ErrorResponse "Nickname taken"
// @Router /children [post]
func (h *AccountHandler) CreateChild(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.CreateChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	child, err := h.service.CreateChild(r.Context(), actor, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, child)
}

// ListChildren lists the calling parent's children
// @Summary List children
// @Tags Children
// @Produce json
// @Security BearerAuth
// @Param includeInactive query bool false "Include deactivated children"
// @Success 200 {array} models.Child
// @Router /children [get]
func (h *AccountHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	children, err := h.service.ListChildren(r.Context(), actor, r.URL.Query().Get("includeInactive") == "true")
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, children)
}

// GetChild returns one child profile
// @Summary Get child
// @Tags Children
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Success 200 {object} models.Child
// @Router /children/{childId} [get]
func (h *AccountHandler) GetChild(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	child, err := h.service.GetChild(r.Context(), actor, chi.URLParam(r, "childId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// UpdateChild changes a child's profile
// @Summary Update child
// @Tags Children
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Param request body services.UpdateChildRequest true "Changed fields"
// @Success 200 {object} models.Child
// @Router /children/{childId} [put]
func (h *AccountHandler) UpdateChild(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.UpdateChildRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	child, err := h.service.UpdateChild(r.Context(), actor, chi.URLParam(r, "childId"), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, child)
}

// DeactivateChild freezes a child's account
// @Summary Deactivate child
// @Tags Children
// @Security BearerAuth
// @Param childId path string true "Child ID"
// @Success 204
// @Router /children/{childId}/deactivate [post]
func (h *AccountHandler) DeactivateChild(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.DeactivateChild(r.Context(), actor, chi.URLParam(r, "childId")); err != nil {
		services.SendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
