package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
)

// Activities manages activity assignments.
type Activities interface {
	AssignActivity(ctx context.Context, actor models.Actor, req services.AssignActivityRequest) ([]models.Activity, error)
	GetActivity(ctx context.Context, actor models.Actor, activityID string) (*models.Activity, error)
	ListActivities(ctx context.Context, actor models.Actor, filter models.ActivityFilter) ([]models.Activity, error)
	DeleteActivity(ctx context.Context, actor models.Actor, activityID string) error
}

type ActivityHandler struct {
	service Activities
}

func NewActivityHandler(service Activities) *ActivityHandler {
	return &ActivityHandler{service: service}
}

// AssignActivity creates assignments for one or more children
// @Summary Assign activity
// @Tags Activities
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.AssignActivityRequest true "Activity"
// @Success 201 {array} models.Activity
// @Failure 400 {object} services.ErrorResponse
// @Router /activities [post]
func (h *ActivityHandler) AssignActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req services.AssignActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	activities, err := h.service.AssignActivity(r.Context(), actor, req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, activities)
}

// ListActivities lists activities visible to the caller
// @Summary List activities
// @Tags Activities
// @Produce json
// @Security BearerAuth
// @Param childId query string false "Only this child"
// @Param area query string false "Development area"
// @Param completed query bool false "Completion state"
// @Param sort query string false "title, coin_reward, area or due_date"
// @Success 200 {array} models.Activity
// @Router /activities [get]
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := models.ActivityFilter{
		ChildID: q.Get("childId"),
		Area:    models.DevelopmentArea(q.Get("area")),
		Sort:    models.ActivitySort(q.Get("sort")),
	}
	if raw := q.Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			services.SendErrorResponse(w, "completed must be true or false", http.StatusBadRequest, nil)
			return
		}
		filter.Completed = &completed
	}

	activities, err := h.service.ListActivities(r.Context(), actor, filter)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}

// GetActivity returns one activity
// @Summary Get activity
// @Tags Activities
// @Produce json
// @Security BearerAuth
// @Param activityId path string true "Activity ID"
// @Success 200 {object} models.Activity
// @Router /activities/{activityId} [get]
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	activity, err := h.service.GetActivity(r.Context(), actor, chi.URLParam(r, "activityId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

// DeleteActivity removes an open assignment
// @Summary Delete activity
// @Tags Activities
// @Security BearerAuth
// @Param activityId path string true "Activity ID"
// @Success 204
// @Failure 409 {object} services.ErrorResponse "Already completed"
// @Router /activities/{activityId} [delete]
func (h *ActivityHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteActivity(r.Context(), actor, chi.URLParam(r, "activityId")); err != nil {
		services.SendServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
