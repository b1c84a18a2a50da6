package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	mW "github.com/goodcoins/backend/internal/middleware"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
)

// Authenticator signs parents and children in and out.
type Authenticator interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.AuthResponse, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
	ChildLogin(ctx context.Context, req services.ChildLoginRequest) (*services.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, actor models.Actor) (*services.AuthUser, error)
}

type AuthHandler struct {
	service Authenticator
}

func NewAuthHandler(service Authenticator) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register handles parent registration
// @Summary Register a new parent
// @Description Register a parent with email, password, and display name
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.RegisterRequest true "Registration request"
// @Success 201 {object} services.AuthResponse "Registration successful"
// @Failure 400 {object} services.ErrorResponse "Invalid request"
// @Failure 409 {object} services.ErrorResponse "Email already exists"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req services.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Login handles parent authentication
// @Summary Login parent
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.LoginRequest true "Login request"
// @Success 200 {object} services.AuthResponse "Login successful"
// @Failure 401 {object} services.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChildLogin handles child authentication
// @Summary Login child
// @Description Authenticate a child with nickname and PIN
// @Tags auth
// @Accept json
// @Produce json
// @Param request body services.ChildLoginRequest true "Child login request"
// @Success 200 {object} services.AuthResponse "Login successful"
// @Failure 401 {object} services.ErrorResponse "Invalid credentials"
// @Router /auth/child-login [post]
func (h *AuthHandler) ChildLogin(w http.ResponseWriter, r *http.Request) {
	var req services.ChildLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.ChildLogin(r.Context(), req)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == r.Header.Get("Authorization") {
		token = ""
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		log.Printf("[AUTH] Logout could not revoke token: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

// Me returns the authenticated user
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} services.AuthUser
// @Failure 401 {object} services.ErrorResponse "Unauthorized"
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, ok := mW.ActorFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	user, err := h.service.Me(r.Context(), actor)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
