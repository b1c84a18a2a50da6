package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
)

// Vouchers issues and claims redemption QR codes.
type Vouchers interface {
	IssueVoucher(ctx context.Context, actor models.Actor, redemptionID string) (*services.Voucher, error)
	ClaimVoucher(ctx context.Context, actor models.Actor, code string) (*models.RedemptionClaim, error)
}

type VoucherHandler struct {
	service   Vouchers
	validator *services.ValidationHelper
}

func NewVoucherHandler(service Vouchers) *VoucherHandler {
	return &VoucherHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// IssueVoucher generates a QR voucher for a redemption
// @Summary Generate voucher
// @Description Generate a one-time QR code the child shows to collect a reward
// @Tags Vouchers
// @Produce json
// @Security BearerAuth
// @Param redemptionId path string true "Redemption ID"
// @Success 200 {object} services.Voucher
// @Failure 409 {object} services.ErrorResponse "Already claimed"
// @Router /redemptions/{redemptionId}/voucher [get]
func (h *VoucherHandler) IssueVoucher(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	voucher, err := h.service.IssueVoucher(r.Context(), actor, chi.URLParam(r, "redemptionId"))
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voucher)
}

// ClaimVoucher processes a scanned voucher
// @Summary Claim voucher
// @Description Mark the scanned redemption as handed over
// @Tags Vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Scanned voucher"
// @Success 200 {object} models.RedemptionClaim
// @Failure 404 {object} services.ErrorResponse "Invalid or expired voucher"
// @Router /vouchers/claim [post]
func (h *VoucherHandler) ClaimVoucher(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	claim, err := h.service.ClaimVoucher(r.Context(), actor, req.Code)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}
