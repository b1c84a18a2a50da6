package handlers

import (
	"github.com/go-chi/chi/v5"
	mW "github.com/goodcoins/backend/internal/middleware"
	"github.com/goodcoins/backend/internal/models"
)

// API bundles the handlers mounted under /api/v1.
type API struct {
	Auth       *AuthHandler
	Accounts   *AccountHandler
	Activities *ActivityHandler
	Rewards    *RewardHandler
	Ledger     *LedgerHandler
	Vouchers   *VoucherHandler
}

// Routes mounts the versioned API on r.
func (api *API) Routes(r chi.Router) {
	// Public endpoints (no auth required)
	r.Post("/auth/register", api.Auth.Register)
	r.Post("/auth/login", api.Auth.Login)
	r.Post("/auth/child-login", api.Auth.ChildLogin)
	r.Post("/auth/logout", api.Auth.Logout)

	// Protected endpoints (auth required)
	r.Group(func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Get("/auth/me", api.Auth.Me)

		// Parent or the child itself
		r.Get("/children/{childId}", api.Accounts.GetChild)
		r.Get("/children/{childId}/balance", api.Ledger.Balance)
		r.Get("/children/{childId}/transactions", api.Ledger.Transactions)
		r.Get("/children/{childId}/redemptions", api.Ledger.Redemptions)
		r.Get("/redemptions/{redemptionId}", api.Ledger.GetRedemption)
		r.Get("/activities", api.Activities.ListActivities)
		r.Get("/activities/{activityId}", api.Activities.GetActivity)
		r.Get("/rewards", api.Rewards.ListRewards)
		r.Get("/rewards/{rewardId}", api.Rewards.GetReward)

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(models.RoleParent))

			r.Post("/children", api.Accounts.CreateChild)
			r.Get("/children", api.Accounts.ListChildren)
			r.Put("/children/{childId}", api.Accounts.UpdateChild)
			r.Post("/children/{childId}/deactivate", api.Accounts.DeactivateChild)
			r.Post("/children/{childId}/grant", api.Ledger.Grant)
			r.Post("/children/{childId}/penalty", api.Ledger.Penalty)
			r.Get("/children/{childId}/reconcile", api.Ledger.Reconcile)

			r.Post("/activities", api.Activities.AssignActivity)
			r.Delete("/activities/{activityId}", api.Activities.DeleteActivity)

			r.Post("/rewards", api.Rewards.CreateReward)
			r.Post("/rewards/{rewardId}/deactivate", api.Rewards.DeactivateReward)

			r.Post("/vouchers/claim", api.Vouchers.ClaimVoucher)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(models.RoleChild))

			r.Post("/activities/{activityId}/complete", api.Ledger.CompleteActivity)
			r.Post("/rewards/{rewardId}/redeem", api.Ledger.Redeem)
			r.Get("/redemptions/{redemptionId}/voucher", api.Vouchers.IssueVoucher)
		})
	})
}
