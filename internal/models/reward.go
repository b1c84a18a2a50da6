package models

import "time"

// Reward is a catalog item children can buy with GoodCoins.
// Prices are display-only and expressed in cents.
type Reward struct {
	ID              string    `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Description     string    `json:"description" db:"description"`
	ImageURL        string    `json:"imageUrl" db:"image_url"`
	CoinCost        int64     `json:"coinCost" db:"coin_cost"`
	OriginalPrice   *int64    `json:"originalPrice,omitempty" db:"original_price"`
	DiscountedPrice *int64    `json:"discountedPrice,omitempty" db:"discounted_price"`
	CreatedBy       string    `json:"createdBy" db:"created_by"`
	Active          bool      `json:"active" db:"active"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

type RewardSort string

const (
	SortByName     RewardSort = "name"
	SortByCoinCost RewardSort = "coin_cost"
)

// Redemption records a reward bought by a child. It is never mutated.
type Redemption struct {
	ID            string    `json:"id" db:"id"`
	ChildID       string    `json:"childId" db:"child_id"`
	RewardID      string    `json:"rewardId" db:"reward_id"`
	RewardName    string    `json:"rewardName,omitempty"`
	CoinCost      int64     `json:"coinCost" db:"coin_cost"`
	TransactionID string    `json:"transactionId" db:"transaction_id"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	Claimed       bool      `json:"claimed"`
}

// RedemptionClaim records the parent handing over a redeemed reward.
type RedemptionClaim struct {
	RedemptionID string    `json:"redemptionId" db:"redemption_id"`
	ClaimedBy    string    `json:"claimedBy" db:"claimed_by"`
	ClaimedAt    time.Time `json:"claimedAt" db:"claimed_at"`
}
