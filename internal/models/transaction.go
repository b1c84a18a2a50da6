package models

import (
	"time"
)

// TransactionKind is the business reason for a coin movement.
type TransactionKind string

const (
	KindEarned  TransactionKind = "earned"
	KindSpent   TransactionKind = "spent"
	KindPenalty TransactionKind = "penalty"
	KindGiven   TransactionKind = "given"
)

// Sign returns +1 for kinds that credit a child and -1 for kinds that debit.
func (k TransactionKind) Sign() int64 {
	switch k {
	case KindSpent, KindPenalty:
		return -1
	default:
		return 1
	}
}

func (k TransactionKind) Valid() bool {
	switch k {
	case KindEarned, KindSpent, KindPenalty, KindGiven:
		return true
	}
	return false
}

// Transaction is one append-only ledger row. Amount is signed.
type Transaction struct {
	ID           string          `json:"id" db:"id"`
	ChildID      string          `json:"childId" db:"child_id"`
	Amount       int64           `json:"amount" db:"amount"`
	Kind         TransactionKind `json:"kind" db:"kind"`
	Description  string          `json:"description" db:"description"`
	CreatedBy    string          `json:"createdBy" db:"created_by"`
	ActivityID   *string         `json:"activityId,omitempty" db:"activity_id"`
	RedemptionID *string         `json:"redemptionId,omitempty" db:"redemption_id"`
	BalanceAfter int64           `json:"balanceAfter" db:"balance_after"`
	CreatedAt    time.Time       `json:"createdAt" db:"created_at"`
}

// TransactionFilter narrows a ledger listing.
type TransactionFilter struct {
	Kind  TransactionKind
	Limit int
}
