package models

import (
	"time"
)

// Account is the lockable balance row of a child account.
type Account struct {
	ID        string    `json:"id" db:"id"`
	ParentID  string    `json:"parent_id" db:"parent_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	Active    bool      `json:"active" db:"active"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Reconciliation compares a child's stored balance with the sum of its ledger.
type Reconciliation struct {
	ChildID    string `json:"childId"`
	Balance    int64  `json:"balance"`
	LedgerSum  int64  `json:"ledgerSum"`
	Entries    int    `json:"entries"`
	Consistent bool   `json:"consistent"`
}
