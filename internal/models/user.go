package models

import "time"

// Role identifies which side of a household an authenticated caller is on.
type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsParent() bool { return a.Role == RoleParent }

func (a Actor) IsChild() bool { return a.Role == RoleChild }

// Parent owns and administers child accounts
type Parent struct {
	ID          string    `json:"id" db:"id" example:"7d4f6a52-8c1e-4d0b-9b1a-2f3c4d5e6f70"`
	Email       string    `json:"email" db:"email" example:"parent@example.com"`
	DisplayName string    `json:"displayName" db:"display_name" example:"Jane Doe"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Child is a child profile together with its current GoodCoin balance.
type Child struct {
	ID          string    `json:"id" db:"id"`
	ParentID    string    `json:"parentId" db:"parent_id"`
	DisplayName string    `json:"displayName" db:"display_name" example:"Sam"`
	Nickname    string    `json:"nickname" db:"nickname" example:"sammy"`
	Balance     int64     `json:"balance" db:"balance"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
