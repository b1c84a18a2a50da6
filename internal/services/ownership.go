package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goodcoins/backend/internal/models"
	"github.com/google/uuid"
)

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// parseID rejects identifiers that cannot exist before they reach Postgres,
// which would otherwise fail the uuid cast.
func parseID(id, what string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
	}
	return nil
}

// loadChildOwner returns the owning parent and active flag of a child.
func loadChildOwner(ctx context.Context, q queryRower, childID string) (string, bool, error) {
	if err := parseID(childID, "child"); err != nil {
		return "", false, err
	}

	var parentID string
	var active bool
	err := q.QueryRowContext(ctx, `SELECT parent_id, active FROM children WHERE id = $1`, childID).
		Scan(&parentID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("child %s: %w", childID, ErrNotFound)
	}
	if err != nil {
		return "", false, err
	}
	return parentID, active, nil
}

// canView: a parent sees its own children, a child sees only itself.
func canView(actor models.Actor, childID, parentID string) bool {
	switch actor.Role {
	case models.RoleParent:
		return actor.ID == parentID
	case models.RoleChild:
		return actor.ID == childID
	}
	return false
}

func authorizeView(ctx context.Context, q queryRower, actor models.Actor, childID string) error {
	parentID, _, err := loadChildOwner(ctx, q, childID)
	if err != nil {
		return err
	}
	if !canView(actor, childID, parentID) {
		return fmt.Errorf("child %s: %w", childID, ErrForbidden)
	}
	return nil
}

func authorizeOwner(ctx context.Context, q queryRower, actor models.Actor, childID string) error {
	if !actor.IsParent() {
		return fmt.Errorf("parent role required: %w", ErrForbidden)
	}
	parentID, _, err := loadChildOwner(ctx, q, childID)
	if err != nil {
		return err
	}
	if parentID != actor.ID {
		return fmt.Errorf("child %s: %w", childID, ErrForbidden)
	}
	return nil
}
