package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/goodcoins/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const childColumns = "id, parent_id, display_name, nickname, balance, active, created_at, updated_at"

// CreateChildRequest registers a child under the calling parent.
type CreateChildRequest struct {
	DisplayName string `json:"displayName" validate:"required,min=2,max=60" example:"Sam"`
	Nickname    string `json:"nickname" validate:"required,min=3,max=30,alphanum" example:"sammy"`
	PIN         string `json:"pin" validate:"required,numeric,min=4,max=8" example:"1234"`
}

// UpdateChildRequest changes profile fields. Empty fields are left alone.
type UpdateChildRequest struct {
	DisplayName string `json:"displayName" validate:"omitempty,min=2,max=60"`
	Nickname    string `json:"nickname" validate:"omitempty,min=3,max=30,alphanum"`
	PIN         string `json:"pin" validate:"omitempty,numeric,min=4,max=8"`
}

// AccountService manages child profiles. It never touches balances.
type AccountService struct {
	db        *sql.DB
	validator *ValidationHelper
	now       func() time.Time
}

func NewAccountService(db *sql.DB) *AccountService {
	return &AccountService{
		db:        db,
		validator: NewValidationHelper(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountService) CreateChild(ctx context.Context, actor models.Actor, req CreateChildRequest) (*models.Child, error) {
	if !actor.IsParent() {
		return nil, fmt.Errorf("parent role required: %w", ErrForbidden)
	}

	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Nickname = strings.ToLower(strings.TrimSpace(req.Nickname))
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	pinHash, err := hashPassword(req.PIN)
	if err != nil {
		return nil, err
	}

	now := s.now()
	child := &models.Child{
		ID:          uuid.NewString(),
		ParentID:    actor.ID,
		DisplayName: req.DisplayName,
		Nickname:    req.Nickname,
		Balance:     0,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO children (id, parent_id, display_name, nickname, pin_hash, balance, version, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, 1, TRUE, $6, $6)`,
		child.ID, child.ParentID, child.DisplayName, child.Nickname, pinHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nickname %q is taken: %w", req.Nickname, ErrConflict)
		}
		log.Printf("[ACCOUNT] Child creation failed for parent %s: %v", actor.ID, err)
		return nil, err
	}

	log.Printf("[ACCOUNT] Child %s created by parent %s", child.ID, actor.ID)
	return child, nil
}

func (s *AccountService) GetChild(ctx context.Context, actor models.Actor, childID string) (*models.Child, error) {
	if err := parseID(childID, "child"); err != nil {
		return nil, err
	}

	child, err := scanChild(s.db.QueryRowContext(ctx, "SELECT "+childColumns+" FROM children WHERE id = $1", childID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("child %s: %w", childID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !canView(actor, child.ID, child.ParentID) {
		return nil, fmt.Errorf("child %s: %w", childID, ErrForbidden)
	}
	return child, nil
}

// ListChildren returns the parent's children ordered by name.
func (s *AccountService) ListChildren(ctx context.Context, actor models.Actor, includeInactive bool) ([]models.Child, error) {
	if !actor.IsParent() {
		return nil, fmt.Errorf("parent role required: %w", ErrForbidden)
	}

	query := "SELECT " + childColumns + " FROM children WHERE parent_id = $1"
	if !includeInactive {
		query += " AND active = TRUE"
	}
	query += " ORDER BY display_name ASC"

	rows, err := s.db.QueryContext(ctx, query, actor.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	children := []models.Child{}
	for rows.Next() {
		child, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, *child)
	}
	return children, rows.Err()
}

func (s *AccountService) UpdateChild(ctx context.Context, actor models.Actor, childID string, req UpdateChildRequest) (*models.Child, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Nickname = strings.ToLower(strings.TrimSpace(req.Nickname))
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := authorizeOwner(ctx, s.db, actor, childID); err != nil {
		return nil, err
	}

	var sets []string
	var args []any
	if req.DisplayName != "" {
		args = append(args, req.DisplayName)
		sets = append(sets, fmt.Sprintf("display_name = $%d", len(args)))
	}
	if req.Nickname != "" {
		args = append(args, req.Nickname)
		sets = append(sets, fmt.Sprintf("nickname = $%d", len(args)))
	}
	if req.PIN != "" {
		pinHash, err := hashPassword(req.PIN)
		if err != nil {
			return nil, err
		}
		args = append(args, pinHash)
		sets = append(sets, fmt.Sprintf("pin_hash = $%d", len(args)))
	}
	if len(sets) == 0 {
		return s.GetChild(ctx, actor, childID)
	}

	args = append(args, s.now())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, childID)

	query := "UPDATE children SET " + strings.Join(sets, ", ") + fmt.Sprintf(" WHERE id = $%d", len(args))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("nickname %q is taken: %w", req.Nickname, ErrConflict)
		}
		return nil, err
	}
	return s.GetChild(ctx, actor, childID)
}

// DeactivateChild stops all further balance changes. History is kept.
func (s *AccountService) DeactivateChild(ctx context.Context, actor models.Actor, childID string) error {
	if err := authorizeOwner(ctx, s.db, actor, childID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE children
		SET active = FALSE, version = version + 1, updated_at = $1
		WHERE id = $2`, s.now(), childID)
	if err != nil {
		return err
	}

	log.Printf("[ACCOUNT] Child %s deactivated by parent %s", childID, actor.ID)
	return nil
}

func scanChild(row rowScanner) (*models.Child, error) {
	var c models.Child
	err := row.Scan(&c.ID, &c.ParentID, &c.DisplayName, &c.Nickname, &c.Balance, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
