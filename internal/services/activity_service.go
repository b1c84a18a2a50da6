package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/goodcoins/backend/internal/config"
	"github.com/goodcoins/backend/internal/models"
	"github.com/google/uuid"
)

const (
	activityColumns         = "id, parent_id, child_id, title, description, area, coin_reward, estimated_minutes, due_date, completed, completed_at, created_at"
	defaultEstimatedMinutes = 15
	dateLayout              = "2006-01-02"
)

var activityOrder = map[models.ActivitySort]string{
	models.SortByTitle:   "title ASC",
	models.SortByReward:  "coin_reward DESC, title ASC",
	models.SortByArea:    "area ASC, title ASC",
	models.SortByDueDate: "due_date ASC NULLS LAST, title ASC",
}

// AssignActivityRequest assigns one activity to every listed child on
// every listed date.
type AssignActivityRequest struct {
	Title            string   `json:"title" validate:"required,min=3,max=120" example:"Read for 20 minutes"`
	Description      string   `json:"description" validate:"required,min=10,max=2000" example:"Pick any book and read quietly"`
	Area             string   `json:"area" validate:"required,devarea" example:"Learning"`
	CoinReward       int64    `json:"coinReward" validate:"required,gt=0" example:"15"`
	EstimatedMinutes int      `json:"estimatedMinutes" validate:"omitempty,min=5,max=240" example:"20"`
	ChildIDs         []string `json:"childIds" validate:"required,min=1,dive,uuid"`
	DueDates         []string `json:"dueDates" validate:"required,min=1,dive,datetime=2006-01-02"`
}

type ActivityService struct {
	db        *sql.DB
	validator *ValidationHelper
	config    *config.ActivityConfig
	now       func() time.Time
}

func NewActivityService(db *sql.DB) *ActivityService {
	return &ActivityService{
		db:        db,
		validator: NewValidationHelper(),
		config:    config.LoadActivityConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AssignActivity creates one assignment per (child, due date) pair. All rows
// are written in a single transaction.
func (s *ActivityService) AssignActivity(ctx context.Context, actor models.Actor, req AssignActivityRequest) ([]models.Activity, error) {
	if !actor.IsParent() {
		return nil, fmt.Errorf("parent role required: %w", ErrForbidden)
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.CoinReward > s.config.MaxReward {
		return nil, fmt.Errorf("coin reward %d exceeds limit %d: %w", req.CoinReward, s.config.MaxReward, ErrInvalidAmount)
	}
	if req.EstimatedMinutes == 0 {
		req.EstimatedMinutes = defaultEstimatedMinutes
	}

	dueDates, err := s.futureDates(req.DueDates)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.now()
	activities := []models.Activity{}
	for _, childID := range uniqueStrings(req.ChildIDs) {
		parentID, active, err := loadChildOwner(ctx, tx, childID)
		if err != nil {
			return nil, err
		}
		if parentID != actor.ID {
			return nil, fmt.Errorf("child %s: %w", childID, ErrForbidden)
		}
		if !active {
			return nil, fmt.Errorf("child %s is deactivated: %w", childID, ErrForbidden)
		}

		for _, due := range dueDates {
			dueDate := due
			activity := models.Activity{
				ID:               uuid.NewString(),
				ParentID:         actor.ID,
				ChildID:          childID,
				Title:            req.Title,
				Description:      req.Description,
				Area:             models.DevelopmentArea(req.Area),
				CoinReward:       req.CoinReward,
				EstimatedMinutes: req.EstimatedMinutes,
				DueDate:          &dueDate,
				CreatedAt:        now,
			}

			_, err := tx.ExecContext(ctx, `
				INSERT INTO activities (id, parent_id, child_id, title, description, area, coin_reward, estimated_minutes, due_date, completed, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10)`,
				activity.ID, activity.ParentID, activity.ChildID, activity.Title, activity.Description,
				string(activity.Area), activity.CoinReward, activity.EstimatedMinutes, dueDate, now)
			if err != nil {
				log.Printf("[ACTIVITY] Failed to insert assignment for child %s: %v", childID, err)
				return nil, err
			}
			activities = append(activities, activity)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[ACTIVITY] Parent %s assigned %q as %d assignment(s)", actor.ID, req.Title, len(activities))
	return activities, nil
}

// GetActivity returns an activity visible to the actor.
func (s *ActivityService) GetActivity(ctx context.Context, actor models.Actor, activityID string) (*models.Activity, error) {
	if err := parseID(activityID, "activity"); err != nil {
		return nil, err
	}

	activity, err := getActivity(ctx, s.db, activityID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, activity.ChildID, activity.ParentID) {
		return nil, fmt.Errorf("activity %s: %w", activityID, ErrForbidden)
	}
	return activity, nil
}

// ListActivities returns a parent's assignments or a child's own ones.
func (s *ActivityService) ListActivities(ctx context.Context, actor models.Actor, filter models.ActivityFilter) ([]models.Activity, error) {
	var conditions []string
	var args []any

	switch actor.Role {
	case models.RoleParent:
		args = append(args, actor.ID)
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", len(args)))
		if filter.ChildID != "" {
			if err := parseID(filter.ChildID, "child"); err != nil {
				return nil, err
			}
			args = append(args, filter.ChildID)
			conditions = append(conditions, fmt.Sprintf("child_id = $%d", len(args)))
		}
	case models.RoleChild:
		if filter.ChildID != "" && filter.ChildID != actor.ID {
			return nil, fmt.Errorf("child %s: %w", filter.ChildID, ErrForbidden)
		}
		args = append(args, actor.ID)
		conditions = append(conditions, fmt.Sprintf("child_id = $%d", len(args)))
	default:
		return nil, ErrForbidden
	}

	if filter.Area != "" {
		if !filter.Area.Valid() {
			return nil, fmt.Errorf("unknown development area %q: %w", filter.Area, ErrInvalidInput)
		}
		args = append(args, string(filter.Area))
		conditions = append(conditions, fmt.Sprintf("area = $%d", len(args)))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		conditions = append(conditions, fmt.Sprintf("completed = $%d", len(args)))
	}

	order := "created_at DESC"
	if filter.Sort != "" {
		o, ok := activityOrder[filter.Sort]
		if !ok {
			return nil, fmt.Errorf("unknown sort %q: %w", filter.Sort, ErrInvalidInput)
		}
		order = o
	}

	query := "SELECT " + activityColumns + " FROM activities WHERE " + strings.Join(conditions, " AND ") + " ORDER BY " + order
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("[ACTIVITY] Failed to list activities for %s: %v", actor.ID, err)
		return nil, err
	}
	defer rows.Close()

	activities := []models.Activity{}
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, *activity)
	}
	return activities, rows.Err()
}

// DeleteActivity removes an assignment that has not been completed yet.
// Completed assignments are referenced by the ledger and stay.
func (s *ActivityService) DeleteActivity(ctx context.Context, actor models.Actor, activityID string) error {
	if !actor.IsParent() {
		return fmt.Errorf("parent role required: %w", ErrForbidden)
	}
	if err := parseID(activityID, "activity"); err != nil {
		return err
	}

	activity, err := getActivity(ctx, s.db, activityID)
	if err != nil {
		return err
	}
	if activity.ParentID != actor.ID {
		return fmt.Errorf("activity %s: %w", activityID, ErrForbidden)
	}
	if activity.Completed {
		return fmt.Errorf("activity %s: %w", activityID, ErrAlreadyCompleted)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1 AND parent_id = $2 AND completed = FALSE`, activityID, actor.ID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("activity %s: %w", activityID, ErrAlreadyCompleted)
	}
	return nil
}

// futureDates parses and de-duplicates dates, rejecting today and earlier.
func (s *ActivityService) futureDates(values []string) ([]time.Time, error) {
	today := s.now().Truncate(24 * time.Hour)
	seen := map[string]bool{}
	dates := []time.Time{}
	for _, v := range values {
		d, err := time.Parse(dateLayout, v)
		if err != nil {
			return nil, fmt.Errorf("due date %q: %w", v, ErrInvalidInput)
		}
		if !d.After(today) {
			return nil, fmt.Errorf("due date %s is not in the future: %w", v, ErrInvalidInput)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		dates = append(dates, d)
	}
	return dates, nil
}

func getActivity(ctx context.Context, q queryRower, activityID string) (*models.Activity, error) {
	row := q.QueryRowContext(ctx, "SELECT "+activityColumns+" FROM activities WHERE id = $1", activityID)
	activity, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}
	return activity, err
}

func scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var area string
	var dueDate, completedAt sql.NullTime
	err := row.Scan(&a.ID, &a.ParentID, &a.ChildID, &a.Title, &a.Description, &area, &a.CoinReward,
		&a.EstimatedMinutes, &dueDate, &a.Completed, &completedAt, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Area = models.DevelopmentArea(area)
	if dueDate.Valid {
		a.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	return &a, nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
