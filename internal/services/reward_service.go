package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goodcoins/backend/internal/config"
	"github.com/goodcoins/backend/internal/metrics"
	"github.com/goodcoins/backend/internal/models"
	"github.com/google/uuid"
)

const (
	rewardColumns   = "id, name, description, image_url, coin_cost, original_price, discounted_price, created_by, active, created_at"
	catalogCacheKey = "catalog:rewards"
)

// CreateRewardRequest adds an item to the catalog. Prices are in cents and
// only displayed.
type CreateRewardRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=80" example:"Movie night"`
	Description     string `json:"description" validate:"max=500"`
	ImageURL        string `json:"imageUrl" validate:"omitempty,url"`
	CoinCost        int64  `json:"coinCost" validate:"required,gt=0,max=100000" example:"50"`
	OriginalPrice   *int64 `json:"originalPrice" validate:"omitempty,gte=0"`
	DiscountedPrice *int64 `json:"discountedPrice" validate:"omitempty,gte=0"`
}

type RewardService struct {
	db        *sql.DB
	redis     *redis.Client
	validator *ValidationHelper
	config    *config.CatalogConfig
	now       func() time.Time
}

func NewRewardService(db *sql.DB, redisClient *redis.Client) *RewardService {
	return &RewardService{
		db:        db,
		redis:     redisClient,
		validator: NewValidationHelper(),
		config:    config.LoadCatalogConfig(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *RewardService) CreateReward(ctx context.Context, actor models.Actor, req CreateRewardRequest) (*models.Reward, error) {
	if !actor.IsParent() {
		return nil, fmt.Errorf("parent role required: %w", ErrForbidden)
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := s.validator.ValidateStruct(&req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if req.OriginalPrice != nil && req.DiscountedPrice != nil && *req.DiscountedPrice > *req.OriginalPrice {
		return nil, fmt.Errorf("discounted price above original price: %w", ErrInvalidInput)
	}

	reward := &models.Reward{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Description:     req.Description,
		ImageURL:        req.ImageURL,
		CoinCost:        req.CoinCost,
		OriginalPrice:   req.OriginalPrice,
		DiscountedPrice: req.DiscountedPrice,
		CreatedBy:       actor.ID,
		Active:          true,
		CreatedAt:       s.now(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rewards (id, name, description, image_url, coin_cost, original_price, discounted_price, created_by, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)`,
		reward.ID, reward.Name, reward.Description, reward.ImageURL, reward.CoinCost,
		nullInt64(reward.OriginalPrice), nullInt64(reward.DiscountedPrice), reward.CreatedBy, reward.CreatedAt)
	if err != nil {
		log.Printf("[CATALOG] Reward creation failed for parent %s: %v", actor.ID, err)
		return nil, err
	}

	s.invalidate(ctx)
	log.Printf("[CATALOG] Reward %s (%q, %d coins) created by %s", reward.ID, reward.Name, reward.CoinCost, actor.ID)
	return reward, nil
}

// GetReward loads a reward of the actor's family.
func (s *RewardService) GetReward(ctx context.Context, actor models.Actor, rewardID string) (*models.Reward, error) {
	familyID, err := s.familyOf(ctx, actor)
	if err != nil {
		return nil, err
	}

	reward, err := s.getReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if reward.CreatedBy != familyID {
		return nil, fmt.Errorf("reward %s: %w", rewardID, ErrNotFound)
	}
	return reward, nil
}

func (s *RewardService) getReward(ctx context.Context, rewardID string) (*models.Reward, error) {
	if err := parseID(rewardID, "reward"); err != nil {
		return nil, err
	}

	reward, err := scanReward(s.db.QueryRowContext(ctx, "SELECT "+rewardColumns+" FROM rewards WHERE id = $1", rewardID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reward %s: %w", rewardID, ErrNotFound)
	}
	return reward, err
}

// ListRewards returns the active rewards of the actor's family. maxCost <= 0
// means no cost filter.
func (s *RewardService) ListRewards(ctx context.Context, actor models.Actor, sortBy models.RewardSort, maxCost int64) ([]models.Reward, error) {
	switch sortBy {
	case "", models.SortByName, models.SortByCoinCost:
	default:
		return nil, fmt.Errorf("unknown sort %q: %w", sortBy, ErrInvalidInput)
	}

	familyID, err := s.familyOf(ctx, actor)
	if err != nil {
		return nil, err
	}

	catalog, err := s.activeCatalog(ctx)
	if err != nil {
		return nil, err
	}

	rewards := make([]models.Reward, 0, len(catalog))
	for _, r := range catalog {
		if r.CreatedBy != familyID {
			continue
		}
		if maxCost > 0 && r.CoinCost > maxCost {
			continue
		}
		rewards = append(rewards, r)
	}

	if sortBy == models.SortByCoinCost {
		sort.SliceStable(rewards, func(i, j int) bool { return rewards[i].CoinCost < rewards[j].CoinCost })
	}
	return rewards, nil
}

// DeactivateReward hides a reward from the catalog. Only its creator may.
func (s *RewardService) DeactivateReward(ctx context.Context, actor models.Actor, rewardID string) error {
	if !actor.IsParent() {
		return fmt.Errorf("parent role required: %w", ErrForbidden)
	}

	reward, err := s.getReward(ctx, rewardID)
	if err != nil {
		return err
	}
	if reward.CreatedBy != actor.ID {
		return fmt.Errorf("reward %s: %w", rewardID, ErrForbidden)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE rewards SET active = FALSE WHERE id = $1`, rewardID); err != nil {
		return err
	}

	s.invalidate(ctx)
	return nil
}

// familyOf returns the parent whose rewards the actor sees.
func (s *RewardService) familyOf(ctx context.Context, actor models.Actor) (string, error) {
	switch actor.Role {
	case models.RoleParent:
		return actor.ID, nil
	case models.RoleChild:
		parentID, _, err := loadChildOwner(ctx, s.db, actor.ID)
		return parentID, err
	}
	return "", fmt.Errorf("unknown role %q: %w", actor.Role, ErrForbidden)
}

// activeCatalog serves the name-ordered active catalog, from Redis when
// possible.
func (s *RewardService) activeCatalog(ctx context.Context) ([]models.Reward, error) {
	if s.redis != nil {
		data, err := s.redis.Get(ctx, catalogCacheKey).Bytes()
		if err == nil {
			var cached []models.Reward
			if err := json.Unmarshal(data, &cached); err == nil {
				metrics.CatalogCache.WithLabelValues("hit").Inc()
				return cached, nil
			}
		} else if err != redis.Nil {
			log.Printf("[CATALOG] Cache read failed: %v", err)
		}
		metrics.CatalogCache.WithLabelValues("miss").Inc()
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+rewardColumns+" FROM rewards WHERE active = TRUE ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	catalog := []models.Reward{}
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, *reward)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.redis != nil {
		if data, err := json.Marshal(catalog); err == nil {
			if err := s.redis.Set(ctx, catalogCacheKey, data, s.config.CacheTTL).Err(); err != nil {
				log.Printf("[CATALOG] Cache write failed: %v", err)
			}
		}
	}
	return catalog, nil
}

func (s *RewardService) invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, catalogCacheKey).Err(); err != nil {
		log.Printf("[CATALOG] Cache invalidation failed: %v", err)
	}
}

func scanReward(row rowScanner) (*models.Reward, error) {
	var r models.Reward
	var original, discounted sql.NullInt64
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.ImageURL, &r.CoinCost, &original, &discounted, &r.CreatedBy, &r.Active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if original.Valid {
		r.OriginalPrice = &original.Int64
	}
	if discounted.Valid {
		r.DiscountedPrice = &discounted.Int64
	}
	return &r, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
