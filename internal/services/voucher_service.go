package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/goodcoins/backend/internal/audit"
	"github.com/goodcoins/backend/internal/config"
	"github.com/goodcoins/backend/internal/models"
	"github.com/skip2/go-qrcode"
)

// Voucher is a short-lived QR code a child shows a parent to collect a
// redeemed reward.
type Voucher struct {
	RedemptionID string    `json:"redemptionId"`
	Code         string    `json:"code"`
	Image        string    `json:"image"` // base64 PNG
	ExpiresAt    time.Time `json:"expiresAt"`
}

// VoucherService issues and claims redemption vouchers. Codes live only in
// Redis; the claim itself is recorded in Postgres.
type VoucherService struct {
	db     *sql.DB
	redis  *redis.Client
	audit  *audit.Logger
	config *config.CatalogConfig
	now    func() time.Time
	nonce  func() string
}

func NewVoucherService(db *sql.DB, redisClient *redis.Client, auditLogger *audit.Logger) *VoucherService {
	return &VoucherService{
		db:     db,
		redis:  redisClient,
		audit:  auditLogger,
		config: config.LoadCatalogConfig(),
		now:    func() time.Time { return time.Now().UTC() },
		nonce:  generateNonce,
	}
}

type redemptionOwner struct {
	childID  string
	parentID string
	claimed  bool
}

// IssueVoucher creates a one-time code for an unclaimed redemption of the
// calling child.
func (s *VoucherService) IssueVoucher(ctx context.Context, actor models.Actor, redemptionID string) (*Voucher, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("voucher store: %w", ErrStoreUnavailable)
	}

	owner, err := s.loadOwner(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if !actor.IsChild() || actor.ID != owner.childID {
		return nil, fmt.Errorf("redemption %s: %w", redemptionID, ErrForbidden)
	}
	if owner.claimed {
		return nil, fmt.Errorf("redemption %s: %w", redemptionID, ErrAlreadyClaimed)
	}

	issuedAt := s.now()
	code, err := encodeVoucher(redemptionID, issuedAt, s.nonce())
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, voucherKey(code), redemptionID, s.config.VoucherTTL).Err(); err != nil {
		log.Printf("[VOUCHER] Failed to store voucher for redemption %s: %v", redemptionID, err)
		return nil, fmt.Errorf("voucher store: %w: %v", ErrStoreUnavailable, err)
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return nil, err
	}

	return &Voucher{
		RedemptionID: redemptionID,
		Code:         code,
		Image:        base64.StdEncoding.EncodeToString(buf.Bytes()),
		ExpiresAt:    issuedAt.Add(s.config.VoucherTTL),
	}, nil
}

// ClaimVoucher lets the owning parent mark a redemption as handed over.
// Each redemption can be claimed once.
func (s *VoucherService) ClaimVoucher(ctx context.Context, actor models.Actor, code string) (*models.RedemptionClaim, error) {
	if !actor.IsParent() {
		return nil, fmt.Errorf("parent role required: %w", ErrForbidden)
	}
	if s.redis == nil {
		return nil, fmt.Errorf("voucher store: %w", ErrStoreUnavailable)
	}

	key := voucherKey(code)
	redemptionID, err := s.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired voucher: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("voucher store: %w: %v", ErrStoreUnavailable, err)
	}

	owner, err := s.loadOwner(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if owner.parentID != actor.ID {
		return nil, fmt.Errorf("redemption %s: %w", redemptionID, ErrForbidden)
	}

	claim := &models.RedemptionClaim{RedemptionID: redemptionID, ClaimedBy: actor.ID, ClaimedAt: s.now()}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO redemption_claims (redemption_id, claimed_by, claimed_at) VALUES ($1, $2, $3)",
		claim.RedemptionID, claim.ClaimedBy, claim.ClaimedAt)
	if err != nil && !isUniqueViolation(err) {
		return nil, err
	}

	if delErr := s.redis.Del(ctx, key).Err(); delErr != nil {
		log.Printf("[VOUCHER] Failed to expire voucher for redemption %s: %v", redemptionID, delErr)
	}
	if err != nil {
		return nil, fmt.Errorf("redemption %s: %w", redemptionID, ErrAlreadyClaimed)
	}

	s.audit.LogOperation("REDEMPTION_CLAIMED", actor, owner.childID, "redemption "+redemptionID)
	return claim, nil
}

func (s *VoucherService) loadOwner(ctx context.Context, redemptionID string) (*redemptionOwner, error) {
	if err := parseID(redemptionID, "redemption"); err != nil {
		return nil, err
	}

	var owner redemptionOwner
	err := s.db.QueryRowContext(ctx, `
		SELECT r.child_id, c.parent_id, EXISTS(SELECT 1 FROM redemption_claims WHERE redemption_id = r.id)
		FROM redemptions r
		JOIN children c ON c.id = r.child_id
		WHERE r.id = $1`, redemptionID).Scan(&owner.childID, &owner.parentID, &owner.claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redemption %s: %w", redemptionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &owner, nil
}

func encodeVoucher(redemptionID string, issuedAt time.Time, nonce string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"redemptionId": redemptionID,
		"timestamp":    issuedAt.Unix(),
		"nonce":        nonce,
	})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(payload), nil
}

func voucherKey(code string) string {
	return fmt.Sprintf("voucher:%s", code)
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
