package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/goodcoins/backend/internal/audit"
	"github.com/goodcoins/backend/internal/config"
	"github.com/goodcoins/backend/internal/metrics"
	"github.com/goodcoins/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	opCompleteActivity = "complete_activity"
	opPenalty          = "penalty"
	opGrant            = "grant"
	opRedeem           = "redeem"

	defaultListLimit = 50
	maxListLimit     = 200
)

var (
	errOptimisticLock  = errors.New("optimistic lock failed")
	errCommitUncertain = errors.New("commit outcome unknown")
	errAlreadyApplied  = errors.New("transaction already applied")

	// idempotencyNamespace seeds UUIDv5 transaction ids derived from client keys.
	idempotencyNamespace = uuid.MustParse("3f8e2b0c-6d0a-4f51-9c7e-1b2d5a9e4c61")
)

type idempotencyKey struct{}

// WithIdempotencyKey attaches a client supplied request key. Workflow calls
// carrying the same key for the same actor and operation are applied once.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, strings.TrimSpace(key))
}

// LedgerService is the only writer of child balances. Every operation
// appends exactly one ledger row and moves the balance by the same signed
// amount inside a single database transaction.
type LedgerService struct {
	db     *sql.DB
	audit  *audit.Logger
	config *config.LedgerConfig
	now    func() time.Time
}

// CompletionResult is returned by ApplyActivityCompletion.
type CompletionResult struct {
	Activity    *models.Activity    `json:"activity"`
	Transaction *models.Transaction `json:"transaction"`
}

// RedemptionResult is returned by RedeemReward.
type RedemptionResult struct {
	Redemption  *models.Redemption  `json:"redemption"`
	Transaction *models.Transaction `json:"transaction"`
}

func NewLedgerService(db *sql.DB, auditLogger *audit.Logger) *LedgerService {
	return &LedgerService{
		db:     db,
		audit:  auditLogger,
		config: config.LoadLedgerConfig(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ApplyActivityCompletion marks an activity done and credits its reward to
// the assigned child. A second call fails with ErrAlreadyCompleted and
// credits nothing.
func (s *LedgerService) ApplyActivityCompletion(ctx context.Context, actor models.Actor, activityID string) (*CompletionResult, error) {
	started := time.Now()
	result, err := s.applyActivityCompletion(ctx, actor, activityID)

	var entry *models.Transaction
	if result != nil {
		entry = result.Transaction
	}
	s.finish(opCompleteActivity, actor, actor.ID, started, entry, err)
	return result, err
}

func (s *LedgerService) applyActivityCompletion(ctx context.Context, actor models.Actor, activityID string) (*CompletionResult, error) {
	if !actor.IsChild() {
		return nil, fmt.Errorf("only the assigned child can complete an activity: %w", ErrForbidden)
	}
	if err := parseID(activityID, "activity"); err != nil {
		return nil, err
	}

	txID, keyed := s.transactionID(ctx, opCompleteActivity, actor)
	var result CompletionResult

	apply := func(tx *sql.Tx) error {
		activity, err := s.lockActivity(ctx, tx, activityID)
		if err != nil {
			return err
		}
		if activity.ChildID != actor.ID {
			return fmt.Errorf("activity %s is assigned to another child: %w", activityID, ErrForbidden)
		}
		if activity.Completed {
			return fmt.Errorf("activity %s: %w", activityID, ErrAlreadyCompleted)
		}

		account, err := s.lockAccount(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		if !account.Active {
			return fmt.Errorf("child %s is deactivated: %w", actor.ID, ErrForbidden)
		}

		now := s.now()
		if err := s.markCompleted(ctx, tx, activity.ID, now); err != nil {
			return err
		}

		entry := &models.Transaction{
			ID:           txID,
			ChildID:      actor.ID,
			Amount:       activity.CoinReward,
			Kind:         models.KindEarned,
			Description:  "Completed: " + activity.Title,
			CreatedBy:    actor.ID,
			ActivityID:   &activity.ID,
			BalanceAfter: account.Balance + activity.CoinReward,
			CreatedAt:    now,
		}
		if err := s.createLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
		if err := s.updateAccountBalance(ctx, tx, account, activity.CoinReward); err != nil {
			return err
		}

		activity.Completed = true
		activity.CompletedAt = &now
		result = CompletionResult{Activity: activity, Transaction: entry}
		return nil
	}

	replay := func(ctx context.Context) error {
		entry, err := s.getTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if entry.ActivityID == nil || *entry.ActivityID != activityID {
			return fmt.Errorf("idempotency key reused for a different activity: %w", ErrConflict)
		}
		activity, err := getActivity(ctx, s.db, activityID)
		if err != nil {
			return err
		}
		result = CompletionResult{Activity: activity, Transaction: entry}
		return nil
	}

	if err := s.commit(ctx, opCompleteActivity, txID, keyed, apply, replay); err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyPenalty deducts coins from a child. Penalties larger than the current
// balance are rejected with ErrInsufficientBalance; balances never go negative.
func (s *LedgerService) ApplyPenalty(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error) {
	started := time.Now()
	entry, err := s.adjust(ctx, opPenalty, actor, childID, amount, reason, models.KindPenalty)
	s.finish(opPenalty, actor, childID, started, entry, err)
	return entry, err
}

// GrantCoins credits coins to a child.
func (s *LedgerService) GrantCoins(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error) {
	started := time.Now()
	entry, err := s.adjust(ctx, opGrant, actor, childID, amount, reason, models.KindGiven)
	s.finish(opGrant, actor, childID, started, entry, err)
	return entry, err
}

func (s *LedgerService) adjust(ctx context.Context, op string, actor models.Actor, childID string, amount int64, reason string, kind models.TransactionKind) (*models.Transaction, error) {
	if !actor.IsParent() {
		return nil, fmt.Errorf("parent role required: %w", ErrForbidden)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d: %w", amount, ErrInvalidAmount)
	}
	if amount > s.config.MaxAdjustment {
		return nil, fmt.Errorf("amount %d exceeds limit %d: %w", amount, s.config.MaxAdjustment, ErrInvalidAmount)
	}
	if err := parseID(childID, "child"); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(reason)
	if description == "" {
		description = defaultReason(kind)
	}

	txID, keyed := s.transactionID(ctx, op, actor)
	var entry *models.Transaction

	apply := func(tx *sql.Tx) error {
		account, err := s.lockAccount(ctx, tx, childID)
		if err != nil {
			return err
		}
		if account.ParentID != actor.ID {
			return fmt.Errorf("child %s: %w", childID, ErrForbidden)
		}
		if !account.Active {
			return fmt.Errorf("child %s is deactivated: %w", childID, ErrForbidden)
		}

		delta := kind.Sign() * amount
		if account.Balance+delta < 0 {
			return fmt.Errorf("penalty of %d exceeds balance of %d: %w", amount, account.Balance, ErrInsufficientBalance)
		}

		e := &models.Transaction{
			ID:           txID,
			ChildID:      childID,
			Amount:       delta,
			Kind:         kind,
			Description:  description,
			CreatedBy:    actor.ID,
			BalanceAfter: account.Balance + delta,
			CreatedAt:    s.now(),
		}
		if err := s.createLedgerEntry(ctx, tx, e); err != nil {
			return err
		}
		if err := s.updateAccountBalance(ctx, tx, account, delta); err != nil {
			return err
		}
		entry = e
		return nil
	}

	replay := func(ctx context.Context) error {
		e, err := s.getTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if e.ChildID != childID || e.Kind != kind || e.Amount != kind.Sign()*amount {
			return fmt.Errorf("idempotency key reused for a different request: %w", ErrConflict)
		}
		entry = e
		return nil
	}

	if err := s.commit(ctx, op, txID, keyed, apply, replay); err != nil {
		return nil, err
	}
	return entry, nil
}

// RedeemReward buys a catalog reward with the child's own coins.
func (s *LedgerService) RedeemReward(ctx context.Context, actor models.Actor, childID, rewardID string) (*RedemptionResult, error) {
	started := time.Now()
	result, err := s.redeemReward(ctx, actor, childID, rewardID)

	var entry *models.Transaction
	if result != nil {
		entry = result.Transaction
	}
	s.finish(opRedeem, actor, childID, started, entry, err)
	return result, err
}

func (s *LedgerService) redeemReward(ctx context.Context, actor models.Actor, childID, rewardID string) (*RedemptionResult, error) {
	if !actor.IsChild() || actor.ID != childID {
		return nil, fmt.Errorf("children redeem only for themselves: %w", ErrForbidden)
	}
	if err := parseID(childID, "child"); err != nil {
		return nil, err
	}
	if err := parseID(rewardID, "reward"); err != nil {
		return nil, err
	}

	txID, keyed := s.transactionID(ctx, opRedeem, actor)
	var result RedemptionResult

	apply := func(tx *sql.Tx) error {
		reward, err := s.loadReward(ctx, tx, rewardID)
		if err != nil {
			return err
		}

		account, err := s.lockAccount(ctx, tx, childID)
		if err != nil {
			return err
		}
		if !account.Active {
			return fmt.Errorf("child %s is deactivated: %w", childID, ErrForbidden)
		}
		if reward.CreatedBy != account.ParentID {
			return fmt.Errorf("reward %s: %w", rewardID, ErrNotFound)
		}
		if account.Balance < reward.CoinCost {
			return fmt.Errorf("reward costs %d, balance is %d: %w", reward.CoinCost, account.Balance, ErrInsufficientBalance)
		}

		now := s.now()
		redemptionID := uuid.NewString()
		entry := &models.Transaction{
			ID:           txID,
			ChildID:      childID,
			Amount:       -reward.CoinCost,
			Kind:         models.KindSpent,
			Description:  "Redeemed: " + reward.Name,
			CreatedBy:    actor.ID,
			RedemptionID: &redemptionID,
			BalanceAfter: account.Balance - reward.CoinCost,
			CreatedAt:    now,
		}
		if err := s.createLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}

		redemption := &models.Redemption{
			ID:            redemptionID,
			ChildID:       childID,
			RewardID:      reward.ID,
			RewardName:    reward.Name,
			CoinCost:      reward.CoinCost,
			TransactionID: txID,
			CreatedAt:     now,
		}
		if err := s.createRedemption(ctx, tx, redemption); err != nil {
			return err
		}
		if err := s.updateAccountBalance(ctx, tx, account, -reward.CoinCost); err != nil {
			return err
		}

		result = RedemptionResult{Redemption: redemption, Transaction: entry}
		return nil
	}

	replay := func(ctx context.Context) error {
		entry, err := s.getTransaction(ctx, txID)
		if err != nil {
			return err
		}
		redemption, err := s.getRedemptionByTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if redemption.RewardID != rewardID {
			return fmt.Errorf("idempotency key reused for a different reward: %w", ErrConflict)
		}
		result = RedemptionResult{Redemption: redemption, Transaction: entry}
		return nil
	}

	if err := s.commit(ctx, opRedeem, txID, keyed, apply, replay); err != nil {
		return nil, err
	}
	return &result, nil
}

// Balance returns the child's current balance.
func (s *LedgerService) Balance(ctx context.Context, actor models.Actor, childID string) (int64, error) {
	if err := authorizeView(ctx, s.db, actor, childID); err != nil {
		return 0, err
	}

	var balance int64
	if err := s.db.QueryRowContext(ctx, `SELECT balance FROM children WHERE id = $1`, childID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// ListTransactions returns the child's ledger, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, actor models.Actor, childID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	if err := authorizeView(ctx, s.db, actor, childID); err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, child_id, amount, kind, description, created_by, activity_id, redemption_id, balance_after, created_at
		FROM coin_transactions
		WHERE child_id = $1`
	args := []any{childID}
	if filter.Kind != "" {
		if !filter.Kind.Valid() {
			return nil, fmt.Errorf("unknown transaction kind %q: %w", filter.Kind, ErrInvalidInput)
		}
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("[LEDGER] Failed to list transactions for child %s: %v", childID, err)
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *entry)
	}
	return transactions, rows.Err()
}

// ListRedemptions returns the child's redemptions, newest first.
func (s *LedgerService) ListRedemptions(ctx context.Context, actor models.Actor, childID string) ([]models.Redemption, error) {
	if err := authorizeView(ctx, s.db, actor, childID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.child_id, r.reward_id, w.name, r.coin_cost, r.transaction_id, r.created_at, c.redemption_id IS NOT NULL
		FROM redemptions r
		JOIN rewards w ON w.id = r.reward_id
		LEFT JOIN redemption_claims c ON c.redemption_id = r.id
		WHERE r.child_id = $1
		ORDER BY r.created_at DESC`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	redemptions := []models.Redemption{}
	for rows.Next() {
		var r models.Redemption
		if err := rows.Scan(&r.ID, &r.ChildID, &r.RewardID, &r.RewardName, &r.CoinCost, &r.TransactionID, &r.CreatedAt, &r.Claimed); err != nil {
			return nil, err
		}
		redemptions = append(redemptions, r)
	}
	return redemptions, rows.Err()
}

// Reconcile compares the stored balance with the ledger sum of one child.
func (s *LedgerService) Reconcile(ctx context.Context, actor models.Actor, childID string) (*models.Reconciliation, error) {
	if err := authorizeOwner(ctx, s.db, actor, childID); err != nil {
		return nil, err
	}

	rec := models.Reconciliation{ChildID: childID}
	err := s.db.QueryRowContext(ctx, `
		SELECT c.balance, COALESCE(SUM(t.amount), 0), COUNT(t.id)
		FROM children c
		LEFT JOIN coin_transactions t ON t.child_id = c.id
		WHERE c.id = $1
		GROUP BY c.balance`, childID).Scan(&rec.Balance, &rec.LedgerSum, &rec.Entries)
	if err != nil {
		return nil, err
	}
	rec.Consistent = rec.Balance == rec.LedgerSum
	return &rec, nil
}

// ReconcileAll checks every child. It is meant for operators, not end users.
func (s *LedgerService) ReconcileAll(ctx context.Context) ([]models.Reconciliation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.balance, COALESCE(SUM(t.amount), 0), COUNT(t.id)
		FROM children c
		LEFT JOIN coin_transactions t ON t.child_id = c.id
		GROUP BY c.id, c.balance
		ORDER BY c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := []models.Reconciliation{}
	for rows.Next() {
		var rec models.Reconciliation
		if err := rows.Scan(&rec.ChildID, &rec.Balance, &rec.LedgerSum, &rec.Entries); err != nil {
			return nil, err
		}
		rec.Consistent = rec.Balance == rec.LedgerSum
		if !rec.Consistent {
			log.Printf("[LEDGER] Balance drift for child %s: balance=%d ledger=%d", rec.ChildID, rec.Balance, rec.LedgerSum)
		}
		report = append(report, rec)
	}
	return report, rows.Err()
}

// GetRedemption loads a redemption visible to the actor.
func (s *LedgerService) GetRedemption(ctx context.Context, actor models.Actor, redemptionID string) (*models.Redemption, error) {
	if err := parseID(redemptionID, "redemption"); err != nil {
		return nil, err
	}

	var r models.Redemption
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.child_id, r.reward_id, w.name, r.coin_cost, r.transaction_id, r.created_at, c.redemption_id IS NOT NULL
		FROM redemptions r
		JOIN rewards w ON w.id = r.reward_id
		LEFT JOIN redemption_claims c ON c.redemption_id = r.id
		WHERE r.id = $1`, redemptionID).
		Scan(&r.ID, &r.ChildID, &r.RewardID, &r.RewardName, &r.CoinCost, &r.TransactionID, &r.CreatedAt, &r.Claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redemption %s: %w", redemptionID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := authorizeView(ctx, s.db, actor, r.ChildID); err != nil {
		return nil, err
	}
	return &r, nil
}

// commit runs apply in a database transaction, retrying transient failures.
// txID is the dedup key: keyed calls and every retry look for txID in the
// ledger first and replay instead of applying twice.
func (s *LedgerService) commit(ctx context.Context, op, txID string, keyed bool, apply func(*sql.Tx) error, replay func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := s.runInTx(ctx, txID, keyed || attempt > 1, apply)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errAlreadyApplied):
			log.Printf("[LEDGER] %s replayed transaction %s", op, txID)
			return replay(ctx)
		case errors.Is(err, errCommitUncertain):
			if applied, checkErr := s.transactionExists(ctx, txID); checkErr == nil && applied {
				log.Printf("[LEDGER] %s transaction %s committed despite error: %v", op, txID, err)
				return replay(ctx)
			}
		case !isTransient(err):
			return err
		}

		if attempt >= s.config.RetryAttempts {
			log.Printf("[LEDGER] %s gave up after %d attempts: %v", op, attempt, err)
			return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
		}

		metrics.LedgerRetries.WithLabelValues(op).Inc()
		log.Printf("[LEDGER] %s attempt %d failed, retrying: %v", op, attempt, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.config.RetryBackoff * time.Duration(attempt)):
		}
	}
}

func (s *LedgerService) runInTx(ctx context.Context, txID string, checkFirst bool, apply func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if checkFirst {
		if err := s.checkApplied(ctx, tx, txID); err != nil {
			return err
		}
	}

	if err := apply(tx); err != nil {
		if isDuplicateTransaction(err) {
			return errAlreadyApplied
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", errCommitUncertain, err)
	}
	return nil
}

func (s *LedgerService) transactionID(ctx context.Context, op string, actor models.Actor) (string, bool) {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	if key == "" {
		return uuid.NewString(), false
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(op+":"+actor.ID+":"+key)).String(), true
}

func (s *LedgerService) checkApplied(ctx context.Context, tx *sql.Tx, txID string) error {
	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM coin_transactions WHERE id = $1)`, txID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return errAlreadyApplied
	}
	return nil
}

func (s *LedgerService) transactionExists(ctx context.Context, txID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM coin_transactions WHERE id = $1)`, txID).Scan(&exists)
	return exists, err
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, childID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, parent_id, balance, version, active, updated_at
		FROM children
		WHERE id = $1
		FOR UPDATE`, childID).
		Scan(&account.ID, &account.ParentID, &account.Balance, &account.Version, &account.Active, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("child %s: %w", childID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) lockActivity(ctx context.Context, tx *sql.Tx, activityID string) (*models.Activity, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE id = $1
		FOR UPDATE`, activityID)
	activity, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}
	return activity, err
}

func (s *LedgerService) markCompleted(ctx context.Context, tx *sql.Tx, activityID string, at time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE activities
		SET completed = TRUE, completed_at = $1
		WHERE id = $2 AND completed = FALSE`,
		at, activityID)
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

func (s *LedgerService) loadReward(ctx context.Context, tx *sql.Tx, rewardID string) (*models.Reward, error) {
	var reward models.Reward
	err := tx.QueryRowContext(ctx, `SELECT id, name, coin_cost, created_by, active FROM rewards WHERE id = $1`, rewardID).
		Scan(&reward.ID, &reward.Name, &reward.CoinCost, &reward.CreatedBy, &reward.Active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !reward.Active) {
		return nil, fmt.Errorf("reward %s: %w", rewardID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, entry *models.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO coin_transactions (id, child_id, amount, kind, description, created_by, activity_id, redemption_id, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, entry.ChildID, entry.Amount, string(entry.Kind), entry.Description, entry.CreatedBy,
		nullString(entry.ActivityID), nullString(entry.RedemptionID), entry.BalanceAfter, entry.CreatedAt)
	return err
}

func (s *LedgerService) createRedemption(ctx context.Context, tx *sql.Tx, redemption *models.Redemption) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO redemptions (id, child_id, reward_id, coin_cost, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		redemption.ID, redemption.ChildID, redemption.RewardID, redemption.CoinCost, redemption.TransactionID, redemption.CreatedAt)
	return err
}

// updateAccountBalance applies delta only if nobody moved the row since it
// was read and the result stays non-negative.
func (s *LedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, account *models.Account, delta int64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE children
		SET balance = balance + $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4 AND balance + $1 >= 0`,
		delta, s.now(), account.ID, account.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w for child %s", errOptimisticLock, account.ID)
	}
	return nil
}

func (s *LedgerService) getTransaction(ctx context.Context, txID string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, child_id, amount, kind, description, created_by, activity_id, redemption_id, balance_after, created_at
		FROM coin_transactions
		WHERE id = $1`, txID)
	entry, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", txID, ErrNotFound)
	}
	return entry, err
}

func (s *LedgerService) getRedemptionByTransaction(ctx context.Context, txID string) (*models.Redemption, error) {
	var r models.Redemption
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.child_id, r.reward_id, w.name, r.coin_cost, r.transaction_id, r.created_at, c.redemption_id IS NOT NULL
		FROM redemptions r
		JOIN rewards w ON w.id = r.reward_id
		LEFT JOIN redemption_claims c ON c.redemption_id = r.id
		WHERE r.transaction_id = $1`, txID).
		Scan(&r.ID, &r.ChildID, &r.RewardID, &r.RewardName, &r.CoinCost, &r.TransactionID, &r.CreatedAt, &r.Claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("redemption for transaction %s: %w", txID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *LedgerService) finish(op string, actor models.Actor, childID string, started time.Time, entry *models.Transaction, err error) {
	if err != nil {
		outcome := "error"
		if isRejection(err) {
			outcome = "rejected"
		}
		metrics.ObserveOperation(op, outcome, started)
		s.audit.LogFailure(strings.ToUpper(op), actor, childID, err)
		log.Printf("[LEDGER] %s by %s for child %s failed: %v", op, actor.ID, childID, err)
		return
	}

	metrics.ObserveOperation(op, "ok", started)
	metrics.ObserveCoins(string(entry.Kind), entry.Amount)
	s.audit.LogTransaction(entry)
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var entry models.Transaction
	var kind string
	var activityID, redemptionID sql.NullString
	err := row.Scan(&entry.ID, &entry.ChildID, &entry.Amount, &kind, &entry.Description, &entry.CreatedBy,
		&activityID, &redemptionID, &entry.BalanceAfter, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.Kind = models.TransactionKind(kind)
	if activityID.Valid {
		entry.ActivityID = &activityID.String
	}
	if redemptionID.Valid {
		entry.RedemptionID = &redemptionID.String
	}
	return &entry, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func defaultReason(kind models.TransactionKind) string {
	if kind == models.KindPenalty {
		return "Penalty"
	}
	return "Bonus coins"
}

// isTransient reports whether a failed commit unit may be retried safely.
func isTransient(err error) bool {
	if errors.Is(err, errOptimisticLock) || errors.Is(err, errCommitUncertain) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return pqErr.Code.Class() == "08"
	}
	return false
}

func isDuplicateTransaction(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "coin_transactions_pkey"
}
