package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/goodcoins/backend/internal/audit"
	"github.com/goodcoins/backend/internal/config"
	"github.com/goodcoins/backend/internal/metrics"
	"github.com/goodcoins/backend/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testParentID   = "0d8e7c2a-1f4b-4a6e-9c3d-5b2a1e0f9d81"
	testOtherID    = "7a1c9e3f-2b4d-4e6f-8a0b-1c2d3e4f5a6b"
	testChildID    = "5c3b2a19-8e7d-4c6b-a5f4-e3d2c1b0a998"
	testActivityID = "b9f8e7d6-c5b4-4a39-8281-706f5e4d3c2b"
	testRewardID   = "e1d2c3b4-a596-4877-8695-a4b3c2d1e0f9"
)

var (
	fixedNow    = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	parentActor = models.Actor{ID: testParentID, Role: models.RoleParent}
	childActor  = models.Actor{ID: testChildID, Role: models.RoleChild}

	accountColumns     = []string{"id", "parent_id", "balance", "version", "active", "updated_at"}
	activityRowColumns = []string{"id", "parent_id", "child_id", "title", "description", "area", "coin_reward",
		"estimated_minutes", "due_date", "completed", "completed_at", "created_at"}
	transactionColumns = []string{"id", "child_id", "amount", "kind", "description", "created_by",
		"activity_id", "redemption_id", "balance_after", "created_at"}
)

const (
	lockAccountSQL  = "SELECT id, parent_id, balance, version, active, updated_at FROM children WHERE id = \\$1 FOR UPDATE"
	lockActivitySQL = "FROM activities WHERE id = \\$1 FOR UPDATE"
	updateBalance   = "UPDATE children SET balance = balance \\+ \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4 AND balance \\+ \\$1 >= 0"
)

func newTestLedger(t *testing.T) (*LedgerService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	service := NewLedgerService(db, audit.NewLoggerTo(io.Discard))
	service.config = &config.LedgerConfig{RetryAttempts: 3, MaxAdjustment: 1000}
	service.now = func() time.Time { return fixedNow }
	return service, mock
}

func accountRow(balance int64, version int) *sqlmock.Rows {
	return sqlmock.NewRows(accountColumns).AddRow(testChildID, testParentID, balance, version, true, fixedNow)
}

func activityRow(completed bool) *sqlmock.Rows {
	var completedAt any
	if completed {
		completedAt = fixedNow
	}
	return sqlmock.NewRows(activityRowColumns).AddRow(testActivityID, testParentID, testChildID, "Read a book",
		"Read any book for twenty minutes", "Learning", int64(15), 20, fixedNow.Add(24*time.Hour), completed, completedAt, fixedNow)
}

func rewardRow(cost int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "coin_cost", "created_by", "active"}).
		AddRow(testRewardID, "Movie night", cost, testParentID, true)
}

func expectNotApplied(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM coin_transactions WHERE id = \\$1\\)").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
}

// expectAdjustment scripts one successful grant or penalty. Retried attempts
// look for their ledger entry before locking the account.
func expectAdjustment(mock sqlmock.Sqlmock, balance int64, version int, delta int64, kind string, retried bool) {
	mock.ExpectBegin()
	if retried {
		expectNotApplied(mock)
	}
	mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(balance, version))
	mock.ExpectExec("INSERT INTO coin_transactions").
		WithArgs(sqlmock.AnyArg(), testChildID, delta, kind, sqlmock.AnyArg(), testParentID, nil, nil, balance+delta, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(updateBalance).
		WithArgs(delta, sqlmock.AnyArg(), testChildID, version).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestLedgerService_ApplyActivityCompletion(t *testing.T) {
	t.Run("credits the reward and marks the activity completed", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockActivitySQL).WithArgs(testActivityID).WillReturnRows(activityRow(false))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(0, 1))
		mock.ExpectExec("UPDATE activities SET completed = TRUE, completed_at = \\$1 WHERE id = \\$2 AND completed = FALSE").
			WithArgs(sqlmock.AnyArg(), testActivityID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO coin_transactions").
			WithArgs(sqlmock.AnyArg(), testChildID, int64(15), "earned", "Completed: Read a book", testChildID,
				testActivityID, nil, int64(15), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updateBalance).
			WithArgs(int64(15), sqlmock.AnyArg(), testChildID, 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.ApplyActivityCompletion(context.Background(), childActor, testActivityID)
		require.NoError(t, err)
		assert.True(t, result.Activity.Completed)
		assert.NotNil(t, result.Activity.CompletedAt)
		assert.Equal(t, int64(15), result.Transaction.Amount)
		assert.Equal(t, models.KindEarned, result.Transaction.Kind)
		assert.Equal(t, int64(15), result.Transaction.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second completion credits nothing", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockActivitySQL).WithArgs(testActivityID).WillReturnRows(activityRow(true))
		mock.ExpectRollback()

		result, err := service.ApplyActivityCompletion(context.Background(), childActor, testActivityID)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
		assert.Nil(t, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race on the completion flag", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockActivitySQL).WithArgs(testActivityID).WillReturnRows(activityRow(false))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(0, 1))
		mock.ExpectExec("UPDATE activities SET completed = TRUE").
			WithArgs(sqlmock.AnyArg(), testActivityID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := service.ApplyActivityCompletion(context.Background(), childActor, testActivityID)
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("activity assigned to another child", func(t *testing.T) {
		service, mock := newTestLedger(t)
		other := models.Actor{ID: testOtherID, Role: models.RoleChild}

		mock.ExpectBegin()
		mock.ExpectQuery(lockActivitySQL).WithArgs(testActivityID).WillReturnRows(activityRow(false))
		mock.ExpectRollback()

		_, err := service.ApplyActivityCompletion(context.Background(), other, testActivityID)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("parents cannot complete activities", func(t *testing.T) {
		service, mock := newTestLedger(t)

		_, err := service.ApplyActivityCompletion(context.Background(), parentActor, testActivityID)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown activity", func(t *testing.T) {
		service, mock := newTestLedger(t)

		_, err := service.ApplyActivityCompletion(context.Background(), childActor, "not-a-uuid")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Adjustments(t *testing.T) {
	t.Run("grant then equal penalty nets to zero", func(t *testing.T) {
		service, mock := newTestLedger(t)

		expectAdjustment(mock, 0, 1, 20, "given", false)
		expectAdjustment(mock, 20, 2, -20, "penalty", false)

		grant, err := service.GrantCoins(context.Background(), parentActor, testChildID, 20, "Helped with dinner")
		require.NoError(t, err)
		assert.Equal(t, int64(20), grant.BalanceAfter)
		assert.Equal(t, "Helped with dinner", grant.Description)

		penalty, err := service.ApplyPenalty(context.Background(), parentActor, testChildID, 20, "")
		require.NoError(t, err)
		assert.Equal(t, int64(-20), penalty.Amount)
		assert.Equal(t, int64(0), penalty.BalanceAfter)
		assert.Equal(t, "Penalty", penalty.Description)

		assert.Equal(t, int64(0), grant.Amount+penalty.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("penalty larger than balance is rejected", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(5, 3))
		mock.ExpectRollback()

		entry, err := service.ApplyPenalty(context.Background(), parentActor, testChildID, 10, "Left toys out")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Nil(t, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid amounts never reach the store", func(t *testing.T) {
		service, mock := newTestLedger(t)

		for _, amount := range []int64{0, -5, 1001} {
			_, err := service.GrantCoins(context.Background(), parentActor, testChildID, amount, "")
			assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
			_, err = service.ApplyPenalty(context.Background(), parentActor, testChildID, amount, "")
			assert.ErrorIs(t, err, ErrInvalidAmount, "amount %d", amount)
		}
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("children cannot grant coins", func(t *testing.T) {
		service, mock := newTestLedger(t)

		_, err := service.GrantCoins(context.Background(), childActor, testChildID, 10, "")
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("parent of another family", func(t *testing.T) {
		service, mock := newTestLedger(t)
		stranger := models.Actor{ID: testOtherID, Role: models.RoleParent}

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(50, 1))
		mock.ExpectRollback()

		_, err := service.GrantCoins(context.Background(), stranger, testChildID, 10, "")
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deactivated child", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).
			WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(testChildID, testParentID, 50, 4, false, fixedNow))
		mock.ExpectRollback()

		_, err := service.GrantCoins(context.Background(), parentActor, testChildID, 10, "")
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_RedeemReward(t *testing.T) {
	t.Run("debits the cost and records the redemption", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, name, coin_cost, created_by, active FROM rewards WHERE id = \\$1").
			WithArgs(testRewardID).WillReturnRows(rewardRow(50))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(80, 2))
		mock.ExpectExec("INSERT INTO coin_transactions").
			WithArgs(sqlmock.AnyArg(), testChildID, int64(-50), "spent", "Redeemed: Movie night", testChildID,
				nil, sqlmock.AnyArg(), int64(30), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions").
			WithArgs(sqlmock.AnyArg(), testChildID, testRewardID, int64(50), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updateBalance).
			WithArgs(int64(-50), sqlmock.AnyArg(), testChildID, 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		result, err := service.RedeemReward(context.Background(), childActor, testChildID, testRewardID)
		require.NoError(t, err)
		assert.Equal(t, int64(30), result.Transaction.BalanceAfter)
		assert.Equal(t, result.Transaction.ID, result.Redemption.TransactionID)
		require.NotNil(t, result.Transaction.RedemptionID)
		assert.Equal(t, result.Redemption.ID, *result.Transaction.RedemptionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance leaves nothing behind", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards WHERE id = \\$1").WithArgs(testRewardID).WillReturnRows(rewardRow(50))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(30, 1))
		mock.ExpectRollback()

		result, err := service.RedeemReward(context.Background(), childActor, testChildID, testRewardID)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Nil(t, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive reward", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards WHERE id = \\$1").WithArgs(testRewardID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "coin_cost", "created_by", "active"}).
				AddRow(testRewardID, "Old", 10, testParentID, false))
		mock.ExpectRollback()

		_, err := service.RedeemReward(context.Background(), childActor, testChildID, testRewardID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reward of another family", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards WHERE id = \\$1").WithArgs(testRewardID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "coin_cost", "created_by", "active"}).
				AddRow(testRewardID, "Theme park", 10, testOtherID, true))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(80, 1))
		mock.ExpectRollback()

		result, err := service.RedeemReward(context.Background(), childActor, testChildID, testRewardID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, result)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redeeming for another child", func(t *testing.T) {
		service, mock := newTestLedger(t)

		_, err := service.RedeemReward(context.Background(), childActor, testOtherID, testRewardID)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent redemption loses the version check and re-reads", func(t *testing.T) {
		service, mock := newTestLedger(t)
		retries := testutil.ToFloat64(metrics.LedgerRetries.WithLabelValues(opRedeem))

		// First attempt read balance 50 but another redemption committed first.
		mock.ExpectBegin()
		mock.ExpectQuery("FROM rewards WHERE id = \\$1").WithArgs(testRewardID).WillReturnRows(rewardRow(50))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(50, 1))
		mock.ExpectExec("INSERT INTO coin_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO redemptions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updateBalance).
			WithArgs(int64(-50), sqlmock.AnyArg(), testChildID, 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		mock.ExpectBegin()
		expectNotApplied(mock)
		mock.ExpectQuery("FROM rewards WHERE id = \\$1").WithArgs(testRewardID).WillReturnRows(rewardRow(50))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(0, 2))
		mock.ExpectRollback()

		_, err := service.RedeemReward(context.Background(), childActor, testChildID, testRewardID)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.Equal(t, retries+1, testutil.ToFloat64(metrics.LedgerRetries.WithLabelValues(opRedeem)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Retries(t *testing.T) {
	serializationFailure := &pq.Error{Code: "40001", Message: "could not serialize access"}

	t.Run("transient failure is retried", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnError(serializationFailure)
		mock.ExpectRollback()
		expectAdjustment(mock, 10, 1, 5, "given", true)

		entry, err := service.GrantCoins(context.Background(), parentActor, testChildID, 5, "")
		require.NoError(t, err)
		assert.Equal(t, int64(15), entry.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted retries report the store unavailable", func(t *testing.T) {
		service, mock := newTestLedger(t)
		service.config.RetryAttempts = 2

		for i := 0; i < 2; i++ {
			mock.ExpectBegin()
			if i > 0 {
				expectNotApplied(mock)
			}
			mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnError(serializationFailure)
			mock.ExpectRollback()
		}

		_, err := service.GrantCoins(context.Background(), parentActor, testChildID, 5, "")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.Equal(t, 503, StatusCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-transient failure is not retried", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnError(errors.New("syntax error"))
		mock.ExpectRollback()

		_, err := service.GrantCoins(context.Background(), parentActor, testChildID, 5, "")
		assert.Error(t, err)
		assert.Equal(t, 500, StatusCode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("uncertain commit that landed is not applied twice", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectBegin()
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(10, 1))
		mock.ExpectExec("INSERT INTO coin_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updateBalance).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(errors.New("connection reset by peer"))

		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM coin_transactions WHERE id = \\$1\\)").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery("FROM coin_transactions WHERE id = \\$1").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow(uuid.NewString(), testChildID, int64(5), "given", "Bonus coins", testParentID, nil, nil, int64(15), fixedNow))

		entry, err := service.GrantCoins(context.Background(), parentActor, testChildID, 5, "")
		require.NoError(t, err)
		assert.Equal(t, int64(15), entry.BalanceAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("completion whose commit landed unseen is replayed on retry", func(t *testing.T) {
		service, mock := newTestLedger(t)
		connReset := errors.New("connection reset by peer")

		mock.ExpectBegin()
		mock.ExpectQuery(lockActivitySQL).WithArgs(testActivityID).WillReturnRows(activityRow(false))
		mock.ExpectQuery(lockAccountSQL).WithArgs(testChildID).WillReturnRows(accountRow(0, 1))
		mock.ExpectExec("UPDATE activities SET completed = TRUE").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO coin_transactions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(updateBalance).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit().WillReturnError(connReset)

		// The outcome check fails too, so the call retries.
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM coin_transactions WHERE id = \\$1\\)").
			WithArgs(sqlmock.AnyArg()).
			WillReturnError(connReset)

		// The retry finds its own entry before it can see the completed flag.
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM coin_transactions WHERE id = \\$1\\)").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()
		mock.ExpectQuery("FROM coin_transactions WHERE id = \\$1").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow(uuid.NewString(), testChildID, int64(15), "earned", "Completed: Read a book", testChildID,
					testActivityID, nil, int64(15), fixedNow))
		mock.ExpectQuery("FROM activities WHERE id = \\$1").WithArgs(testActivityID).WillReturnRows(activityRow(true))

		result, err := service.ApplyActivityCompletion(context.Background(), childActor, testActivityID)
		require.NoError(t, err)
		assert.Equal(t, int64(15), result.Transaction.Amount)
		assert.True(t, result.Activity.Completed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_IdempotencyKey(t *testing.T) {
	ctx := WithIdempotencyKey(context.Background(), "req-42")
	grantID := uuid.NewSHA1(idempotencyNamespace, []byte(opGrant+":"+testParentID+":req-42")).String()
	redeemID := uuid.NewSHA1(idempotencyNamespace, []byte(opRedeem+":"+testChildID+":req-42")).String()

	expectReplay := func(mock sqlmock.Sqlmock, txID string) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").WithArgs(txID).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()
	}
	grantRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(transactionColumns).
			AddRow(grantID, testChildID, int64(20), "given", "Bonus coins", testParentID, nil, nil, int64(20), fixedNow)
	}

	t.Run("repeated grant returns the first entry", func(t *testing.T) {
		service, mock := newTestLedger(t)

		expectReplay(mock, grantID)
		mock.ExpectQuery("FROM coin_transactions WHERE id = \\$1").WithArgs(grantID).WillReturnRows(grantRow())

		entry, err := service.GrantCoins(ctx, parentActor, testChildID, 20, "")
		require.NoError(t, err)
		assert.Equal(t, grantID, entry.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("same key with a different amount conflicts", func(t *testing.T) {
		service, mock := newTestLedger(t)

		expectReplay(mock, grantID)
		mock.ExpectQuery("FROM coin_transactions WHERE id = \\$1").WithArgs(grantID).WillReturnRows(grantRow())

		entry, err := service.GrantCoins(ctx, parentActor, testChildID, 500, "")
		assert.ErrorIs(t, err, ErrConflict)
		assert.Nil(t, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("repeated redemption carries the reward name", func(t *testing.T) {
		service, mock := newTestLedger(t)
		redemptionID := uuid.NewString()

		expectReplay(mock, redeemID)
		mock.ExpectQuery("FROM coin_transactions WHERE id = \\$1").
			WithArgs(redeemID).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow(redeemID, testChildID, int64(-50), "spent", "Redeemed: Movie night", testChildID, nil, redemptionID, int64(0), fixedNow))
		mock.ExpectQuery("FROM redemptions r JOIN rewards w ON w.id = r.reward_id .* WHERE r.transaction_id = \\$1").
			WithArgs(redeemID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "child_id", "reward_id", "name", "coin_cost", "transaction_id", "created_at", "claimed"}).
				AddRow(redemptionID, testChildID, testRewardID, "Movie night", int64(50), redeemID, fixedNow, false))

		result, err := service.RedeemReward(ctx, childActor, testChildID, testRewardID)
		require.NoError(t, err)
		assert.Equal(t, "Movie night", result.Redemption.RewardName)
		assert.Equal(t, int64(-50), result.Transaction.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Reads(t *testing.T) {
	ownerRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"parent_id", "active"}).AddRow(testParentID, true)
	}

	t.Run("balance visible to the child itself", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectQuery("SELECT parent_id, active FROM children WHERE id = \\$1").WithArgs(testChildID).WillReturnRows(ownerRows())
		mock.ExpectQuery("SELECT balance FROM children WHERE id = \\$1").WithArgs(testChildID).
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(42))

		balance, err := service.Balance(context.Background(), childActor, testChildID)
		require.NoError(t, err)
		assert.Equal(t, int64(42), balance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("siblings cannot read each other", func(t *testing.T) {
		service, mock := newTestLedger(t)
		sibling := models.Actor{ID: testOtherID, Role: models.RoleChild}

		mock.ExpectQuery("SELECT parent_id, active FROM children").WithArgs(testChildID).WillReturnRows(ownerRows())

		_, err := service.Balance(context.Background(), sibling, testChildID)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transactions filtered by kind", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectQuery("SELECT parent_id, active FROM children").WithArgs(testChildID).WillReturnRows(ownerRows())
		mock.ExpectQuery("FROM coin_transactions WHERE child_id = \\$1 AND kind = \\$2 ORDER BY created_at DESC, id LIMIT \\$3").
			WithArgs(testChildID, "penalty", defaultListLimit).
			WillReturnRows(sqlmock.NewRows(transactionColumns).
				AddRow(uuid.NewString(), testChildID, int64(-5), "penalty", "Penalty", testParentID, nil, nil, int64(10), fixedNow))

		entries, err := service.ListTransactions(context.Background(), parentActor, testChildID,
			models.TransactionFilter{Kind: models.KindPenalty})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, int64(-5), entries[0].Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown kind", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectQuery("SELECT parent_id, active FROM children").WithArgs(testChildID).WillReturnRows(ownerRows())

		_, err := service.ListTransactions(context.Background(), parentActor, testChildID,
			models.TransactionFilter{Kind: "refund"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reconcile a consistent child", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectQuery("SELECT parent_id, active FROM children").WithArgs(testChildID).WillReturnRows(ownerRows())
		mock.ExpectQuery("SELECT c.balance, COALESCE\\(SUM\\(t.amount\\), 0\\), COUNT\\(t.id\\)").
			WithArgs(testChildID).
			WillReturnRows(sqlmock.NewRows([]string{"balance", "sum", "count"}).AddRow(40, 40, 3))

		rec, err := service.Reconcile(context.Background(), parentActor, testChildID)
		require.NoError(t, err)
		assert.True(t, rec.Consistent)
		assert.Equal(t, 3, rec.Entries)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reconcile all reports drift", func(t *testing.T) {
		service, mock := newTestLedger(t)

		mock.ExpectQuery("GROUP BY c.id, c.balance").
			WillReturnRows(sqlmock.NewRows([]string{"id", "balance", "sum", "count"}).
				AddRow(testChildID, 40, 40, 3).
				AddRow(testOtherID, 25, 20, 2))

		report, err := service.ReconcileAll(context.Background())
		require.NoError(t, err)
		require.Len(t, report, 2)
		assert.True(t, report[0].Consistent)
		assert.False(t, report[1].Consistent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
