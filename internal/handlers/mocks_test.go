package handlers

import (
	"context"

	"github.com/goodcoins/backend/internal/models"
	"github.com/goodcoins/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ApplyActivityCompletion(ctx context.Context, actor models.Actor, activityID string) (*services.CompletionResult, error) {
	args := m.Called(ctx, actor, activityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CompletionResult), args.Error(1)
}

func (m *MockLedger) ApplyPenalty(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error) {
	args := m.Called(ctx, actor, childID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLedger) GrantCoins(ctx context.Context, actor models.Actor, childID string, amount int64, reason string) (*models.Transaction, error) {
	args := m.Called(ctx, actor, childID, amount, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockLedger) RedeemReward(ctx context.Context, actor models.Actor, childID, rewardID string) (*services.RedemptionResult, error) {
	args := m.Called(ctx, actor, childID, rewardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.RedemptionResult), args.Error(1)
}

func (m *MockLedger) Balance(ctx context.Context, actor models.Actor, childID string) (int64, error) {
	args := m.Called(ctx, actor, childID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) ListTransactions(ctx context.Context, actor models.Actor, childID string, filter models.TransactionFilter) ([]models.Transaction, error) {
	args := m.Called(ctx, actor, childID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockLedger) ListRedemptions(ctx context.Context, actor models.Actor, childID string) ([]models.Redemption, error) {
	args := m.Called(ctx, actor, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Redemption), args.Error(1)
}

func (m *MockLedger) GetRedemption(ctx context.Context, actor models.Actor, redemptionID string) (*models.Redemption, error) {
	args := m.Called(ctx, actor, redemptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Redemption), args.Error(1)
}

func (m *MockLedger) Reconcile(ctx context.Context, actor models.Actor, childID string) (*models.Reconciliation, error) {
	args := m.Called(ctx, actor, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reconciliation), args.Error(1)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) CreateChild(ctx context.Context, actor models.Actor, req services.CreateChildRequest) (*models.Child, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Child), args.Error(1)
}

func (m *MockAccounts) GetChild(ctx context.Context, actor models.Actor, childID string) (*models.Child, error) {
	args := m.Called(ctx, actor, childID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Child), args.Error(1)
}

func (m *MockAccounts) ListChildren(ctx context.Context, actor models.Actor, includeInactive bool) ([]models.Child, error) {
	args := m.Called(ctx, actor, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Child), args.Error(1)
}

func (m *MockAccounts) UpdateChild(ctx context.Context, actor models.Actor, childID string, req services.UpdateChildRequest) (*models.Child, error) {
	args := m.Called(ctx, actor, childID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Child), args.Error(1)
}

func (m *MockAccounts) DeactivateChild(ctx context.Context, actor models.Actor, childID string) error {
	args := m.Called(ctx, actor, childID)
	return args.Error(0)
}

type MockActivities struct {
	mock.Mock
}

func (m *MockActivities) AssignActivity(ctx context.Context, actor models.Actor, req services.AssignActivityRequest) ([]models.Activity, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Activity), args.Error(1)
}

func (m *MockActivities) GetActivity(ctx context.Context, actor models.Actor, activityID string) (*models.Activity, error) {
	args := m.Called(ctx, actor, activityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Activity), args.Error(1)
}

func (m *MockActivities) ListActivities(ctx context.Context, actor models.Actor, filter models.ActivityFilter) ([]models.Activity, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Activity), args.Error(1)
}

func (m *MockActivities) DeleteActivity(ctx context.Context, actor models.Actor, activityID string) error {
	args := m.Called(ctx, actor, activityID)
	return args.Error(0)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) CreateReward(ctx context.Context, actor models.Actor, req services.CreateRewardRequest) (*models.Reward, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reward), args.Error(1)
}

func (m *MockCatalog) GetReward(ctx context.Context, actor models.Actor, rewardID string) (*models.Reward, error) {
	args := m.Called(ctx, actor, rewardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reward), args.Error(1)
}

func (m *MockCatalog) ListRewards(ctx context.Context, actor models.Actor, sortBy models.RewardSort, maxCost int64) ([]models.Reward, error) {
	args := m.Called(ctx, actor, sortBy, maxCost)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Reward), args.Error(1)
}

func (m *MockCatalog) DeactivateReward(ctx context.Context, actor models.Actor, rewardID string) error {
	args := m.Called(ctx, actor, rewardID)
	return args.Error(0)
}

type MockAuth struct {
	mock.Mock
}

func (m *MockAuth) Register(ctx context.Context, req services.RegisterRequest) (*services.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResponse), args.Error(1)
}

func (m *MockAuth) Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResponse), args.Error(1)
}

func (m *MockAuth) ChildLogin(ctx context.Context, req services.ChildLoginRequest) (*services.AuthResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthResponse), args.Error(1)
}

func (m *MockAuth) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockAuth) Me(ctx context.Context, actor models.Actor) (*services.AuthUser, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.AuthUser), args.Error(1)
}

type MockVouchers struct {
	mock.Mock
}

func (m *MockVouchers) IssueVoucher(ctx context.Context, actor models.Actor, redemptionID string) (*services.Voucher, error) {
	args := m.Called(ctx, actor, redemptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Voucher), args.Error(1)
}

func (m *MockVouchers) ClaimVoucher(ctx context.Context, actor models.Actor, code string) (*models.RedemptionClaim, error) {
	args := m.Called(ctx, actor, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RedemptionClaim), args.Error(1)
}
