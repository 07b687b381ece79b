package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

type withdrawalTestEnv struct {
	*serviceTestEnv
	withdrawalSvc *WithdrawalService
}

func setupWithdrawalTest(t *testing.T) *withdrawalTestEnv {
	t.Helper()
	base := setupServiceTest(t)
	return &withdrawalTestEnv{
		serviceTestEnv: base,
		withdrawalSvc: NewWithdrawalService(
			repository.NewSettlementRepository(base.db),
			repository.NewWithdrawalRepository(base.db),
		),
	}
}

// createCompletedSettlement 直接落一条指定状态的结算批次
func createCompletedSettlement(t *testing.T, env *withdrawalTestEnv, entityType string, entityID uint, net string, status string, periodOffset time.Duration) {
	t.Helper()
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC).Add(periodOffset)
	netValue := mustDecimal(t, net)
	settlement := &models.Settlement{
		EntityType:  entityType,
		EntityID:    entityID,
		Currency:    "CNY",
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.Add(24 * time.Hour),
		GrossAmount: models.NewMoneyFromDecimal(netValue),
		FeeAmount:   models.NewMoneyFromDecimal(decimal.Zero),
		NetAmount:   models.NewMoneyFromDecimal(netValue),
		Status:      status,
	}
	if err := env.db.Create(settlement).Error; err != nil {
		t.Fatalf("create settlement failed: %v", err)
	}
}

func TestAvailableBalanceDerivation(t *testing.T) {
	env := setupWithdrawalTest(t)

	// 两笔已完成结算入账，一笔待完成结算不计入
	createCompletedSettlement(t, env, constants.SettlementEntityMerchant, 7, "60.00", constants.SettlementStatusCompleted, 0)
	createCompletedSettlement(t, env, constants.SettlementEntityMerchant, 7, "40.00", constants.SettlementStatusCompleted, 48*time.Hour)
	createCompletedSettlement(t, env, constants.SettlementEntityMerchant, 7, "500.00", constants.SettlementStatusPending, 96*time.Hour)

	balance, err := env.withdrawalSvc.AvailableBalance(constants.SettlementEntityMerchant, 7, "CNY")
	if err != nil {
		t.Fatalf("available balance failed: %v", err)
	}
	if !balance.Decimal.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("expected 100.00, got %s", balance.String())
	}

	// 提现占用后余额相应扣减
	if _, err := env.withdrawalSvc.CreateWithdrawal(CreateWithdrawalInput{
		EntityType: constants.SettlementEntityMerchant,
		EntityID:   7,
		Currency:   "CNY",
		Amount:     "30.00",
	}); err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	balance, err = env.withdrawalSvc.AvailableBalance(constants.SettlementEntityMerchant, 7, "CNY")
	if err != nil {
		t.Fatalf("available balance failed: %v", err)
	}
	if !balance.Decimal.Equal(mustDecimal(t, "70.00")) {
		t.Fatalf("expected 70.00 after withdrawal hold, got %s", balance.String())
	}
}

func TestCreateWithdrawalSuccess(t *testing.T) {
	env := setupWithdrawalTest(t)
	createCompletedSettlement(t, env, constants.SettlementEntityAgent, 3, "200.00", constants.SettlementStatusCompleted, 0)

	withdrawal, err := env.withdrawalSvc.CreateWithdrawal(CreateWithdrawalInput{
		EntityType:    "agent",
		EntityID:      3,
		Currency:      "cny",
		Amount:        "50.00",
		Fee:           "1.50",
		PayoutDetails: map[string]interface{}{"bank": "测试银行", "account": "622202***1234"},
	})
	if err != nil {
		t.Fatalf("create withdrawal failed: %v", err)
	}
	if withdrawal.Status != constants.WithdrawalStatusPending {
		t.Fatalf("expected pending, got %s", withdrawal.Status)
	}
	if withdrawal.Currency != "CNY" {
		t.Fatalf("currency must be normalized, got %s", withdrawal.Currency)
	}
	if !withdrawal.PayoutAmount.Decimal.Equal(mustDecimal(t, "48.50")) {
		t.Fatalf("expected payout 48.50, got %s", withdrawal.PayoutAmount.String())
	}
}

func TestCreateWithdrawalInsufficientBalance(t *testing.T) {
	env := setupWithdrawalTest(t)
	createCompletedSettlement(t, env, constants.SettlementEntityMerchant, 9, "10.00", constants.SettlementStatusCompleted, 0)

	_, err := env.withdrawalSvc.CreateWithdrawal(CreateWithdrawalInput{
		EntityType: constants.SettlementEntityMerchant,
		EntityID:   9,
		Currency:   "CNY",
		Amount:     "10.01",
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// 超额申请不留任何记录
	var count int64
	env.db.Model(&models.Withdrawal{}).Count(&count)
	if count != 0 {
		t.Fatalf("rejected withdrawal must not persist, got %d rows", count)
	}

	// 正好等于可用余额可以提走
	if _, err := env.withdrawalSvc.CreateWithdrawal(CreateWithdrawalInput{
		EntityType: constants.SettlementEntityMerchant,
		EntityID:   9,
		Currency:   "CNY",
		Amount:     "10.00",
	}); err != nil {
		t.Fatalf("exact balance withdrawal failed: %v", err)
	}
}

func TestCreateWithdrawalUnsupportedEntityType(t *testing.T) {
	env := setupWithdrawalTest(t)
	_, err := env.withdrawalSvc.CreateWithdrawal(CreateWithdrawalInput{
		EntityType: "platform",
		EntityID:   1,
		Currency:   "CNY",
		Amount:     "1.00",
	})
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Fatalf("expected ErrUnsupportedEntityType, got %v", err)
	}
}

func TestCreateWithdrawalInvalidAmount(t *testing.T) {
	env := setupWithdrawalTest(t)
	createCompletedSettlement(t, env, constants.SettlementEntityMerchant, 5, "100.00", constants.SettlementStatusCompleted, 0)

	cases := []CreateWithdrawalInput{
		{EntityType: "merchant", EntityID: 5, Currency: "CNY", Amount: "0"},
		{EntityType: "merchant", EntityID: 5, Currency: "CNY", Amount: "-1.00"},
		{EntityType: "merchant", EntityID: 5, Currency: "CNY", Amount: "abc"},
		{EntityType: "merchant", EntityID: 5, Currency: "CNY", Amount: "10.00", Fee: "-0.01"},
		// 手续费吃掉全部金额
		{EntityType: "merchant", EntityID: 5, Currency: "CNY", Amount: "10.00", Fee: "10.00"},
	}
	for i, input := range cases {
		if _, err := env.withdrawalSvc.CreateWithdrawal(input); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("case %d: expected ErrInvalidAmount, got %v", i, err)
		}
	}
}
