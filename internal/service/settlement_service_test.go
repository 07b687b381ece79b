package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

type settlementTestEnv struct {
	*serviceTestEnv
	settlementRepo *repository.GormSettlementRepository
	settlementSvc  *SettlementService
}

func setupSettlementTest(t *testing.T) *settlementTestEnv {
	t.Helper()
	base := setupServiceTest(t)
	settlementRepo := repository.NewSettlementRepository(base.db)
	return &settlementTestEnv{
		serviceTestEnv: base,
		settlementRepo: settlementRepo,
		settlementSvc:  NewSettlementService(base.orderRepo, settlementRepo, base.merchantRepo, base.commissionRepo),
	}
}

func createPaidOrder(t *testing.T, env *settlementTestEnv, merchantID, channelID uint, channelCode, amount string, paidAt time.Time) *models.Order {
	t.Helper()
	order := createTestOrder(t, env.db, merchantID, channelID, channelCode, constants.OrderStatusSuccess, amount)
	if err := env.db.Model(order).Update("paid_at", paidAt).Error; err != nil {
		t.Fatalf("set paid_at failed: %v", err)
	}
	order.PaidAt = &paidAt
	return order
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return value
}

func TestCalculateExactFees(t *testing.T) {
	env := setupSettlementTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	ch := createTestChannel(t, env.db, "epay_st1")
	if err := env.merchantRepo.CreateChannelFee(&models.MerchantChannelFee{
		MerchantID: merchant.ID,
		ChannelID:  ch.ID,
		Currency:   "CNY",
		FeeRate:    models.NewMoneyFromDecimal(mustDecimal(t, "1.5")),
		FixedFee:   models.NewMoneyFromDecimal(mustDecimal(t, "0.1")),
		IsActive:   true,
	}); err != nil {
		t.Fatalf("create channel fee failed: %v", err)
	}

	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	paidAt := periodStart.Add(time.Hour)
	orders := []*models.Order{
		createPaidOrder(t, env, merchant.ID, ch.ID, ch.Code, "33.33", paidAt),
		createPaidOrder(t, env, merchant.ID, ch.ID, ch.Code, "66.67", paidAt),
	}

	settlement, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if settlement == nil {
		t.Fatalf("expected settlement, got nil")
	}
	if settlement.OrderCount != 2 {
		t.Fatalf("expected 2 orders, got %d", settlement.OrderCount)
	}
	if !settlement.GrossAmount.Decimal.Equal(mustDecimal(t, "100.00")) {
		t.Fatalf("expected gross 100.00, got %s", settlement.GrossAmount.String())
	}
	// 逐单：33.33×1.5% + 0.1 = 0.59995；66.67×1.5% + 0.1 = 1.10005
	if !settlement.FeeAmount.Decimal.Equal(mustDecimal(t, "1.7")) {
		t.Fatalf("expected fee 1.7, got %s", settlement.FeeAmount.String())
	}
	if !settlement.NetAmount.Decimal.Equal(mustDecimal(t, "98.3")) {
		t.Fatalf("expected net 98.3, got %s", settlement.NetAmount.String())
	}
	if settlement.Status != constants.SettlementStatusPending {
		t.Fatalf("expected pending, got %s", settlement.Status)
	}

	// 消费的订单必须打上批次标记
	for _, order := range orders {
		var reloaded models.Order
		env.db.First(&reloaded, order.ID)
		if reloaded.SettlementID == nil || *reloaded.SettlementID != settlement.ID {
			t.Fatalf("order %d not stamped with settlement %d", order.ID, settlement.ID)
		}
	}
}

func TestCalculateSamePeriodIdempotent(t *testing.T) {
	env := setupSettlementTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	ch := createTestChannel(t, env.db, "epay_st2")
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	createPaidOrder(t, env, merchant.ID, ch.ID, ch.Code, "50.00", periodStart.Add(time.Hour))

	first, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodEnd)
	if err != nil || first == nil {
		t.Fatalf("first calculate failed: %v %v", first, err)
	}
	second, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("second calculate failed: %v", err)
	}
	if second != nil {
		t.Fatalf("same period must be a no-op, got settlement %d", second.ID)
	}
	var count int64
	env.db.Model(&models.Settlement{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 settlement, got %d", count)
	}
}

func TestCalculateMissingFeeConfig(t *testing.T) {
	env := setupSettlementTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	ch := createTestChannel(t, env.db, "epay_st3")
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	createPaidOrder(t, env, merchant.ID, ch.ID, ch.Code, "88.00", periodStart.Add(time.Hour))

	settlement, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	// 未配置费率时手续费按零计，净额等于毛额
	if !settlement.FeeAmount.Decimal.Equal(decimal.Zero) {
		t.Fatalf("expected zero fee, got %s", settlement.FeeAmount.String())
	}
	if !settlement.NetAmount.Decimal.Equal(settlement.GrossAmount.Decimal) {
		t.Fatalf("expected net == gross, got %s vs %s",
			settlement.NetAmount.String(), settlement.GrossAmount.String())
	}
}

func TestCalculateEmptyPeriod(t *testing.T) {
	env := setupSettlementTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	settlement, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if settlement != nil {
		t.Fatalf("empty period must not create a settlement")
	}
}

func TestCompleteIdempotent(t *testing.T) {
	env := setupSettlementTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	ch := createTestChannel(t, env.db, "epay_st4")
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	createPaidOrder(t, env, merchant.ID, ch.ID, ch.Code, "10.00", periodStart.Add(time.Hour))

	settlement, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodEnd)
	if err != nil || settlement == nil {
		t.Fatalf("calculate failed: %v %v", settlement, err)
	}

	completed, err := env.settlementSvc.Complete(settlement.ID)
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.Status != constants.SettlementStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}

	again, err := env.settlementSvc.Complete(settlement.ID)
	if err != nil {
		t.Fatalf("repeat complete failed: %v", err)
	}
	if again.Status != constants.SettlementStatusCompleted {
		t.Fatalf("repeat complete changed status: %s", again.Status)
	}
	if !again.CompletedAt.Equal(*completed.CompletedAt) {
		t.Fatalf("repeat complete must not move completed_at")
	}
}

func TestCompleteNotFound(t *testing.T) {
	env := setupSettlementTest(t)
	if _, err := env.settlementSvc.Complete(999999); !errors.Is(err, ErrSettlementNotFound) {
		t.Fatalf("expected ErrSettlementNotFound, got %v", err)
	}
}

func TestCalculateAgentOverSettledAccruals(t *testing.T) {
	env := setupSettlementTest(t)
	agents := buildAgentChain(t, env.serviceTestEnv, []*models.AgentCommissionRule{
		newRule(constants.CommissionRateTypePercentage, 2.0, 0),
	})
	agent := agents[0]
	merchant := createTestMerchant(t, env.db, &agent.ID)
	ch := createTestChannel(t, env.db, "epay_st5")

	for _, amount := range []string{"100.00", "250.00"} {
		order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, amount)
		if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
			t.Fatalf("accrue failed: %v", err)
		}
	}
	if _, err := env.commissionSvc.SettleAccruals(); err != nil {
		t.Fatalf("settle accruals failed: %v", err)
	}

	now := time.Now()
	settlement, err := env.settlementSvc.CalculateAgent(agent.ID, "CNY", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("calculate agent failed: %v", err)
	}
	if settlement == nil {
		t.Fatalf("expected agent settlement")
	}
	// 2% × 350 = 7，代理结算无手续费
	if !settlement.GrossAmount.Decimal.Equal(mustDecimal(t, "7")) {
		t.Fatalf("expected gross 7, got %s", settlement.GrossAmount.String())
	}
	if !settlement.FeeAmount.Decimal.Equal(decimal.Zero) {
		t.Fatalf("expected zero fee, got %s", settlement.FeeAmount.String())
	}
	if !settlement.NetAmount.Decimal.Equal(settlement.GrossAmount.Decimal) {
		t.Fatalf("expected net == gross for agent settlement")
	}
	if settlement.EntityType != constants.SettlementEntityAgent {
		t.Fatalf("expected agent entity, got %s", settlement.EntityType)
	}

	// 同周期重复计算幂等
	again, err := env.settlementSvc.CalculateAgent(agent.ID, "CNY", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat calculate agent failed: %v", err)
	}
	if again != nil {
		t.Fatalf("same period must be a no-op")
	}
}

func TestCalculateAgentOverlappingWindowsNoDoubleCount(t *testing.T) {
	env := setupSettlementTest(t)
	agents := buildAgentChain(t, env.serviceTestEnv, []*models.AgentCommissionRule{
		newRule(constants.CommissionRateTypePercentage, 1.0, 0),
	})
	agent := agents[0]
	merchant := createTestMerchant(t, env.db, &agent.ID)
	ch := createTestChannel(t, env.db, "epay_st8")

	order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, "1000.00")
	if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
		t.Fatalf("accrue failed: %v", err)
	}
	if _, err := env.commissionSvc.SettleAccruals(); err != nil {
		t.Fatalf("settle accruals failed: %v", err)
	}

	now := time.Now()
	first, err := env.settlementSvc.CalculateAgent(agent.ID, "CNY", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("first window failed: %v", err)
	}
	if first == nil || !first.NetAmount.Decimal.Equal(mustDecimal(t, "10")) {
		t.Fatalf("expected net 10 in first window, got %+v", first)
	}

	// 滑动窗口重叠：同一笔应计绝不能再次计入新批次
	second, err := env.settlementSvc.CalculateAgent(agent.ID, "CNY", now.Add(-2*time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("overlapping window failed: %v", err)
	}
	if second != nil {
		t.Fatalf("overlapping window re-counted consumed accruals: net %s", second.NetAmount.String())
	}

	var count int64
	env.db.Model(&models.Settlement{}).
		Where("entity_type = ? AND entity_id = ?", constants.SettlementEntityAgent, agent.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly 1 agent settlement, got %d", count)
	}

	// 汇入批次的应计带上批次标记
	var accrual models.CommissionAccrual
	if err := env.db.Where("agent_id = ?", agent.ID).First(&accrual).Error; err != nil {
		t.Fatalf("load accrual failed: %v", err)
	}
	if accrual.SettlementID == nil || *accrual.SettlementID != first.ID {
		t.Fatalf("accrual not stamped with settlement %d: %v", first.ID, accrual.SettlementID)
	}
}

func TestSettlementPeriodUniqueIndex(t *testing.T) {
	env := setupSettlementTest(t)
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	build := func() *models.Settlement {
		return &models.Settlement{
			EntityType:  constants.SettlementEntityMerchant,
			EntityID:    42,
			Currency:    "CNY",
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			Status:      constants.SettlementStatusPending,
		}
	}
	if err := env.db.Create(build()).Error; err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}
	// 同实体同周期的第二个批次被唯一索引挡下
	if err := env.db.Create(build()).Error; err == nil {
		t.Fatalf("duplicate period settlement must be rejected")
	}
}

func TestCalculateLargeBatchExactSums(t *testing.T) {
	env := setupSettlementTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	ch := createTestChannel(t, env.db, "epay_st9")
	feeRate := mustDecimal(t, "0.333")
	fixedFee := mustDecimal(t, "0.007")
	if err := env.merchantRepo.CreateChannelFee(&models.MerchantChannelFee{
		MerchantID: merchant.ID,
		ChannelID:  ch.ID,
		Currency:   "CNY",
		FeeRate:    models.NewMoneyFromDecimal(feeRate),
		FixedFee:   models.NewMoneyFromDecimal(fixedFee),
		IsActive:   true,
	}); err != nil {
		t.Fatalf("create channel fee failed: %v", err)
	}

	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	paidAt := periodStart.Add(time.Minute)
	hundred := decimal.NewFromInt(100)

	const orderCount = 10000
	gross := decimal.Zero
	fee := decimal.Zero
	orders := make([]models.Order, 0, orderCount)
	for i := 0; i < orderCount; i++ {
		// 0.01 到 9.97 的碎金额
		amount := decimal.NewFromInt(int64(i%997 + 1)).Div(hundred)
		gross = gross.Add(amount)
		fee = fee.Add(amount.Mul(feeRate).Div(hundred).Add(fixedFee))
		orders = append(orders, models.Order{
			OrderNo:     fmt.Sprintf("PH_BULK%06d", i),
			MerchantID:  merchant.ID,
			MerchantRef: fmt.Sprintf("MB%06d", i),
			ChannelID:   ch.ID,
			ChannelCode: ch.Code,
			Currency:    "CNY",
			Amount:      models.NewMoneyFromDecimal(amount),
			Status:      constants.OrderStatusSuccess,
			PaidAt:      &paidAt,
		})
	}
	if err := env.db.CreateInBatches(&orders, 500).Error; err != nil {
		t.Fatalf("bulk insert failed: %v", err)
	}

	settlement, err := env.settlementSvc.Calculate(merchant.ID, "CNY", periodStart, periodEnd)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if settlement == nil || settlement.OrderCount != orderCount {
		t.Fatalf("expected settlement over %d orders, got %+v", orderCount, settlement)
	}
	if !settlement.GrossAmount.Decimal.Equal(gross) {
		t.Fatalf("gross mismatch: expected %s, got %s", gross.String(), settlement.GrossAmount.String())
	}
	if !settlement.FeeAmount.Decimal.Equal(fee) {
		t.Fatalf("fee mismatch: expected %s, got %s", fee.String(), settlement.FeeAmount.String())
	}
	if !settlement.NetAmount.Decimal.Equal(gross.Sub(fee)) {
		t.Fatalf("net must equal gross minus fee exactly: %s vs %s - %s",
			settlement.NetAmount.String(), gross.String(), fee.String())
	}
}

func TestRunPeriodCoversAllMerchants(t *testing.T) {
	env := setupSettlementTest(t)
	periodStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.Add(24 * time.Hour)
	ch := createTestChannel(t, env.db, "epay_st6")

	for i := 0; i < 3; i++ {
		merchant := createTestMerchant(t, env.db, nil)
		createPaidOrder(t, env, merchant.ID, ch.ID, ch.Code, "20.00", periodStart.Add(time.Hour))
	}
	// 周期外订单不参与
	outside := createTestMerchant(t, env.db, nil)
	createPaidOrder(t, env, outside.ID, ch.ID, ch.Code, "20.00", periodEnd.Add(time.Hour))

	summary, err := env.settlementSvc.RunPeriod(periodStart, periodEnd)
	if err != nil {
		t.Fatalf("run period failed: %v", err)
	}
	if summary.MerchantSettlements != 3 {
		t.Fatalf("expected 3 merchant settlements, got %d", summary.MerchantSettlements)
	}
	if summary.AgentSettlements != 0 {
		t.Fatalf("expected 0 agent settlements, got %d", summary.AgentSettlements)
	}

	// 重跑同一周期不再产生新批次
	again, err := env.settlementSvc.RunPeriod(periodStart, periodEnd)
	if err != nil {
		t.Fatalf("rerun failed: %v", err)
	}
	if again.MerchantSettlements != 0 {
		t.Fatalf("rerun must not create settlements, got %d", again.MerchantSettlements)
	}
}
