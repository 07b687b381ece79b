package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
)

func newRule(rateType string, ratePercent, fixedAmount float64) *models.AgentCommissionRule {
	return &models.AgentCommissionRule{
		RateType:    rateType,
		RatePercent: models.NewMoneyFromDecimal(decimal.NewFromFloat(ratePercent)),
		FixedAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(fixedAmount)),
	}
}

func TestComputeCommissionPercentage(t *testing.T) {
	got, err := computeCommission(newRule(constants.CommissionRateTypePercentage, 1.5, 0),
		decimal.NewFromInt(200), decimal.Zero)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3 (1.5%% of 200), got %s", got.String())
	}
}

func TestComputeCommissionFixed(t *testing.T) {
	got, err := computeCommission(newRule(constants.CommissionRateTypeFixed, 0, 2.5),
		decimal.NewFromInt(200), decimal.Zero)
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !got.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("expected fixed 2.5, got %s", got.String())
	}
}

func TestComputeCommissionMarkup(t *testing.T) {
	// 下游费率 1.2%，自身成本 0.8%，贴水 0.4%
	got, err := computeCommission(newRule(constants.CommissionRateTypeMarkup, 0.8, 0),
		decimal.NewFromInt(1000), decimal.NewFromFloat(1.2))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("expected 4 (0.4%% of 1000), got %s", got.String())
	}
}

func TestComputeCommissionMarkupClampedToZero(t *testing.T) {
	// 自身成本高于下游费率时贴水为负，佣金按零处理
	got, err := computeCommission(newRule(constants.CommissionRateTypeMarkup, 2.0, 0),
		decimal.NewFromInt(1000), decimal.NewFromFloat(1.2))
	if err != nil {
		t.Fatalf("compute failed: %v", err)
	}
	if !got.Equal(decimal.Zero) {
		t.Fatalf("expected 0 for negative markup, got %s", got.String())
	}
}

func TestComputeCommissionUnknownType(t *testing.T) {
	_, err := computeCommission(newRule("mystery", 1, 0), decimal.NewFromInt(100), decimal.Zero)
	if !errors.Is(err, ErrUnknownCommissionRateType) {
		t.Fatalf("expected ErrUnknownCommissionRateType, got %v", err)
	}
}

// buildAgentChain 建立三级代理链并返回自顶向下的代理列表
func buildAgentChain(t *testing.T, env *serviceTestEnv, rules []*models.AgentCommissionRule) []*models.Agent {
	t.Helper()
	agents := make([]*models.Agent, 0, len(rules))
	var parentID *uint
	for i, rule := range rules {
		agent := &models.Agent{Name: "代理", ParentID: parentID, Status: "active"}
		if err := env.agentRepo.CreateWithHierarchy(agent); err != nil {
			t.Fatalf("create agent %d failed: %v", i, err)
		}
		if rule != nil {
			rule.AgentID = agent.ID
			rule.Currency = "CNY"
			rule.IsActive = true
			if err := env.agentRepo.CreateRule(rule); err != nil {
				t.Fatalf("create rule %d failed: %v", i, err)
			}
		}
		id := agent.ID
		parentID = &id
		agents = append(agents, agent)
	}
	return agents
}

func TestAccrueForOrderHierarchy(t *testing.T) {
	env := setupServiceTest(t)

	// 总代 markup 0.3%（对照直属代理 0.8%）→ 贴水 0.5%
	// 中间代理 fixed 1.5
	// 直属代理 percentage 0.8%
	agents := buildAgentChain(t, env, []*models.AgentCommissionRule{
		newRule(constants.CommissionRateTypeMarkup, 0.3, 0),
		newRule(constants.CommissionRateTypeFixed, 0, 1.5),
		newRule(constants.CommissionRateTypePercentage, 0.8, 0),
	})
	direct := agents[2]

	merchant := createTestMerchant(t, env.db, &direct.ID)
	ch := createTestChannel(t, env.db, "epay_comm")
	if err := env.merchantRepo.CreateChannelFee(&models.MerchantChannelFee{
		MerchantID: merchant.ID,
		ChannelID:  ch.ID,
		Currency:   "CNY",
		FeeRate:    models.NewMoneyFromDecimal(decimal.NewFromFloat(1.2)),
		IsActive:   true,
	}); err != nil {
		t.Fatalf("create channel fee failed: %v", err)
	}
	order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, "1000.00")

	if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
		t.Fatalf("accrue failed: %v", err)
	}

	expected := map[uint]decimal.Decimal{
		agents[0].ID: decimal.NewFromInt(5),              // (0.8-0.3)% × 1000
		agents[1].ID: decimal.NewFromFloat(1.5),          // 固定
		direct.ID:    decimal.NewFromInt(8),              // 0.8% × 1000
	}
	var accruals []models.CommissionAccrual
	if err := env.db.Where("order_id = ?", order.ID).Find(&accruals).Error; err != nil {
		t.Fatalf("load accruals failed: %v", err)
	}
	if len(accruals) != len(expected) {
		t.Fatalf("expected %d accruals, got %d", len(expected), len(accruals))
	}
	for _, accrual := range accruals {
		want, ok := expected[accrual.AgentID]
		if !ok {
			t.Fatalf("unexpected accrual for agent %d", accrual.AgentID)
		}
		if !accrual.Amount.Decimal.Equal(want) {
			t.Fatalf("agent %d: expected %s, got %s", accrual.AgentID, want.String(), accrual.Amount.String())
		}
	}

	// 幂等：重复应计不产生新行
	if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
		t.Fatalf("repeat accrue failed: %v", err)
	}
	var count int64
	env.db.Model(&models.CommissionAccrual{}).Where("order_id = ?", order.ID).Count(&count)
	if count != int64(len(expected)) {
		t.Fatalf("repeat accrue must not duplicate rows, got %d", count)
	}
}

func TestAccrueForOrderAncestorMarkupBaseline(t *testing.T) {
	env := setupServiceTest(t)

	// 祖先 markup 基准是直属代理费率而非商户费率：
	// 直属 1.0%，祖先 markup 1.5% → 贴水为负 → 无应计
	agents := buildAgentChain(t, env, []*models.AgentCommissionRule{
		newRule(constants.CommissionRateTypeMarkup, 1.5, 0),
		newRule(constants.CommissionRateTypePercentage, 1.0, 0),
	})
	direct := agents[1]

	merchant := createTestMerchant(t, env.db, &direct.ID)
	ch := createTestChannel(t, env.db, "epay_comm2")
	if err := env.merchantRepo.CreateChannelFee(&models.MerchantChannelFee{
		MerchantID: merchant.ID,
		ChannelID:  ch.ID,
		Currency:   "CNY",
		FeeRate:    models.NewMoneyFromDecimal(decimal.NewFromFloat(3.0)),
		IsActive:   true,
	}); err != nil {
		t.Fatalf("create channel fee failed: %v", err)
	}
	order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, "1000.00")

	if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
		t.Fatalf("accrue failed: %v", err)
	}
	var count int64
	env.db.Model(&models.CommissionAccrual{}).
		Where("order_id = ? AND agent_id = ?", order.ID, agents[0].ID).Count(&count)
	if count != 0 {
		t.Fatalf("negative markup ancestor must not accrue, got %d rows", count)
	}
}

func TestAccrueForOrderNoAgent(t *testing.T) {
	env := setupServiceTest(t)
	merchant := createTestMerchant(t, env.db, nil)
	ch := createTestChannel(t, env.db, "epay_comm3")
	order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, "100.00")

	if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
		t.Fatalf("accrue without agent must be a no-op: %v", err)
	}
	var count int64
	env.db.Model(&models.CommissionAccrual{}).Where("order_id = ?", order.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no accruals, got %d", count)
	}
}

func TestAccrueForOrderUnknownRateTypeAborts(t *testing.T) {
	env := setupServiceTest(t)
	agents := buildAgentChain(t, env, []*models.AgentCommissionRule{
		newRule("mystery", 1, 0),
	})
	merchant := createTestMerchant(t, env.db, &agents[0].ID)
	ch := createTestChannel(t, env.db, "epay_comm4")
	order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, "100.00")

	if err := env.commissionSvc.AccrueForOrder(env.db, order); !errors.Is(err, ErrUnknownCommissionRateType) {
		t.Fatalf("expected ErrUnknownCommissionRateType, got %v", err)
	}
}

func TestSettleAccrualsConservation(t *testing.T) {
	env := setupServiceTest(t)
	agents := buildAgentChain(t, env, []*models.AgentCommissionRule{
		newRule(constants.CommissionRateTypePercentage, 1.0, 0),
	})
	direct := agents[0]
	merchant := createTestMerchant(t, env.db, &direct.ID)
	ch := createTestChannel(t, env.db, "epay_settle")

	// 多笔奇数金额订单，验证精确小数守恒
	amounts := []string{"33.33", "19.99", "0.01", "123.45", "7.77"}
	total := decimal.Zero
	for _, amount := range amounts {
		order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusSuccess, amount)
		if err := env.commissionSvc.AccrueForOrder(env.db, order); err != nil {
			t.Fatalf("accrue failed: %v", err)
		}
		value, _ := decimal.NewFromString(amount)
		total = total.Add(value.Div(decimal.NewFromInt(100)))
	}

	summary, err := env.commissionSvc.SettleAccruals()
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if summary.Accruals != len(amounts) {
		t.Fatalf("expected %d settled accruals, got %d", len(amounts), summary.Accruals)
	}
	if summary.Groups != 1 {
		t.Fatalf("expected 1 group, got %d", summary.Groups)
	}

	// 余额 == 全部应计之和，逐笔精确相加
	balance, err := env.agentRepo.GetBalance(direct.ID, "CNY")
	if err != nil {
		t.Fatalf("get balance failed: %v", err)
	}
	if balance == nil || !balance.Balance.Decimal.Equal(total) {
		got := "nil"
		if balance != nil {
			got = balance.Balance.String()
		}
		t.Fatalf("expected balance %s, got %s", total.String(), got)
	}

	// 全部应计翻转为已结算
	var pending int64
	env.db.Model(&models.CommissionAccrual{}).
		Where("agent_id = ? AND status = ?", direct.ID, constants.CommissionStatusPending).Count(&pending)
	if pending != 0 {
		t.Fatalf("expected no pending accruals, got %d", pending)
	}

	// 重复结算不重复入账
	if _, err := env.commissionSvc.SettleAccruals(); err != nil {
		t.Fatalf("repeat settle failed: %v", err)
	}
	balance, _ = env.agentRepo.GetBalance(direct.ID, "CNY")
	if !balance.Balance.Decimal.Equal(total) {
		t.Fatalf("repeat settle must not change balance, got %s", balance.Balance.String())
	}
}
