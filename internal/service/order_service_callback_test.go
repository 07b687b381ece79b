package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/payhub-next/internal/channel/epay"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
)

const callbackTestKey = "callback-test-key"

func registerEpayAdapter(t *testing.T, env *serviceTestEnv, code string) {
	t.Helper()
	adapter, err := epay.New(code, &epay.Config{
		GatewayURL:  "https://pay.example.com",
		MerchantID:  "1000",
		MerchantKey: callbackTestKey,
	}, 0)
	if err != nil {
		t.Fatalf("build epay adapter failed: %v", err)
	}
	if err := env.registry.Register(adapter); err != nil {
		t.Fatalf("register adapter failed: %v", err)
	}
}

func epayCallbackRequest(t *testing.T, key, orderNo, amount, tradeStatus string) *http.Request {
	t.Helper()
	params := map[string]string{
		"pid":          "1000",
		"trade_no":     "EP-" + orderNo,
		"out_trade_no": orderNo,
		"money":        amount,
		"trade_status": tradeStatus,
	}
	params["sign"] = epay.Sign(params, key)
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback/epay_cb",
		strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func setupCallbackTest(t *testing.T) (*serviceTestEnv, *models.Order) {
	t.Helper()
	env := setupServiceTest(t)
	registerEpayAdapter(t, env, "epay_cb")

	// 直属代理按 1% 比例抽佣
	agent := &models.Agent{Name: "直属代理", Status: "active"}
	if err := env.agentRepo.CreateWithHierarchy(agent); err != nil {
		t.Fatalf("create agent failed: %v", err)
	}
	if err := env.agentRepo.CreateRule(&models.AgentCommissionRule{
		AgentID:     agent.ID,
		Currency:    "CNY",
		RateType:    constants.CommissionRateTypePercentage,
		RatePercent: models.NewMoneyFromDecimal(decimal.NewFromInt(1)),
		IsActive:    true,
	}); err != nil {
		t.Fatalf("create rule failed: %v", err)
	}

	merchant := createTestMerchant(t, env.db, &agent.ID)
	ch := createTestChannel(t, env.db, "epay_cb")
	order := createTestOrder(t, env.db, merchant.ID, ch.ID, ch.Code, constants.OrderStatusPending, "100.00")
	return env, order
}

func TestHandleCallbackPaid(t *testing.T) {
	env, order := setupCallbackTest(t)

	outcome, err := env.orderSvc.HandleCallback("epay_cb",
		epayCallbackRequest(t, callbackTestKey, order.OrderNo, "100.00", constants.EpayTradeStatusSuccess))
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}
	if outcome.AckBody != constants.EpayCallbackSuccess {
		t.Fatalf("unexpected ack body: %s", outcome.AckBody)
	}
	if outcome.Order.Status != constants.OrderStatusSuccess {
		t.Fatalf("expected success, got %s", outcome.Order.Status)
	}
	if outcome.Order.PaidAt == nil {
		t.Fatalf("expected paid_at to be set")
	}
	if outcome.Order.ProviderRef != "EP-"+order.OrderNo {
		t.Fatalf("unexpected provider ref: %s", outcome.Order.ProviderRef)
	}
	if got := countTransitionLogs(t, env.db, order.ID); got != 1 {
		t.Fatalf("expected exactly 1 transition log, got %d", got)
	}

	// 佣金应计在同一事务内生成
	var accruals []models.CommissionAccrual
	if err := env.db.Where("order_id = ?", order.ID).Find(&accruals).Error; err != nil {
		t.Fatalf("load accruals failed: %v", err)
	}
	if len(accruals) != 1 {
		t.Fatalf("expected 1 accrual, got %d", len(accruals))
	}
	if accruals[0].Status != constants.CommissionStatusPending {
		t.Fatalf("expected pending accrual, got %s", accruals[0].Status)
	}
	if !accruals[0].Amount.Decimal.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected commission 1 (1%% of 100), got %s", accruals[0].Amount.String())
	}
}

func TestHandleCallbackReplayIdempotent(t *testing.T) {
	env, order := setupCallbackTest(t)

	for i := 0; i < 3; i++ {
		outcome, err := env.orderSvc.HandleCallback("epay_cb",
			epayCallbackRequest(t, callbackTestKey, order.OrderNo, "100.00", constants.EpayTradeStatusSuccess))
		if err != nil {
			t.Fatalf("callback replay %d failed: %v", i, err)
		}
		if outcome.AckBody != constants.EpayCallbackSuccess {
			t.Fatalf("replay must ack success, got %s", outcome.AckBody)
		}
	}
	if got := countTransitionLogs(t, env.db, order.ID); got != 1 {
		t.Fatalf("replays must not append logs, got %d", got)
	}
	var count int64
	env.db.Model(&models.CommissionAccrual{}).Where("order_id = ?", order.ID).Count(&count)
	if count != 1 {
		t.Fatalf("replays must not duplicate accruals, got %d", count)
	}
}

func TestHandleCallbackInvalidSignature(t *testing.T) {
	env, order := setupCallbackTest(t)

	_, err := env.orderSvc.HandleCallback("epay_cb",
		epayCallbackRequest(t, "wrong-key", order.OrderNo, "100.00", constants.EpayTradeStatusSuccess))
	if !errors.Is(err, ErrCallbackInvalid) {
		t.Fatalf("expected ErrCallbackInvalid, got %v", err)
	}

	// 验签失败绝不触碰状态机
	var reloaded models.Order
	env.db.First(&reloaded, order.ID)
	if reloaded.Status != constants.OrderStatusPending {
		t.Fatalf("order must stay pending after invalid callback, got %s", reloaded.Status)
	}
	if got := countTransitionLogs(t, env.db, order.ID); got != 0 {
		t.Fatalf("invalid callback must not write logs, got %d", got)
	}
}

func TestHandleCallbackAmountMismatch(t *testing.T) {
	env, order := setupCallbackTest(t)

	_, err := env.orderSvc.HandleCallback("epay_cb",
		epayCallbackRequest(t, callbackTestKey, order.OrderNo, "99.00", constants.EpayTradeStatusSuccess))
	if !errors.Is(err, ErrCallbackInvalid) {
		t.Fatalf("expected ErrCallbackInvalid on amount mismatch, got %v", err)
	}
	var reloaded models.Order
	env.db.First(&reloaded, order.ID)
	if reloaded.Status != constants.OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", reloaded.Status)
	}
}

func TestHandleCallbackUnknownOrder(t *testing.T) {
	env, _ := setupCallbackTest(t)
	_, err := env.orderSvc.HandleCallback("epay_cb",
		epayCallbackRequest(t, callbackTestKey, "PH_UNKNOWN", "100.00", constants.EpayTradeStatusSuccess))
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestHandleCallbackFailedStatus(t *testing.T) {
	env, order := setupCallbackTest(t)

	outcome, err := env.orderSvc.HandleCallback("epay_cb",
		epayCallbackRequest(t, callbackTestKey, order.OrderNo, "100.00", "TRADE_CLOSED"))
	if err != nil {
		t.Fatalf("handle callback failed: %v", err)
	}
	if outcome.Order.Status != constants.OrderStatusFailed {
		t.Fatalf("expected failed, got %s", outcome.Order.Status)
	}
	var count int64
	env.db.Model(&models.CommissionAccrual{}).Where("order_id = ?", order.ID).Count(&count)
	if count != 0 {
		t.Fatalf("failed order must not accrue commission, got %d", count)
	}
}
