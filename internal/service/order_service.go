package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/payhub-next/internal/channel"
	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/queue"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/risk"
)

// OrderService 订单服务
type OrderService struct {
	orderRepo     *repository.GormOrderRepository
	merchantRepo  *repository.GormMerchantRepository
	channelRepo   *repository.GormPaymentChannelRepository
	commissionSvc *CommissionService
	registry      *channel.Registry
	queueClient   *queue.Client
	riskEval      risk.Evaluator

	expireAfter    time.Duration
	channelTimeout time.Duration
}

// NewOrderService 创建订单服务
func NewOrderService(
	orderRepo *repository.GormOrderRepository,
	merchantRepo *repository.GormMerchantRepository,
	channelRepo *repository.GormPaymentChannelRepository,
	commissionSvc *CommissionService,
	registry *channel.Registry,
	queueClient *queue.Client,
	riskEval risk.Evaluator,
	orderCfg *config.OrderConfig,
	channelCfg *config.ChannelConfig,
) *OrderService {
	expireAfter := 15 * time.Minute
	if orderCfg != nil && orderCfg.ExpireMinutes > 0 {
		expireAfter = time.Duration(orderCfg.ExpireMinutes) * time.Minute
	}
	channelTimeout := 10 * time.Second
	if channelCfg != nil && channelCfg.TimeoutSeconds > 0 {
		channelTimeout = time.Duration(channelCfg.TimeoutSeconds) * time.Second
	}
	return &OrderService{
		orderRepo:      orderRepo,
		merchantRepo:   merchantRepo,
		channelRepo:    channelRepo,
		commissionSvc:  commissionSvc,
		registry:       registry,
		queueClient:    queueClient,
		riskEval:       riskEval,
		expireAfter:    expireAfter,
		channelTimeout: channelTimeout,
	}
}

// CreateOrderInput 创建订单输入
type CreateOrderInput struct {
	MerchantID  uint
	MerchantRef string
	Amount      string
	Currency    string
	ChannelCode string
	PayMethod   string
	Subject     string
	NotifyURL   string
	ClientIP    string
	Context     context.Context
}

// CreateOrderResult 创建订单结果
type CreateOrderResult struct {
	Order      *models.Order
	Dispatched bool // 渠道下单是否成功
}

// CreateOrder 创建支付订单并向渠道下单。
// 渠道下单失败或超时不回滚订单，订单保持待支付，等待到期任务兜底。
func (s *OrderService) CreateOrder(input CreateOrderInput) (*CreateOrderResult, error) {
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	amount, err := models.NewMoneyFromString(strings.TrimSpace(input.Amount))
	if err != nil || amount.Decimal.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))

	merchant, err := s.merchantRepo.GetByID(input.MerchantID)
	if err != nil {
		return nil, err
	}
	if merchant == nil {
		return nil, ErrMerchantNotFound
	}
	existing, err := s.orderRepo.GetByMerchantRef(input.MerchantID, input.MerchantRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateMerchantRef
	}

	paymentChannel, err := s.channelRepo.GetByCode(input.ChannelCode)
	if err != nil {
		return nil, err
	}
	if paymentChannel == nil {
		return nil, ErrChannelNotFound
	}
	if !paymentChannel.IsActive {
		return nil, ErrChannelDisabled
	}
	adapter, err := s.registry.Get(paymentChannel.Code)
	if err != nil {
		return nil, err
	}

	// 风控前置评估：明确拒绝才拦截，评估异常放行
	evaluation, err := s.riskEval.Evaluate(ctx, risk.Transaction{
		MerchantID:  input.MerchantID,
		MerchantRef: input.MerchantRef,
		Amount:      amount.String(),
		Currency:    currency,
		ChannelCode: paymentChannel.Code,
		ClientIP:    input.ClientIP,
	})
	if err != nil {
		logger.SW().Warnw("risk_evaluate_failed", "merchant_id", input.MerchantID, "error", err)
	} else if evaluation != nil {
		if evaluation.RiskDecision == constants.RiskDecisionReject {
			logger.SW().Infow("order_create_risk_rejected",
				"merchant_id", input.MerchantID,
				"merchant_ref", input.MerchantRef,
				"risk_score", evaluation.RiskScore)
			return nil, ErrRiskRejected
		}
		if evaluation.RiskDecision == constants.RiskDecisionReview {
			logger.SW().Warnw("order_create_risk_review",
				"merchant_id", input.MerchantID,
				"merchant_ref", input.MerchantRef,
				"risk_score", evaluation.RiskScore)
		}
	}

	now := time.Now()
	expiresAt := now.Add(s.expireAfter)
	order := &models.Order{
		OrderNo:     generateOrderNo(now),
		MerchantID:  input.MerchantID,
		MerchantRef: strings.TrimSpace(input.MerchantRef),
		ChannelID:   paymentChannel.ID,
		ChannelCode: paymentChannel.Code,
		Currency:    currency,
		Amount:      amount,
		PayMethod:   strings.TrimSpace(input.PayMethod),
		NotifyURL:   strings.TrimSpace(input.NotifyURL),
		Status:      constants.OrderStatusPending,
		ClientIP:    strings.TrimSpace(input.ClientIP),
		ExpiresAt:   &expiresAt,
	}
	if err := s.orderRepo.Create(order); err != nil {
		return nil, err
	}
	logger.SW().Infow("order_created",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"merchant_id", order.MerchantID,
		"channel_code", order.ChannelCode,
		"amount", order.Amount.String(),
		"currency", order.Currency)

	if err := s.queueClient.EnqueueOrderExpire(queue.OrderExpirePayload{OrderID: order.ID}, s.expireAfter); err != nil {
		logger.SW().Warnw("order_expire_enqueue_failed", "order_id", order.ID, "error", err)
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	defer cancel()
	created, err := adapter.CreateOrder(dispatchCtx, channel.CreateOrderInput{
		OrderNo:   order.OrderNo,
		Amount:    order.Amount.String(),
		Currency:  order.Currency,
		Subject:   strings.TrimSpace(input.Subject),
		PayMethod: order.PayMethod,
		ClientIP:  order.ClientIP,
	})
	if err != nil {
		// 订单保持待支付，由到期任务兜底
		logger.SW().Warnw("channel_dispatch_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"channel_code", order.ChannelCode,
			"error", err)
		return &CreateOrderResult{Order: order, Dispatched: false}, nil
	}

	order.PayURL = created.PayURL
	order.QRCode = created.QRCode
	if created.ProviderRef != "" {
		order.ProviderRef = created.ProviderRef
	}
	if err := s.orderRepo.Update(order); err != nil {
		return nil, err
	}
	return &CreateOrderResult{Order: order, Dispatched: true}, nil
}

// GetByOrderNo 根据平台订单号查询订单
func (s *OrderService) GetByOrderNo(orderNo string) (*models.Order, error) {
	order, err := s.orderRepo.GetByOrderNo(orderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListTransitionLogs 查询订单状态流转日志
func (s *OrderService) ListTransitionLogs(orderID uint) ([]models.OrderTransitionLog, error) {
	return s.orderRepo.ListTransitionLogs(orderID)
}

// ExpireOrder 将仍处于待支付的到期订单置为已过期
func (s *OrderService) ExpireOrder(orderID uint, reason string) error {
	order, err := s.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}
	if order.Status != constants.OrderStatusPending {
		return nil
	}
	if order.ExpiresAt != nil && order.ExpiresAt.After(time.Now()) {
		return nil
	}
	_, err = s.Transition(order.ID, constants.OrderStatusExpired, reason)
	return err
}

// SweepExpiredOrders 批量扫描到期的待支付订单
func (s *OrderService) SweepExpiredOrders(limit int) (int, error) {
	orders, err := s.orderRepo.ListExpiredPending(time.Now(), limit)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, order := range orders {
		if _, err := s.Transition(order.ID, constants.OrderStatusExpired, "expire_sweep"); err != nil {
			logger.SW().Warnw("order_expire_sweep_failed", "order_id", order.ID, "error", err)
			continue
		}
		expired++
	}
	return expired, nil
}

// RefundInput 退款输入
type RefundInput struct {
	OrderNo string
	Amount  string
	Reason  string
	Context context.Context
}

// Refund 发起退款。订单必须处于成功状态，
// 累计退款不得超过原订单金额。
func (s *OrderService) Refund(input RefundInput) (*models.Order, error) {
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}
	order, err := s.GetByOrderNo(input.OrderNo)
	if err != nil {
		return nil, err
	}
	if order.Status != constants.OrderStatusSuccess {
		return nil, ErrOrderNotRefundable
	}
	amount, err := models.NewMoneyFromString(strings.TrimSpace(input.Amount))
	if err != nil || amount.Decimal.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	newTotal := models.NewMoneyFromDecimal(order.RefundedTotal.Decimal.Add(amount.Decimal))
	if newTotal.Decimal.GreaterThan(order.Amount.Decimal) {
		return nil, ErrRefundExceedsAmount
	}

	adapter, err := s.registry.Get(order.ChannelCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.Transition(order.ID, constants.OrderStatusRefunding, input.Reason); err != nil {
		return nil, err
	}

	refundCtx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	defer cancel()
	if _, err := adapter.Refund(refundCtx, channel.RefundInput{
		OrderNo:     order.OrderNo,
		RefundNo:    fmt.Sprintf("%s-R%d", order.OrderNo, time.Now().Unix()),
		Amount:      amount.String(),
		TotalAmount: order.Amount.String(),
		Currency:    order.Currency,
		Reason:      input.Reason,
	}); err != nil {
		// 渠道退款失败时订单停留在退款中，等待人工或重试处理
		logger.SW().Errorw("channel_refund_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"error", err)
		return nil, err
	}

	return s.Transition(order.ID, constants.OrderStatusRefunded, input.Reason,
		WithRefundedTotal(newTotal))
}

// generateOrderNo 生成平台订单号
func generateOrderNo(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("PH%s%06d", now.Format("20060102150405"), suffix)
}
