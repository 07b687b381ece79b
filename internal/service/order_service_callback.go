package service

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/queue"
)

// CallbackOutcome 回调处理结果
type CallbackOutcome struct {
	Order   *models.Order
	AckBody string // 应答给渠道的响应体
}

// HandleCallback 处理渠道异步回调。
// 先验签后落库，验签失败绝不触碰状态机；
// 成功回调在单个事务内完成状态流转、流转日志与佣金应计，
// 重放回调幂等应答成功。
func (s *OrderService) HandleCallback(channelCode string, req *http.Request) (*CallbackOutcome, error) {
	adapter, err := s.registry.Get(channelCode)
	if err != nil {
		return nil, err
	}
	result, err := adapter.VerifyCallback(req)
	if err != nil {
		logger.SW().Warnw("payment_callback_verify_failed",
			"channel_code", channelCode,
			"error", err)
		return nil, fmt.Errorf("%w: %v", ErrCallbackInvalid, err)
	}
	logger.SW().Infow("payment_callback_received",
		"channel_code", channelCode,
		"order_no", result.OrderNo,
		"channel_status", result.Status,
		"provider_ref", result.ProviderRef)

	order, err := s.orderRepo.GetByOrderNo(result.OrderNo)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if strings.TrimSpace(result.Amount) != "" {
		claimed, parseErr := models.NewMoneyFromString(result.Amount)
		if parseErr != nil || !claimed.Decimal.Equal(order.Amount.Decimal) {
			logger.SW().Warnw("payment_callback_amount_mismatch",
				"order_no", order.OrderNo,
				"order_amount", order.Amount.String(),
				"callback_amount", result.Amount)
			return nil, fmt.Errorf("%w: amount mismatch", ErrCallbackInvalid)
		}
	}

	switch result.Status {
	case constants.ChannelStatusPaid:
		updated, err := s.markOrderPaid(order.ID, result.ProviderRef, result.PaidAt)
		if err != nil {
			return nil, err
		}
		return &CallbackOutcome{Order: updated, AckBody: result.AckBody}, nil
	case constants.ChannelStatusFailed:
		updated, err := s.Transition(order.ID, constants.OrderStatusFailed, "channel_callback_failed")
		if err != nil {
			return nil, err
		}
		return &CallbackOutcome{Order: updated, AckBody: result.AckBody}, nil
	default:
		// pending 等中间状态只记录，不流转
		logger.SW().Infow("payment_callback_ignored",
			"order_no", order.OrderNo,
			"channel_status", result.Status)
		return &CallbackOutcome{Order: order, AckBody: result.AckBody}, nil
	}
}

// markOrderPaid 在单个事务内将订单置为成功并生成佣金应计。
// 已成功的订单直接返回，保证回调重放幂等。
func (s *OrderService) markOrderPaid(orderID uint, providerRef string, paidAt *time.Time) (*models.Order, error) {
	var updated *models.Order
	var fromStatus string
	changed := false

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		order, err := orderRepo.GetByIDForUpdate(orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return ErrOrderNotFound
		}
		if order.Status == constants.OrderStatusSuccess {
			updated = order
			return nil
		}
		if !isTransitionAllowed(order.Status, constants.OrderStatusSuccess) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, constants.OrderStatusSuccess)
		}

		now := time.Now()
		fromStatus = order.Status
		order.Status = constants.OrderStatusSuccess
		if strings.TrimSpace(providerRef) != "" {
			order.ProviderRef = strings.TrimSpace(providerRef)
		}
		if paidAt != nil {
			order.PaidAt = paidAt
		} else {
			order.PaidAt = &now
		}
		if err := orderRepo.Update(order); err != nil {
			return err
		}
		if err := orderRepo.AppendTransitionLog(&models.OrderTransitionLog{
			OrderID:    order.ID,
			FromStatus: fromStatus,
			ToStatus:   constants.OrderStatusSuccess,
			Reason:     "channel_callback_paid",
		}); err != nil {
			return err
		}
		if err := s.commissionSvc.AccrueForOrder(tx, order); err != nil {
			return err
		}
		updated = order
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		logger.SW().Infow("order_marked_paid",
			"order_id", orderID,
			"from_status", fromStatus,
			"provider_ref", providerRef)
		if err := s.queueClient.EnqueueOrderStatusNotify(queue.OrderStatusNotifyPayload{
			OrderID:    orderID,
			FromStatus: fromStatus,
			ToStatus:   constants.OrderStatusSuccess,
		}); err != nil {
			logger.SW().Warnw("order_status_notify_enqueue_failed",
				"order_id", orderID,
				"error", err)
		}
	}
	return updated, nil
}
