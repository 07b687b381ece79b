package service

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/queue"
)

// transitionTable 订单状态流转表。
// failed / expired / refunded 为终态，不允许任何出边。
var transitionTable = map[string][]string{
	constants.OrderStatusPending: {
		constants.OrderStatusProcessing,
		constants.OrderStatusSuccess,
		constants.OrderStatusExpired,
		constants.OrderStatusFailed,
	},
	constants.OrderStatusProcessing: {
		constants.OrderStatusSuccess,
		constants.OrderStatusFailed,
		constants.OrderStatusRefunding,
	},
	constants.OrderStatusSuccess: {
		constants.OrderStatusRefunding,
	},
	constants.OrderStatusRefunding: {
		constants.OrderStatusRefunded,
		constants.OrderStatusFailed,
	},
}

// isTransitionAllowed 校验状态流转是否合法
func isTransitionAllowed(from, to string) bool {
	for _, allowed := range transitionTable[strings.ToLower(strings.TrimSpace(from))] {
		if allowed == strings.ToLower(strings.TrimSpace(to)) {
			return true
		}
	}
	return false
}

// TransitionOption 流转时随状态一起落库的订单字段修改
type TransitionOption func(order *models.Order, now time.Time)

// WithPaidInfo 流转为成功时写入支付信息
func WithPaidInfo(providerRef string, paidAt *time.Time) TransitionOption {
	return func(order *models.Order, now time.Time) {
		if strings.TrimSpace(providerRef) != "" {
			order.ProviderRef = strings.TrimSpace(providerRef)
		}
		if paidAt != nil {
			order.PaidAt = paidAt
		} else {
			order.PaidAt = &now
		}
	}
}

// WithRefundedTotal 更新累计退款金额
func WithRefundedTotal(total models.Money) TransitionOption {
	return func(order *models.Order, now time.Time) {
		order.RefundedTotal = total
	}
}

// Transition 在单个事务内完成一次状态流转：
// 行锁读取订单、按流转表校验、写入新状态、追加流转日志。
// 事务提交后推送状态变更通知任务（至少一次送达）。
// 目标状态与当前一致时记录尝试但不报错、不写日志行。
func (s *OrderService) Transition(orderID uint, target, reason string, extra ...TransitionOption) (*models.Order, error) {
	target = strings.ToLower(strings.TrimSpace(target))
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
		fromStatus = order.Status
		if order.Status == target {
			logger.SW().Infow("order_transition_noop",
				"order_id", orderID,
				"status", target,
				"reason", reason)
			updated = order
			return nil
		}
		if !isTransitionAllowed(order.Status, target) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, target)
		}

		now := time.Now()
		order.Status = target
		for _, apply := range extra {
			apply(order, now)
		}
		if err := orderRepo.Update(order); err != nil {
			return err
		}
		if err := orderRepo.AppendTransitionLog(&models.OrderTransitionLog{
			OrderID:    order.ID,
			FromStatus: fromStatus,
			ToStatus:   target,
			Reason:     reason,
		}); err != nil {
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
		logger.SW().Infow("order_transitioned",
			"order_id", orderID,
			"from_status", fromStatus,
			"to_status", target,
			"reason", reason)
		if err := s.queueClient.EnqueueOrderStatusNotify(queue.OrderStatusNotifyPayload{
			OrderID:    orderID,
			FromStatus: fromStatus,
			ToStatus:   target,
		}); err != nil {
			logger.SW().Warnw("order_status_notify_enqueue_failed",
				"order_id", orderID,
				"to_status", target,
				"error", err)
		}
	}
	return updated, nil
}
