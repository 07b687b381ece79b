package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/provider"
	"github.com/payhub-next/internal/queue"
	"github.com/payhub-next/internal/service"
)

const notifyTimeout = 10 * time.Second

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container

	httpClient *http.Client
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container:  c,
		httpClient: &http.Client{Timeout: notifyTimeout},
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderStatusNotify, c.handleOrderStatusNotify)
	mux.HandleFunc(queue.TaskOrderExpire, c.handleOrderExpire)
}

// handleOrderStatusNotify 向商户回调地址推送订单状态变更。
// 至少送达一次，商户侧需按订单号幂等消费。
func (c *Consumer) handleOrderStatusNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_status_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderStatusNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_status_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_status_notify_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	order, err := c.OrderRepo.GetByID(payload.OrderID)
	if err != nil {
		logger.Warnw("worker_order_status_notify_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_order_status_notify_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	}
	notifyURL := strings.TrimSpace(order.NotifyURL)
	if notifyURL == "" {
		logger.Debugw("worker_order_status_notify_skip_empty_url",
			"order_id", order.ID,
			"order_no", order.OrderNo)
		return nil
	}
	if err := c.postOrderNotify(ctx, notifyURL, order, payload); err != nil {
		logger.Warnw("worker_order_status_notify_send_failed",
			"order_id", order.ID,
			"order_no", order.OrderNo,
			"notify_url", notifyURL,
			"error", err)
		return err
	}
	logger.Infow("worker_order_status_notify_sent",
		"order_id", order.ID,
		"order_no", order.OrderNo,
		"to_status", payload.ToStatus)
	return nil
}

func (c *Consumer) postOrderNotify(ctx context.Context, notifyURL string, order *models.Order, payload queue.OrderStatusNotifyPayload) error {
	body, err := json.Marshal(map[string]interface{}{
		"order_no":     order.OrderNo,
		"merchant_ref": order.MerchantRef,
		"amount":       order.Amount.String(),
		"currency":     order.Currency,
		"from_status":  payload.FromStatus,
		"to_status":    payload.ToStatus,
		"status":       order.Status,
		"provider_ref": order.ProviderRef,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("merchant notify endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// handleOrderExpire 处理延迟的订单到期任务
func (c *Consumer) handleOrderExpire(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_order_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_expire_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_order_expire_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if err := c.OrderService.ExpireOrder(payload.OrderID, "expire_task"); err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			logger.Debugw("worker_order_expire_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		case errors.Is(err, service.ErrInvalidTransition):
			// 任务触达时订单已进入终态，到期自然失效
			logger.Debugw("worker_order_expire_skip_terminal", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_order_expire_failed", "order_id", payload.OrderID, "error", err)
			return err
		}
	}
	return nil
}
