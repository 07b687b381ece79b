package queue

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/payhub-next/internal/constants"
)

const (
	// TaskOrderStatusNotify 订单状态变更商户通知任务
	TaskOrderStatusNotify = constants.TaskOrderStatusNotify
	// TaskOrderExpire 订单到期处理任务
	TaskOrderExpire = constants.TaskOrderExpire
)

// OrderStatusNotifyPayload 状态变更通知任务载荷
type OrderStatusNotifyPayload struct {
	OrderID    uint   `json:"order_id"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// OrderExpirePayload 订单到期任务载荷
type OrderExpirePayload struct {
	OrderID uint `json:"order_id"`
}

// NewOrderStatusNotifyTask 创建状态变更通知任务
func NewOrderStatusNotifyTask(payload OrderStatusNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderStatusNotify, body), nil
}

// NewOrderExpireTask 创建订单到期任务
func NewOrderExpireTask(payload OrderExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderExpire, body), nil
}
