package models

import "time"

// OrderTransitionLog 订单状态流转日志（只追加，不更新）
type OrderTransitionLog struct {
	ID         uint      `gorm:"primarykey" json:"id"`                          // 主键
	OrderID    uint      `gorm:"index;not null" json:"order_id"`                // 订单ID
	FromStatus string    `gorm:"type:varchar(32);not null" json:"from_status"`  // 原状态
	ToStatus   string    `gorm:"type:varchar(32);not null" json:"to_status"`    // 目标状态
	Reason     string    `gorm:"type:varchar(255)" json:"reason"`               // 流转原因
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                       // 创建时间
}

// TableName 指定表名
func (OrderTransitionLog) TableName() string {
	return "order_transition_logs"
}
