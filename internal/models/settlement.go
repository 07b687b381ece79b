package models

import (
	"time"

	"gorm.io/gorm"
)

// Settlement 结算批次
type Settlement struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                   // 主键
	EntityType  string         `gorm:"type:varchar(20);not null;index;index:idx_settlement_period,unique" json:"entity_type"` // 实体类型（merchant/agent）
	EntityID    uint           `gorm:"not null;index;index:idx_settlement_period,unique" json:"entity_id"`                    // 实体ID
	Currency    string         `gorm:"type:varchar(8);not null;index:idx_settlement_period,unique" json:"currency"`           // 币种
	PeriodStart time.Time      `gorm:"not null;index:idx_settlement_period,unique" json:"period_start"`                       // 结算周期起
	PeriodEnd   time.Time      `gorm:"not null;index:idx_settlement_period,unique" json:"period_end"`                         // 结算周期止
	GrossAmount Money          `gorm:"type:decimal(20,4);not null;default:0" json:"gross_amount"` // 毛额
	FeeAmount   Money          `gorm:"type:decimal(20,4);not null;default:0" json:"fee_amount"`   // 手续费
	NetAmount   Money          `gorm:"type:decimal(20,4);not null;default:0" json:"net_amount"`   // 净额
	OrderCount  int64          `gorm:"not null;default:0" json:"order_count"`                  // 覆盖的订单数
	Status      string         `gorm:"type:varchar(20);not null;index" json:"status"`          // 状态（pending/completed）
	CompletedAt *time.Time     `gorm:"index" json:"completed_at,omitempty"`                    // 完成时间
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (Settlement) TableName() string {
	return "settlements"
}

// Withdrawal 提现申请
type Withdrawal struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                    // 主键
	EntityType    string         `gorm:"type:varchar(20);not null;index" json:"entity_type"`      // 实体类型（merchant/agent）
	EntityID      uint           `gorm:"not null;index" json:"entity_id"`                         // 实体ID
	Currency      string         `gorm:"type:varchar(8);not null" json:"currency"`                // 币种
	Amount        Money          `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`     // 申请金额
	Fee           Money          `gorm:"type:decimal(20,4);not null;default:0" json:"fee"`        // 提现手续费
	PayoutAmount  Money          `gorm:"type:decimal(20,4);not null;default:0" json:"payout_amount"` // 实际到账金额
	PayoutDetails JSON           `gorm:"type:json" json:"payout_details"`                         // 收款信息
	Status        string         `gorm:"type:varchar(20);not null;index" json:"status"`           // 状态
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                                 // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                                 // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                          // 软删除时间
}

// TableName 指定表名
func (Withdrawal) TableName() string {
	return "withdrawals"
}
