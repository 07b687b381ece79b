package models

import (
	"time"

	"gorm.io/gorm"
)

// CommissionAccrual 佣金应计记录（订单成功时生成，批量结算时翻转状态）
type CommissionAccrual struct {
	ID           uint           `gorm:"primarykey" json:"id"`                                               // 主键
	AgentID      uint           `gorm:"not null;index;index:idx_commission_accrual,unique" json:"agent_id"` // 代理ID
	OrderID      uint           `gorm:"not null;index;index:idx_commission_accrual,unique" json:"order_id"` // 来源订单ID
	Currency     string         `gorm:"type:varchar(8);not null" json:"currency"`                           // 币种
	RateType     string         `gorm:"type:varchar(20);not null" json:"rate_type"`                         // 计算时使用的费率模型
	Amount       Money          `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`                // 佣金金额
	Status       string         `gorm:"type:varchar(20);not null;index" json:"status"`                      // 状态（pending/settled）
	SettledAt    *time.Time     `gorm:"index" json:"settled_at,omitempty"`                                  // 结算时间
	SettlementID *uint          `gorm:"index" json:"settlement_id,omitempty"`                               // 代理结算批次ID（未汇入批次为空）
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                                            // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                                            // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                                     // 软删除时间
}

// TableName 指定表名
func (CommissionAccrual) TableName() string {
	return "commission_accruals"
}
