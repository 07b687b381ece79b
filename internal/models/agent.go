package models

import (
	"time"

	"gorm.io/gorm"
)

// Agent 代理表
type Agent struct {
	ID        uint           `gorm:"primarykey" json:"id"`                          // 主键
	Name      string         `gorm:"not null" json:"name"`                          // 代理名称
	ParentID  *uint          `gorm:"index" json:"parent_id,omitempty"`              // 上级代理ID（顶级为空）
	Status    string         `gorm:"type:varchar(20);not null;index" json:"status"` // 状态
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Agent) TableName() string {
	return "agents"
}

// AgentHierarchy 代理层级闭包表（ancestor→descendant，depth 0 为自身）
// 建档时一次性写入，层级关系不可改写。
type AgentHierarchy struct {
	ID           uint `gorm:"primarykey" json:"id"`                                                // 主键
	AncestorID   uint `gorm:"not null;index;index:idx_agent_closure,unique" json:"ancestor_id"`    // 祖先代理ID
	DescendantID uint `gorm:"not null;index;index:idx_agent_closure,unique" json:"descendant_id"`  // 后代代理ID
	Depth        int  `gorm:"not null" json:"depth"`                                               // 层级距离（0 为自身）
}

// TableName 指定表名
func (AgentHierarchy) TableName() string {
	return "agent_hierarchies"
}

// AgentCommissionRule 代理佣金规则
type AgentCommissionRule struct {
	ID          uint           `gorm:"primarykey" json:"id"`                                   // 主键
	AgentID     uint           `gorm:"not null;index" json:"agent_id"`                         // 代理ID
	Currency    string         `gorm:"type:varchar(8);not null" json:"currency"`               // 币种
	RateType    string         `gorm:"type:varchar(20);not null" json:"rate_type"`             // 费率模型（percentage/fixed/markup）
	RatePercent Money          `gorm:"type:decimal(10,4);not null;default:0" json:"rate_percent"` // 比例（百分比）
	FixedAmount Money          `gorm:"type:decimal(20,4);not null;default:0" json:"fixed_amount"` // 固定金额
	IsActive    bool           `gorm:"not null;default:true" json:"is_active"`                 // 是否启用
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt   time.Time      `gorm:"index" json:"updated_at"`                                // 更新时间
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`                                         // 软删除时间
}

// TableName 指定表名
func (AgentCommissionRule) TableName() string {
	return "agent_commission_rules"
}

// AgentBalance 代理币种余额（仅由佣金批量结算入账）
type AgentBalance struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                           // 主键
	AgentID   uint      `gorm:"not null;index:idx_agent_balance,unique" json:"agent_id"`        // 代理ID
	Currency  string    `gorm:"type:varchar(8);not null;index:idx_agent_balance,unique" json:"currency"` // 币种
	Balance   Money     `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`           // 当前余额
	CreatedAt time.Time `gorm:"index" json:"created_at"`                                        // 创建时间
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`                                        // 更新时间
}

// TableName 指定表名
func (AgentBalance) TableName() string {
	return "agent_balances"
}
