package models

import (
	"time"

	"gorm.io/gorm"
)

// Merchant 商户表
type Merchant struct {
	ID        uint           `gorm:"primarykey" json:"id"`                          // 主键
	Name      string         `gorm:"not null" json:"name"`                          // 商户名称
	AgentID   *uint          `gorm:"index" json:"agent_id,omitempty"`               // 直属代理ID（可为空）
	Status    string         `gorm:"type:varchar(20);not null;index" json:"status"` // 状态
	CreatedAt time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Merchant) TableName() string {
	return "merchants"
}

// MerchantChannelFee 商户渠道费率配置
type MerchantChannelFee struct {
	ID         uint           `gorm:"primarykey" json:"id"`                                            // 主键
	MerchantID uint           `gorm:"not null;index:idx_merchant_channel_fee,unique" json:"merchant_id"` // 商户ID
	ChannelID  uint           `gorm:"not null;index:idx_merchant_channel_fee,unique" json:"channel_id"`  // 渠道ID
	Currency   string         `gorm:"type:varchar(8);not null;index:idx_merchant_channel_fee,unique" json:"currency"` // 币种
	FeeRate    Money          `gorm:"type:decimal(10,4);not null;default:0" json:"fee_rate"`           // 手续费比例（百分比）
	FixedFee   Money          `gorm:"type:decimal(20,4);not null;default:0" json:"fixed_fee"`          // 单笔固定手续费
	IsActive   bool           `gorm:"not null;default:true" json:"is_active"`                          // 是否启用
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`                                         // 创建时间
	UpdatedAt  time.Time      `gorm:"index" json:"updated_at"`                                         // 更新时间
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`                                                  // 软删除时间
}

// TableName 指定表名
func (MerchantChannelFee) TableName() string {
	return "merchant_channel_fees"
}
