package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 支付订单表
type Order struct {
	ID            uint           `gorm:"primarykey" json:"id"`                                 // 主键
	OrderNo       string         `gorm:"uniqueIndex;not null" json:"order_no"`                 // 平台订单号
	MerchantID    uint           `gorm:"index;not null" json:"merchant_id"`                    // 商户ID
	MerchantRef   string         `gorm:"index;not null" json:"merchant_ref"`                   // 商户侧订单号
	ChannelID     uint           `gorm:"index;not null" json:"channel_id"`                     // 支付渠道ID
	ChannelCode   string         `gorm:"index;not null" json:"channel_code"`                   // 渠道编码
	Currency      string         `gorm:"type:varchar(8);not null" json:"currency"`             // 币种
	Amount        Money          `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`  // 订单金额
	PayMethod     string         `gorm:"type:varchar(32)" json:"pay_method,omitempty"`         // 支付方式
	NotifyURL     string         `gorm:"type:text" json:"notify_url,omitempty"`                // 商户异步通知地址
	Status        string         `gorm:"index;not null" json:"status"`                         // 订单状态
	ProviderRef   string         `gorm:"index" json:"provider_ref,omitempty"`                  // 渠道流水号（成功时写入）
	SettlementID  *uint          `gorm:"index" json:"settlement_id,omitempty"`                 // 结算批次ID（未结算为空）
	RefundedTotal Money          `gorm:"type:decimal(20,4);not null;default:0" json:"refunded_total"` // 累计退款金额
	ClientIP      string         `gorm:"type:varchar(64)" json:"client_ip,omitempty"`          // 下单客户端IP
	PayURL        string         `gorm:"type:text" json:"pay_url,omitempty"`                   // 跳转链接
	QRCode        string         `gorm:"type:text" json:"qr_code,omitempty"`                   // 二维码内容
	ExpiresAt     *time.Time     `gorm:"index" json:"expires_at,omitempty"`                    // 过期时间
	PaidAt        *time.Time     `gorm:"index" json:"paid_at,omitempty"`                       // 支付时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                              // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                              // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                       // 软删除时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// IsTerminal 判断订单是否处于终态
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case "failed", "expired", "refunded":
		return true
	}
	return false
}
