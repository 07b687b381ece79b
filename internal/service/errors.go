package service

import "errors"

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrMerchantNotFound 商户不存在
	ErrMerchantNotFound = errors.New("merchant not found")
	// ErrChannelNotFound 支付渠道不存在
	ErrChannelNotFound = errors.New("payment channel not found")
	// ErrChannelDisabled 支付渠道已停用
	ErrChannelDisabled = errors.New("payment channel disabled")
	// ErrDuplicateMerchantRef 商户订单号重复
	ErrDuplicateMerchantRef = errors.New("merchant order reference already exists")
	// ErrInvalidAmount 金额非法
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidTransition 非法状态流转
	ErrInvalidTransition = errors.New("invalid order state transition")
	// ErrCallbackInvalid 回调验签失败
	ErrCallbackInvalid = errors.New("callback verification failed")
	// ErrOrderNotRefundable 订单状态不允许退款
	ErrOrderNotRefundable = errors.New("order not refundable")
	// ErrRefundExceedsAmount 退款金额超过原订单金额
	ErrRefundExceedsAmount = errors.New("refund amount exceeds order amount")
	// ErrRiskRejected 风控拒绝
	ErrRiskRejected = errors.New("order rejected by risk evaluation")
	// ErrInsufficientBalance 可用余额不足
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSettlementNotFound 结算批次不存在
	ErrSettlementNotFound = errors.New("settlement not found")
	// ErrSettlementConflict 并发结算抢先消费了同一批数据
	ErrSettlementConflict = errors.New("settlement conflict")
	// ErrUnsupportedEntityType 不支持的结算实体类型
	ErrUnsupportedEntityType = errors.New("unsupported entity type")
	// ErrUnknownCommissionRateType 未知佣金费率模型
	ErrUnknownCommissionRateType = errors.New("unknown commission rate type")
)
