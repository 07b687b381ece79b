package constants

// 订单状态常量
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusSuccess    = "success"
	OrderStatusFailed     = "failed"
	OrderStatusExpired    = "expired"
	OrderStatusRefunding  = "refunding"
	OrderStatusRefunded   = "refunded"
)

// 渠道统一状态常量（适配器归一化后的状态词表）
const (
	ChannelStatusPaid     = "paid"
	ChannelStatusPending  = "pending"
	ChannelStatusFailed   = "failed"
	ChannelStatusRefunded = "refunded"
)

// 渠道提供方常量
const (
	ChannelProviderEpay      = "epay"
	ChannelProviderWechatpay = "wechatpay"
)

// 佣金状态常量
const (
	CommissionStatusPending = "pending"
	CommissionStatusSettled = "settled"
)

// 佣金费率模型常量
const (
	CommissionRateTypePercentage = "percentage"
	CommissionRateTypeFixed      = "fixed"
	CommissionRateTypeMarkup     = "markup"
)

// 结算状态常量
const (
	SettlementStatusPending   = "pending"
	SettlementStatusCompleted = "completed"
)

// 结算实体类型常量
const (
	SettlementEntityMerchant = "merchant"
	SettlementEntityAgent    = "agent"
)

// 提现状态常量
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusCompleted  = "completed"
	WithdrawalStatusFailed     = "failed"
)

// 风控决策常量
const (
	RiskDecisionPass   = "pass"
	RiskDecisionReview = "review"
	RiskDecisionReject = "reject"
)

// 分布式锁名称常量
const (
	LockOrderExpireSweep    = "job:order_expire_sweep"
	LockSettlementRun       = "job:settlement_run"
	LockCommissionSettleRun = "job:commission_settle_run"
)

// 异步任务类型常量
const (
	TaskOrderStatusNotify = "order:status_notify"
	TaskOrderExpire       = "order:expire"
)

// 队列名称常量
const (
	QueueDefault = "default"
)

// 易支付回调应答常量
const (
	EpayCallbackSuccess    = "success"
	EpayCallbackFail       = "fail"
	EpayTradeStatusSuccess = "TRADE_SUCCESS"
)
