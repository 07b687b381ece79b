package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrUnsupportedChannel = errors.New("channel not supported")
	ErrConfigInvalid      = errors.New("channel config invalid")
	ErrRequestFailed      = errors.New("channel request failed")
	ErrResponseInvalid    = errors.New("channel response invalid")
	ErrSignatureInvalid   = errors.New("channel signature invalid")
)

// 渠道侧归一化状态，见 constants 包
type CreateOrderInput struct {
	OrderNo   string // 平台订单号
	Amount    string // 金额（元，字符串避免精度损失）
	Currency  string
	Subject   string // 订单标题
	PayMethod string // 渠道侧支付方式
	ClientIP  string
	NotifyURL string // 平台回调接收地址
	ReturnURL string
}

// CreateOrderResult 渠道下单结果
type CreateOrderResult struct {
	PayURL      string                 // 跳转支付链接
	QRCode      string                 // 二维码内容
	ProviderRef string                 // 渠道流水号（下单即返回时）
	Raw         map[string]interface{} // 渠道原始响应
}

// QueryOrderResult 渠道订单查询结果
type QueryOrderResult struct {
	OrderNo     string
	ProviderRef string
	Status      string // 归一化状态（paid/pending/failed/refunded）
	Amount      string
	Currency    string
	PaidAt      *time.Time
	Raw         map[string]interface{}
}

// RefundInput 渠道退款输入
type RefundInput struct {
	OrderNo     string
	RefundNo    string // 平台退款单号
	Amount      string // 本次退款金额
	TotalAmount string // 原订单金额
	Currency    string
	Reason      string
}

// RefundResult 渠道退款结果
type RefundResult struct {
	ProviderRefundRef string
	Status            string
	Raw               map[string]interface{}
}

// CallbackResult 回调验签解析结果
type CallbackResult struct {
	OrderNo     string
	ProviderRef string
	Status      string // 归一化状态
	Amount      string
	Currency    string
	PaidAt      *time.Time
	AckBody     string // 验签成功后应答给渠道的响应体
	Raw         map[string]interface{}
}

// Adapter 支付渠道适配器契约。
// 每个渠道实现把各自的协议差异收敛到这四个操作之内，
// 上层业务只消费归一化状态，不感知渠道细节。
type Adapter interface {
	// Name 渠道编码
	Name() string
	// CreateOrder 向渠道下单
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	// QueryOrder 主动查询渠道订单状态
	QueryOrder(ctx context.Context, orderNo string) (*QueryOrderResult, error)
	// Refund 向渠道发起退款
	Refund(ctx context.Context, input RefundInput) (*RefundResult, error)
	// VerifyCallback 验证渠道异步回调的真实性并解析
	VerifyCallback(req *http.Request) (*CallbackResult, error)
}

// Registry 渠道注册表，启动时按配置构建，运行期只读。
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry 构建空注册表
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register 注册适配器，渠道编码重复时后注册者生效
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("%w: nil adapter", ErrConfigInvalid)
	}
	code := strings.ToLower(strings.TrimSpace(adapter.Name()))
	if code == "" {
		return fmt.Errorf("%w: empty channel code", ErrConfigInvalid)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[code] = adapter
	return nil
}

// Get 按渠道编码获取适配器
func (r *Registry) Get(code string) (Adapter, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChannel, code)
	}
	return adapter, nil
}

// Codes 返回已注册的渠道编码（排序后）
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
