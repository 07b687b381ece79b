package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/channel"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/service"
)

// CreatePaymentRequest 创建支付订单请求
type CreatePaymentRequest struct {
	MerchantID  uint                   `json:"merchant_id"`
	MerchantRef string                 `json:"merchant_ref"`
	Amount      string                 `json:"amount"`
	Currency    string                 `json:"currency"`
	Channel     string                 `json:"channel"`
	PayMethod   string                 `json:"pay_method"`
	Subject     string                 `json:"subject"`
	NotifyURL   string                 `json:"notify_url"`
	Extra       map[string]interface{} `json:"extra"`
}

type orderView struct {
	OrderNo       string `json:"order_no"`
	MerchantRef   string `json:"merchant_ref"`
	ChannelCode   string `json:"channel_code"`
	Currency      string `json:"currency"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	PayURL        string `json:"pay_url,omitempty"`
	QRCode        string `json:"qrcode,omitempty"`
	ProviderRef   string `json:"provider_ref,omitempty"`
	RefundedTotal string `json:"refunded_total"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	PaidAt        string `json:"paid_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func newOrderView(order *models.Order) orderView {
	view := orderView{
		OrderNo:       order.OrderNo,
		MerchantRef:   order.MerchantRef,
		ChannelCode:   order.ChannelCode,
		Currency:      order.Currency,
		Amount:        order.Amount.String(),
		Status:        order.Status,
		PayURL:        order.PayURL,
		QRCode:        order.QRCode,
		ProviderRef:   order.ProviderRef,
		RefundedTotal: order.RefundedTotal.String(),
		CreatedAt:     order.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if order.ExpiresAt != nil {
		view.ExpiresAt = order.ExpiresAt.Format("2006-01-02 15:04:05")
	}
	if order.PaidAt != nil {
		view.PaidAt = order.PaidAt.Format("2006-01-02 15:04:05")
	}
	return view
}

// CreatePayment 创建支付订单
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.CodeBadRequest, "请求体格式错误")
		return
	}
	if missing := firstMissingField(map[string]bool{
		"merchant_id":  req.MerchantID == 0,
		"merchant_ref": strings.TrimSpace(req.MerchantRef) == "",
		"amount":       strings.TrimSpace(req.Amount) == "",
		"currency":     strings.TrimSpace(req.Currency) == "",
		"channel":      strings.TrimSpace(req.Channel) == "",
	}); missing != "" {
		response.Error(c, response.CodeParamMissing, "缺少必填参数: "+missing)
		return
	}

	result, err := h.OrderService.CreateOrder(service.CreateOrderInput{
		MerchantID:  req.MerchantID,
		MerchantRef: req.MerchantRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
		ChannelCode: req.Channel,
		PayMethod:   req.PayMethod,
		Subject:     req.Subject,
		NotifyURL:   req.NotifyURL,
		ClientIP:    c.ClientIP(),
		Context:     c.Request.Context(),
	})
	if err != nil {
		respondWithMappedError(c, err, orderCreateErrorRules, "创建订单失败")
		return
	}
	response.Success(c, gin.H{
		"order":      newOrderView(result.Order),
		"dispatched": result.Dispatched,
	})
}

// PaymentCallback 渠道异步回调。
// 应答体由渠道适配器决定，验签失败一律回 fail。
func (h *Handler) PaymentCallback(c *gin.Context) {
	channelCode := c.Param("channel")
	outcome, err := h.OrderService.HandleCallback(channelCode, c.Request)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, service.ErrCallbackInvalid) &&
			!errors.Is(err, service.ErrOrderNotFound) &&
			!errors.Is(err, channel.ErrUnsupportedChannel) {
			status = http.StatusInternalServerError
		}
		c.String(status, "fail")
		return
	}
	ack := outcome.AckBody
	if ack == "" {
		ack = "success"
	}
	contentType := "text/plain; charset=utf-8"
	if strings.HasPrefix(strings.TrimSpace(ack), "{") {
		contentType = "application/json; charset=utf-8"
	}
	c.Data(http.StatusOK, contentType, []byte(ack))
}

// RefundRequest 退款请求
type RefundRequest struct {
	OrderNo string `json:"order_no"`
	Amount  string `json:"amount"`
	Reason  string `json:"reason"`
}

// CreateRefund 发起退款
func (h *Handler) CreateRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.CodeBadRequest, "请求体格式错误")
		return
	}
	if missing := firstMissingField(map[string]bool{
		"order_no": strings.TrimSpace(req.OrderNo) == "",
		"amount":   strings.TrimSpace(req.Amount) == "",
	}); missing != "" {
		response.Error(c, response.CodeParamMissing, "缺少必填参数: "+missing)
		return
	}

	order, err := h.OrderService.Refund(service.RefundInput{
		OrderNo: req.OrderNo,
		Amount:  req.Amount,
		Reason:  req.Reason,
		Context: c.Request.Context(),
	})
	if err != nil {
		respondWithMappedError(c, err, refundErrorRules, "退款失败")
		return
	}
	response.Success(c, newOrderView(order))
}

// firstMissingField 按固定顺序返回第一个缺失的必填字段名
func firstMissingField(checks map[string]bool) string {
	order := []string{"merchant_id", "merchant_ref", "order_no", "amount", "currency", "channel", "entity_type", "entity_id"}
	for _, name := range order {
		if missing, ok := checks[name]; ok && missing {
			return name
		}
	}
	return ""
}
