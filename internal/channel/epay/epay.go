package epay

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/payhub-next/internal/channel"
	"github.com/payhub-next/internal/constants"
)

// Config 易支付渠道配置
type Config struct {
	GatewayURL  string `json:"gateway_url"`  // 网关地址
	MerchantID  string `json:"merchant_id"`  // 商户号
	MerchantKey string `json:"merchant_key"` // 商户密钥
	APIPath     string `json:"api_path"`     // 下单接口路径
	QueryPath   string `json:"query_path"`   // 查单接口路径
	RefundPath  string `json:"refund_path"`  // 退款接口路径
	NotifyURL   string `json:"notify_url"`   // 异步通知地址
	ReturnURL   string `json:"return_url"`   // 同步跳转地址
	Device      string `json:"device"`       // 设备类型
}

// Adapter 易支付适配器（MD5 签名协议）
type Adapter struct {
	code   string
	cfg    *Config
	client *http.Client
}

// ParseConfig 解析渠道配置
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty epay config", channel.ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal epay config failed", channel.ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal epay config failed", channel.ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置完整性
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: epay config is nil", channel.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		return fmt.Errorf("%w: gateway_url is required", channel.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantID) == "" {
		return fmt.Errorf("%w: merchant_id is required", channel.ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.MerchantKey) == "" {
		return fmt.Errorf("%w: merchant_key is required", channel.ErrConfigInvalid)
	}
	return nil
}

// New 构建易支付适配器
func New(code string, cfg *Config, timeout time.Duration) (*Adapter, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Adapter{
		code:   strings.ToLower(strings.TrimSpace(code)),
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Name 渠道编码
func (a *Adapter) Name() string {
	return a.code
}

// CreateOrder 向易支付下单
func (a *Adapter) CreateOrder(ctx context.Context, input channel.CreateOrderInput) (*channel.CreateOrderResult, error) {
	if input.OrderNo == "" || input.Amount == "" {
		return nil, fmt.Errorf("%w: order_no and amount are required", channel.ErrConfigInvalid)
	}
	subject := input.Subject
	if subject == "" {
		subject = input.OrderNo
	}
	notifyURL := input.NotifyURL
	if notifyURL == "" {
		notifyURL = a.cfg.NotifyURL
	}
	returnURL := input.ReturnURL
	if returnURL == "" {
		returnURL = a.cfg.ReturnURL
	}
	params := map[string]string{
		"pid":          a.cfg.MerchantID,
		"type":         input.PayMethod,
		"out_trade_no": input.OrderNo,
		"notify_url":   notifyURL,
		"return_url":   returnURL,
		"name":         subject,
		"money":        input.Amount,
		"clientip":     input.ClientIP,
		"device":       a.cfg.Device,
	}
	params["sign"] = Sign(params, a.cfg.MerchantKey)
	params["sign_type"] = "MD5"

	respBytes, err := a.postForm(ctx, buildEndpoint(a.cfg.GatewayURL, a.cfg.APIPath), params)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	var resp struct {
		Code      int    `json:"code"`
		Msg       string `json:"msg"`
		TradeNo   string `json:"trade_no"`
		PayURL    string `json:"payurl"`
		QRCode    string `json:"qrcode"`
		URLScheme string `json:"urlscheme"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, channel.ErrResponseInvalid
	}
	if resp.Code != 1 {
		return nil, fmt.Errorf("%w: %s", channel.ErrResponseInvalid, resp.Msg)
	}
	result := &channel.CreateOrderResult{
		PayURL:      strings.TrimSpace(resp.PayURL),
		QRCode:      strings.TrimSpace(resp.QRCode),
		ProviderRef: strings.TrimSpace(resp.TradeNo),
		Raw:         raw,
	}
	if result.PayURL == "" && resp.URLScheme != "" {
		result.PayURL = strings.TrimSpace(resp.URLScheme)
	}
	return result, nil
}

// QueryOrder 查询易支付订单状态
func (a *Adapter) QueryOrder(ctx context.Context, orderNo string) (*channel.QueryOrderResult, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, fmt.Errorf("%w: order_no is required", channel.ErrConfigInvalid)
	}
	params := map[string]string{
		"act":          "order",
		"pid":          a.cfg.MerchantID,
		"key":          a.cfg.MerchantKey,
		"out_trade_no": orderNo,
	}
	respBytes, err := a.postForm(ctx, buildEndpoint(a.cfg.GatewayURL, a.cfg.QueryPath), params)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	var resp struct {
		Code    int         `json:"code"`
		Msg     string      `json:"msg"`
		TradeNo string      `json:"trade_no"`
		Money   string      `json:"money"`
		Status  json.Number `json:"status"`
		EndTime string      `json:"endtime"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, channel.ErrResponseInvalid
	}
	if resp.Code != 1 {
		return nil, fmt.Errorf("%w: %s", channel.ErrResponseInvalid, resp.Msg)
	}
	status := constants.ChannelStatusPending
	if resp.Status.String() == "1" {
		status = constants.ChannelStatusPaid
	}
	result := &channel.QueryOrderResult{
		OrderNo:     orderNo,
		ProviderRef: strings.TrimSpace(resp.TradeNo),
		Status:      status,
		Amount:      strings.TrimSpace(resp.Money),
		Raw:         raw,
	}
	if ts := parseEpayTime(resp.EndTime); ts != nil {
		result.PaidAt = ts
	}
	return result, nil
}

// Refund 向易支付发起退款
func (a *Adapter) Refund(ctx context.Context, input channel.RefundInput) (*channel.RefundResult, error) {
	if input.OrderNo == "" || input.Amount == "" {
		return nil, fmt.Errorf("%w: order_no and amount are required", channel.ErrConfigInvalid)
	}
	params := map[string]string{
		"pid":          a.cfg.MerchantID,
		"key":          a.cfg.MerchantKey,
		"out_trade_no": input.OrderNo,
		"money":        input.Amount,
	}
	respBytes, err := a.postForm(ctx, buildEndpoint(a.cfg.GatewayURL, a.cfg.RefundPath), params)
	if err != nil {
		return nil, err
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)
	var resp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, channel.ErrResponseInvalid
	}
	if resp.Code != 1 {
		return nil, fmt.Errorf("%w: %s", channel.ErrResponseInvalid, resp.Msg)
	}
	return &channel.RefundResult{
		ProviderRefundRef: input.RefundNo,
		Status:            constants.ChannelStatusRefunded,
		Raw:               raw,
	}, nil
}

// VerifyCallback 验证易支付异步回调签名并解析。
// 验签失败的回调绝不进入状态机。
func (a *Adapter) VerifyCallback(req *http.Request) (*channel.CallbackResult, error) {
	if req == nil {
		return nil, channel.ErrSignatureInvalid
	}
	if err := req.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: parse form failed", channel.ErrResponseInvalid)
	}
	form := req.Form
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			continue
		}
		params[key] = values[0]
	}
	sign := strings.TrimSpace(params["sign"])
	if sign == "" {
		return nil, channel.ErrSignatureInvalid
	}
	expected := Sign(params, a.cfg.MerchantKey)
	if !strings.EqualFold(expected, sign) {
		return nil, channel.ErrSignatureInvalid
	}

	status := constants.ChannelStatusFailed
	if strings.EqualFold(strings.TrimSpace(params["trade_status"]), constants.EpayTradeStatusSuccess) {
		status = constants.ChannelStatusPaid
	}
	raw := make(map[string]interface{}, len(params))
	for k, v := range params {
		raw[k] = v
	}
	return &channel.CallbackResult{
		OrderNo:     strings.TrimSpace(params["out_trade_no"]),
		ProviderRef: strings.TrimSpace(params["trade_no"]),
		Status:      status,
		Amount:      strings.TrimSpace(params["money"]),
		AckBody:     constants.EpayCallbackSuccess,
		Raw:         raw,
	}, nil
}

// Sign 计算易支付 MD5 签名：
// 非空且非签名参数按键名升序以 & 连接为 key=value，
// 末尾拼接 &key=<密钥>，MD5 后转大写。
func Sign(params map[string]string, merchantKey string) string {
	content := buildSignContent(params) + "&key=" + merchantKey
	sum := md5.Sum([]byte(content))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func buildSignContent(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		if k == "sign" || k == "sign_type" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, params[k]))
	}
	return strings.Join(pairs, "&")
}

func buildEndpoint(gatewayURL, apiPath string) string {
	base := strings.TrimRight(strings.TrimSpace(gatewayURL), "/")
	path := strings.TrimSpace(apiPath)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

func (a *Adapter) postForm(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json, text/plain, */*")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", channel.ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, channel.ErrRequestFailed
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func parseEpayTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.Local)
	if err != nil {
		return nil
	}
	return &parsed
}

func (c *Config) normalize() {
	c.GatewayURL = strings.TrimSpace(c.GatewayURL)
	c.MerchantID = strings.TrimSpace(c.MerchantID)
	c.MerchantKey = strings.TrimSpace(c.MerchantKey)
	if c.APIPath == "" {
		c.APIPath = "/mapi.php"
	}
	if c.QueryPath == "" {
		c.QueryPath = "/api.php"
	}
	if c.RefundPath == "" {
		c.RefundPath = "/api.php?act=refund"
	}
	if c.Device == "" {
		c.Device = "pc"
	}
}
