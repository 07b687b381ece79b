package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
)

// Transaction 风控评估输入
type Transaction struct {
	MerchantID  uint   `json:"merchant_id"`
	MerchantRef string `json:"merchant_ref"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	ChannelCode string `json:"channel_code"`
	ClientIP    string `json:"client_ip,omitempty"`
}

// Evaluation 风控评估结果
type Evaluation struct {
	RiskScore    float64 `json:"risk_score"`
	RiskDecision string  `json:"risk_decision"` // pass / review / reject
}

// Evaluator 外部风控协作方契约。实现方只被消费，不被托管。
type Evaluator interface {
	Evaluate(ctx context.Context, txn Transaction) (*Evaluation, error)
}

// NoopEvaluator 风控未启用时的直通实现
type NoopEvaluator struct{}

// Evaluate 直接放行
func (NoopEvaluator) Evaluate(ctx context.Context, txn Transaction) (*Evaluation, error) {
	return &Evaluation{RiskDecision: constants.RiskDecisionPass}, nil
}

// HTTPEvaluator 通过 HTTP 调用外部风控服务。
// 评估服务不可用时放行并告警，只有明确的 reject 才拦截下单。
type HTTPEvaluator struct {
	url    string
	client *http.Client
}

// NewEvaluator 按配置构建风控评估器
func NewEvaluator(cfg *config.RiskConfig) Evaluator {
	if cfg == nil || !cfg.Enabled || strings.TrimSpace(cfg.URL) == "" {
		return NoopEvaluator{}
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HTTPEvaluator{
		url:    strings.TrimSpace(cfg.URL),
		client: &http.Client{Timeout: timeout},
	}
}

// Evaluate 调用外部风控评估
func (e *HTTPEvaluator) Evaluate(ctx context.Context, txn Transaction) (*Evaluation, error) {
	payload, err := json.Marshal(txn)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		logger.SW().Warnw("risk_evaluate_unreachable", "error", err)
		return &Evaluation{RiskDecision: constants.RiskDecisionPass}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.SW().Warnw("risk_evaluate_bad_status", "status", resp.StatusCode)
		return &Evaluation{RiskDecision: constants.RiskDecisionPass}, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var eval Evaluation
	if err := json.Unmarshal(body, &eval); err != nil {
		return nil, fmt.Errorf("decode risk evaluation: %w", err)
	}
	eval.RiskDecision = strings.ToLower(strings.TrimSpace(eval.RiskDecision))
	switch eval.RiskDecision {
	case constants.RiskDecisionPass, constants.RiskDecisionReview, constants.RiskDecisionReject:
	default:
		logger.SW().Warnw("risk_evaluate_unknown_decision", "decision", eval.RiskDecision)
		eval.RiskDecision = constants.RiskDecisionPass
	}
	return &eval, nil
}
