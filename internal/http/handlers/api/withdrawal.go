package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/service"
)

// CreateWithdrawalRequest 创建提现请求
type CreateWithdrawalRequest struct {
	EntityType    string                 `json:"entity_type"`
	EntityID      uint                   `json:"entity_id"`
	Currency      string                 `json:"currency"`
	Amount        string                 `json:"amount"`
	Fee           string                 `json:"fee"`
	PayoutDetails map[string]interface{} `json:"payout_details"`
}

type withdrawalView struct {
	ID           uint        `json:"id"`
	EntityType   string      `json:"entity_type"`
	EntityID     uint        `json:"entity_id"`
	Currency     string      `json:"currency"`
	Amount       string      `json:"amount"`
	Fee          string      `json:"fee"`
	PayoutAmount string      `json:"payout_amount"`
	Status       string      `json:"status"`
	CreatedAt    string      `json:"created_at"`
	Details      models.JSON `json:"payout_details,omitempty"`
}

func newWithdrawalView(w *models.Withdrawal) withdrawalView {
	return withdrawalView{
		ID:           w.ID,
		EntityType:   w.EntityType,
		EntityID:     w.EntityID,
		Currency:     w.Currency,
		Amount:       w.Amount.String(),
		Fee:          w.Fee.String(),
		PayoutAmount: w.PayoutAmount.String(),
		Status:       w.Status,
		CreatedAt:    w.CreatedAt.Format("2006-01-02 15:04:05"),
		Details:      w.PayoutDetails,
	}
}

// CreateWithdrawal 创建提现申请
func (h *Handler) CreateWithdrawal(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, response.CodeBadRequest, "请求体格式错误")
		return
	}
	if missing := firstMissingField(map[string]bool{
		"entity_type": strings.TrimSpace(req.EntityType) == "",
		"entity_id":   req.EntityID == 0,
		"currency":    strings.TrimSpace(req.Currency) == "",
		"amount":      strings.TrimSpace(req.Amount) == "",
	}); missing != "" {
		response.Error(c, response.CodeParamMissing, "缺少必填参数: "+missing)
		return
	}

	withdrawal, err := h.WithdrawalService.CreateWithdrawal(service.CreateWithdrawalInput{
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		Currency:      req.Currency,
		Amount:        req.Amount,
		Fee:           req.Fee,
		PayoutDetails: req.PayoutDetails,
	})
	if err != nil {
		respondWithMappedError(c, err, withdrawalErrorRules, "创建提现失败")
		return
	}
	response.Success(c, newWithdrawalView(withdrawal))
}

// ListWithdrawals 分页查询实体的提现记录
func (h *Handler) ListWithdrawals(c *gin.Context) {
	entityType, entityID, ok := parseEntityPath(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	withdrawals, total, err := h.WithdrawalService.ListWithdrawals(repository.WithdrawalListFilter{
		EntityType: entityType,
		EntityID:   entityID,
		Status:     c.Query("status"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		respondWithMappedError(c, err, withdrawalErrorRules, "查询提现记录失败")
		return
	}
	views := make([]withdrawalView, 0, len(withdrawals))
	for i := range withdrawals {
		views = append(views, newWithdrawalView(&withdrawals[i]))
	}
	response.SuccessWithPage(c, views, response.NewPagination(page, pageSize, total))
}

// GetBalance 查询实体当前可用余额
func (h *Handler) GetBalance(c *gin.Context) {
	entityType, entityID, ok := parseEntityPath(c)
	if !ok {
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("currency", "CNY")))
	available, err := h.WithdrawalService.AvailableBalance(entityType, entityID, currency)
	if err != nil {
		respondWithMappedError(c, err, withdrawalErrorRules, "查询余额失败")
		return
	}
	response.Success(c, gin.H{
		"entity_type": entityType,
		"entity_id":   entityID,
		"currency":    currency,
		"available":   available.String(),
	})
}
