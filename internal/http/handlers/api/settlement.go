package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/service"
)

type settlementView struct {
	ID          uint   `json:"id"`
	EntityType  string `json:"entity_type"`
	EntityID    uint   `json:"entity_id"`
	Currency    string `json:"currency"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	GrossAmount string `json:"gross_amount"`
	FeeAmount   string `json:"fee_amount"`
	NetAmount   string `json:"net_amount"`
	OrderCount  int64  `json:"order_count"`
	Status      string `json:"status"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func newSettlementView(settlement *models.Settlement) settlementView {
	view := settlementView{
		ID:          settlement.ID,
		EntityType:  settlement.EntityType,
		EntityID:    settlement.EntityID,
		Currency:    settlement.Currency,
		PeriodStart: settlement.PeriodStart.Format(time.RFC3339),
		PeriodEnd:   settlement.PeriodEnd.Format(time.RFC3339),
		GrossAmount: settlement.GrossAmount.String(),
		FeeAmount:   settlement.FeeAmount.String(),
		NetAmount:   settlement.NetAmount.String(),
		OrderCount:  settlement.OrderCount,
		Status:      settlement.Status,
	}
	if settlement.CompletedAt != nil {
		view.CompletedAt = settlement.CompletedAt.Format(time.RFC3339)
	}
	return view
}

func parseEntityPath(c *gin.Context) (string, uint, bool) {
	entityType := strings.ToLower(c.Param("entity_type"))
	switch entityType {
	case constants.SettlementEntityMerchant, constants.SettlementEntityAgent:
	default:
		response.Error(c, response.CodeBadRequest, "不支持的实体类型")
		return "", 0, false
	}
	entityID, err := strconv.ParseUint(c.Param("entity_id"), 10, 64)
	if err != nil || entityID == 0 {
		response.Error(c, response.CodeBadRequest, "实体 ID 非法")
		return "", 0, false
	}
	return entityType, uint(entityID), true
}

// ListSettlements 分页查询实体的结算批次
func (h *Handler) ListSettlements(c *gin.Context) {
	entityType, entityID, ok := parseEntityPath(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	settlements, total, err := h.SettlementService.ListSettlements(repository.SettlementListFilter{
		EntityType: entityType,
		EntityID:   entityID,
		Status:     c.Query("status"),
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		respondWithMappedError(c, err, settlementErrorRules, "查询结算批次失败")
		return
	}
	views := make([]settlementView, 0, len(settlements))
	for i := range settlements {
		views = append(views, newSettlementView(&settlements[i]))
	}
	response.SuccessWithPage(c, views, response.NewPagination(page, pageSize, total))
}

// TriggerSettlementRequest 手动触发结算请求。
// 缺省时按配置周期向前取窗口。
type TriggerSettlementRequest struct {
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// TriggerSettlement 手动触发周期结算
func (h *Handler) TriggerSettlement(c *gin.Context) {
	var req TriggerSettlementRequest
	_ = c.ShouldBindJSON(&req)

	periodEnd := time.Now()
	periodStart := periodEnd.Add(-time.Duration(h.Config.Settlement.PeriodHours) * time.Hour)
	if req.PeriodStart != "" && req.PeriodEnd != "" {
		start, err := time.Parse(time.RFC3339, req.PeriodStart)
		if err != nil {
			response.Error(c, response.CodeBadRequest, "period_start 格式错误")
			return
		}
		end, err := time.Parse(time.RFC3339, req.PeriodEnd)
		if err != nil {
			response.Error(c, response.CodeBadRequest, "period_end 格式错误")
			return
		}
		if !end.After(start) {
			response.Error(c, response.CodeBadRequest, "结算周期区间非法")
			return
		}
		periodStart, periodEnd = start, end
	}

	summary, err := h.SettlementService.RunPeriod(periodStart, periodEnd)
	if err != nil {
		respondWithMappedError(c, err, settlementErrorRules, "结算执行失败")
		return
	}
	response.Success(c, gin.H{
		"period_start":         periodStart.Format(time.RFC3339),
		"period_end":           periodEnd.Format(time.RFC3339),
		"merchant_settlements": summary.MerchantSettlements,
		"agent_settlements":    summary.AgentSettlements,
	})
}

// CompleteSettlement 将结算批次标记为已完成
func (h *Handler) CompleteSettlement(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, response.CodeBadRequest, "结算批次 ID 非法")
		return
	}
	settlement, err := h.SettlementService.Complete(uint(id))
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrSettlementNotFound, code: response.CodeNotFound, msg: "结算批次不存在"},
		}, "结算完成操作失败")
		return
	}
	response.Success(c, newSettlementView(settlement))
}
