package api

import (
	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/service"
)

// GetOrder 根据平台订单号查询订单及其状态流转日志
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Param("order_no")
	order, err := h.OrderService.GetByOrderNo(orderNo)
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
		}, "查询订单失败")
		return
	}

	logs, err := h.OrderService.ListTransitionLogs(order.ID)
	if err != nil {
		respondWithMappedError(c, err, nil, "查询订单失败")
		return
	}
	logViews := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		logViews = append(logViews, gin.H{
			"from_status": log.FromStatus,
			"to_status":   log.ToStatus,
			"reason":      log.Reason,
			"created_at":  log.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	response.Success(c, gin.H{
		"order":           newOrderView(order),
		"transition_logs": logViews,
	})
}
