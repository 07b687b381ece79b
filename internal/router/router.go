package router

import (
	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/config"
	apihandlers "github.com/payhub-next/internal/http/handlers/api"
	"github.com/payhub-next/internal/idempotency"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/provider"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	apiHandler := apihandlers.New(c)
	idem := idempotency.Middleware(c.IdemStore)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))

	apiV1 := r.Group("/api/v1")
	{
		// 渠道回调不走幂等中间件，重放幂等由回调处理流程自身保证
		apiV1.POST("/payments/callback/:channel", apiHandler.PaymentCallback)
		apiV1.GET("/payments/callback/:channel", apiHandler.PaymentCallback)

		apiV1.POST("/payments", idem, apiHandler.CreatePayment)
		apiV1.POST("/payments/refunds", idem, apiHandler.CreateRefund)
		apiV1.GET("/orders/:order_no", apiHandler.GetOrder)

		apiV1.GET("/settlements/:entity_type/:entity_id", apiHandler.ListSettlements)
		apiV1.POST("/settlements/trigger", idem, apiHandler.TriggerSettlement)
		apiV1.POST("/settlements/:id/complete", idem, apiHandler.CompleteSettlement)

		apiV1.POST("/withdrawals", idem, apiHandler.CreateWithdrawal)
		apiV1.GET("/withdrawals/:entity_type/:entity_id", apiHandler.ListWithdrawals)
		apiV1.GET("/balances/:entity_type/:entity_id", apiHandler.GetBalance)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
