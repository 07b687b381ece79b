package main

import (
	"github.com/shopspring/decimal"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	agentRepo := repository.NewAgentRepository(models.DB)
	merchantRepo := repository.NewMerchantRepository(models.DB)

	// 支付渠道
	channels := []models.PaymentChannel{
		{
			Name:         "易支付演示",
			Code:         "epay_demo",
			ProviderType: constants.ChannelProviderEpay,
			ConfigJSON: models.JSON(map[string]interface{}{
				"gateway_url":  "https://pay.example.com",
				"merchant_id":  "1000",
				"merchant_key": "demo-secret-key",
				"notify_url":   "https://payhub.example.com/api/v1/payments/callback/epay_demo",
				"return_url":   "https://payhub.example.com/return",
			}),
			IsActive:  true,
			SortOrder: 1,
		},
		{
			Name:         "微信支付演示",
			Code:         "wxpay_demo",
			ProviderType: constants.ChannelProviderWechatpay,
			ConfigJSON: models.JSON(map[string]interface{}{
				"mchid":      "1900000000",
				"appid":      "wx0000000000000000",
				"notify_url": "https://payhub.example.com/api/v1/payments/callback/wxpay_demo",
			}),
			IsActive:  false, // 缺少真实证书，默认停用
			SortOrder: 2,
		},
	}
	channelIDs := map[string]uint{}
	for _, ch := range channels {
		var existing models.PaymentChannel
		if err := models.DB.Where("code = ?", ch.Code).First(&existing).Error; err != nil {
			if err := models.DB.Create(&ch).Error; err != nil {
				stdLog.Printf("创建渠道失败 %s: %v", ch.Code, err)
				continue
			}
			channelIDs[ch.Code] = ch.ID
			stdLog.Printf("创建渠道: %s", ch.Code)
		} else {
			channelIDs[ch.Code] = existing.ID
			stdLog.Printf("渠道已存在: %s", ch.Code)
		}
	}

	// 三级代理链：总代 → 区域代理 → 直属代理
	agentChain := []struct {
		name        string
		rateType    string
		ratePercent float64
		fixedAmount float64
	}{
		{"总代", constants.CommissionRateTypePercentage, 0.2, 0},
		{"区域代理", constants.CommissionRateTypeMarkup, 0.8, 0},
		{"直属代理", constants.CommissionRateTypePercentage, 0.5, 0},
	}
	var parentID *uint
	var directAgentID uint
	for _, item := range agentChain {
		var existing models.Agent
		if err := models.DB.Where("name = ?", item.name).First(&existing).Error; err == nil {
			id := existing.ID
			parentID = &id
			directAgentID = existing.ID
			stdLog.Printf("代理已存在: %s", item.name)
			continue
		}
		agent := &models.Agent{
			Name:     item.name,
			ParentID: parentID,
			Status:   "active",
		}
		if err := agentRepo.CreateWithHierarchy(agent); err != nil {
			stdLog.Fatalf("创建代理失败 %s: %v", item.name, err)
		}
		if err := agentRepo.CreateRule(&models.AgentCommissionRule{
			AgentID:     agent.ID,
			Currency:    "CNY",
			RateType:    item.rateType,
			RatePercent: models.NewMoneyFromDecimal(decimal.NewFromFloat(item.ratePercent)),
			FixedAmount: models.NewMoneyFromDecimal(decimal.NewFromFloat(item.fixedAmount)),
			IsActive:    true,
		}); err != nil {
			stdLog.Printf("创建佣金规则失败 %s: %v", item.name, err)
		}
		id := agent.ID
		parentID = &id
		directAgentID = agent.ID
		stdLog.Printf("创建代理: %s (id=%d)", item.name, agent.ID)
	}

	// 演示商户，挂在直属代理名下
	var merchant models.Merchant
	if err := models.DB.Where("name = ?", "演示商户").First(&merchant).Error; err != nil {
		merchant = models.Merchant{
			Name:    "演示商户",
			AgentID: &directAgentID,
			Status:  "active",
		}
		if err := models.DB.Create(&merchant).Error; err != nil {
			stdLog.Fatalf("创建商户失败: %v", err)
		}
		stdLog.Printf("创建商户: %s (id=%d)", merchant.Name, merchant.ID)
	} else {
		stdLog.Printf("商户已存在: %s", merchant.Name)
	}

	// 商户渠道费率
	if epayID, ok := channelIDs["epay_demo"]; ok {
		existing, err := merchantRepo.GetChannelFee(merchant.ID, epayID, "CNY")
		if err != nil {
			stdLog.Printf("查询商户费率失败: %v", err)
		} else if existing == nil {
			if err := merchantRepo.CreateChannelFee(&models.MerchantChannelFee{
				MerchantID: merchant.ID,
				ChannelID:  epayID,
				Currency:   "CNY",
				FeeRate:    models.NewMoneyFromDecimal(decimal.NewFromFloat(1.2)),
				FixedFee:   models.NewMoneyFromDecimal(decimal.NewFromFloat(0.1)),
				IsActive:   true,
			}); err != nil {
				stdLog.Printf("创建商户费率失败: %v", err)
			} else {
				stdLog.Printf("创建商户费率: merchant=%d channel=%d", merchant.ID, epayID)
			}
		} else {
			stdLog.Printf("商户费率已存在: merchant=%d channel=%d", merchant.ID, epayID)
		}
	}

	stdLog.Printf("种子数据初始化完成")
}
