package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

// SettlementService 结算计算器
type SettlementService struct {
	orderRepo      *repository.GormOrderRepository
	settlementRepo *repository.GormSettlementRepository
	merchantRepo   *repository.GormMerchantRepository
	commissionRepo *repository.GormCommissionRepository
}

// NewSettlementService 创建结算服务
func NewSettlementService(
	orderRepo *repository.GormOrderRepository,
	settlementRepo *repository.GormSettlementRepository,
	merchantRepo *repository.GormMerchantRepository,
	commissionRepo *repository.GormCommissionRepository,
) *SettlementService {
	return &SettlementService{
		orderRepo:      orderRepo,
		settlementRepo: settlementRepo,
		merchantRepo:   merchantRepo,
		commissionRepo: commissionRepo,
	}
}

// Calculate 计算商户在周期内的结算批次。
// 逐单计算手续费（费率比例 + 固定费），全程精确小数；
// 消费的订单在同一事务内打上批次标记，打标行数与订单数不符
// 说明有并发结算抢先消费，整个事务回滚。
func (s *SettlementService) Calculate(merchantID uint, currency string, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	var settlement *models.Settlement
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		merchantRepo := s.merchantRepo.WithTx(tx)
		settlementRepo := s.settlementRepo.WithTx(tx)

		exists, err := settlementRepo.ExistsForPeriod(constants.SettlementEntityMerchant, merchantID, currency, periodStart, periodEnd)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		orders, err := orderRepo.ListUnsettledSuccess(merchantID, currency, periodStart, periodEnd)
		if err != nil {
			return err
		}
		if len(orders) == 0 {
			return nil
		}

		gross := decimal.Zero
		fee := decimal.Zero
		orderIDs := make([]uint, 0, len(orders))
		feeCache := map[uint]*models.MerchantChannelFee{}
		for i := range orders {
			order := &orders[i]
			gross = gross.Add(order.Amount.Decimal)
			orderIDs = append(orderIDs, order.ID)

			feeCfg, ok := feeCache[order.ChannelID]
			if !ok {
				feeCfg, err = merchantRepo.GetChannelFee(merchantID, order.ChannelID, currency)
				if err != nil {
					return err
				}
				feeCache[order.ChannelID] = feeCfg
			}
			if feeCfg == nil {
				logger.SW().Warnw("merchant_channel_fee_missing",
					"merchant_id", merchantID,
					"channel_id", order.ChannelID,
					"currency", currency,
					"order_id", order.ID)
				continue
			}
			orderFee := order.Amount.Decimal.
				Mul(feeCfg.FeeRate.Decimal).
				Div(decimal.NewFromInt(100)).
				Add(feeCfg.FixedFee.Decimal)
			fee = fee.Add(orderFee)
		}

		settlement = &models.Settlement{
			EntityType:  constants.SettlementEntityMerchant,
			EntityID:    merchantID,
			Currency:    currency,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			GrossAmount: models.NewMoneyFromDecimal(gross),
			FeeAmount:   models.NewMoneyFromDecimal(fee),
			NetAmount:   models.NewMoneyFromDecimal(gross.Sub(fee)),
			OrderCount:  int64(len(orders)),
			Status:      constants.SettlementStatusPending,
		}
		if err := settlementRepo.Create(settlement); err != nil {
			return err
		}
		stamped, err := orderRepo.StampSettlement(orderIDs, settlement.ID)
		if err != nil {
			return err
		}
		if stamped != int64(len(orderIDs)) {
			return fmt.Errorf("%w: stamped %d of %d orders", ErrSettlementConflict, stamped, len(orderIDs))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settlement != nil {
		logger.SW().Infow("settlement_created",
			"settlement_id", settlement.ID,
			"merchant_id", merchantID,
			"currency", currency,
			"gross", settlement.GrossAmount.String(),
			"fee", settlement.FeeAmount.String(),
			"net", settlement.NetAmount.String(),
			"order_count", settlement.OrderCount)
	}
	return settlement, nil
}

// CalculateAgent 计算代理在周期内已结算佣金的结算批次。
// 与商户路径同一套消费机制：汇入批次的应计在同一事务内
// 打上批次标记，滑动窗口重叠或重复执行都不会重复计入。
func (s *SettlementService) CalculateAgent(agentID uint, currency string, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))

	var settlement *models.Settlement
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		settlementRepo := s.settlementRepo.WithTx(tx)

		exists, err := settlementRepo.ExistsForPeriod(constants.SettlementEntityAgent, agentID, currency, periodStart, periodEnd)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		accruals, err := commissionRepo.ListSettledUnconsumed(agentID, currency, periodStart, periodEnd)
		if err != nil {
			return err
		}
		if len(accruals) == 0 {
			return nil
		}
		gross := decimal.Zero
		ids := make([]uint, 0, len(accruals))
		for _, accrual := range accruals {
			gross = gross.Add(accrual.Amount.Decimal)
			ids = append(ids, accrual.ID)
		}
		settlement = &models.Settlement{
			EntityType:  constants.SettlementEntityAgent,
			EntityID:    agentID,
			Currency:    currency,
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			GrossAmount: models.NewMoneyFromDecimal(gross),
			FeeAmount:   models.NewMoneyFromDecimal(decimal.Zero),
			NetAmount:   models.NewMoneyFromDecimal(gross),
			OrderCount:  int64(len(accruals)),
			Status:      constants.SettlementStatusPending,
		}
		if err := settlementRepo.Create(settlement); err != nil {
			return err
		}
		stamped, err := commissionRepo.StampSettlement(ids, settlement.ID)
		if err != nil {
			return err
		}
		if stamped != int64(len(ids)) {
			return fmt.Errorf("%w: stamped %d of %d accruals", ErrSettlementConflict, stamped, len(ids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if settlement != nil {
		logger.SW().Infow("agent_settlement_created",
			"settlement_id", settlement.ID,
			"agent_id", agentID,
			"currency", currency,
			"net", settlement.NetAmount.String())
	}
	return settlement, nil
}

// Complete 将结算批次翻转为已完成。已完成的批次直接返回。
func (s *SettlementService) Complete(settlementID uint) (*models.Settlement, error) {
	var updated *models.Settlement
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		settlementRepo := s.settlementRepo.WithTx(tx)
		settlement, err := settlementRepo.GetByIDForUpdate(settlementID)
		if err != nil {
			return err
		}
		if settlement == nil {
			return ErrSettlementNotFound
		}
		if settlement.Status == constants.SettlementStatusCompleted {
			updated = settlement
			return nil
		}
		now := time.Now()
		settlement.Status = constants.SettlementStatusCompleted
		settlement.CompletedAt = &now
		if err := settlementRepo.Update(settlement); err != nil {
			return err
		}
		updated = settlement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RunSummary 结算任务运行汇总
type RunSummary struct {
	MerchantSettlements int
	AgentSettlements    int
}

// RunPeriod 对周期内全部有活动的商户与代理执行结算
func (s *SettlementService) RunPeriod(periodStart, periodEnd time.Time) (*RunSummary, error) {
	summary := &RunSummary{}

	merchantGroups, err := s.orderRepo.ListUnsettledGroups(periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	for _, group := range merchantGroups {
		settlement, err := s.Calculate(group.MerchantID, group.Currency, periodStart, periodEnd)
		if err != nil {
			logger.SW().Errorw("settlement_run_failed",
				"merchant_id", group.MerchantID,
				"currency", group.Currency,
				"error", err)
			continue
		}
		if settlement != nil {
			summary.MerchantSettlements++
		}
	}

	agentGroups, err := s.commissionRepo.ListSettledGroupsInPeriod(periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	for _, group := range agentGroups {
		settlement, err := s.CalculateAgent(group.AgentID, group.Currency, periodStart, periodEnd)
		if err != nil {
			logger.SW().Errorw("agent_settlement_run_failed",
				"agent_id", group.AgentID,
				"currency", group.Currency,
				"error", err)
			continue
		}
		if settlement != nil {
			summary.AgentSettlements++
		}
	}
	return summary, nil
}

// ListSettlements 分页查询结算批次
func (s *SettlementService) ListSettlements(filter repository.SettlementListFilter) ([]models.Settlement, int64, error) {
	return s.settlementRepo.List(filter)
}
