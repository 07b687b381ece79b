package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

// CommissionService 佣金引擎：
// 订单成功时生成应计，周期任务批量结算入账。
type CommissionService struct {
	agentRepo      *repository.GormAgentRepository
	commissionRepo *repository.GormCommissionRepository
	merchantRepo   *repository.GormMerchantRepository
}

// NewCommissionService 创建佣金服务
func NewCommissionService(
	agentRepo *repository.GormAgentRepository,
	commissionRepo *repository.GormCommissionRepository,
	merchantRepo *repository.GormMerchantRepository,
) *CommissionService {
	return &CommissionService{
		agentRepo:      agentRepo,
		commissionRepo: commissionRepo,
		merchantRepo:   merchantRepo,
	}
}

// AccrueForOrder 为成功订单生成佣金应计，必须在订单流转事务内调用。
// 直属代理与闭包表中的每个祖先各自按自身规则独立计算，
// 互不继承；任何一级规则类型未知都会使整个事务回滚。
func (s *CommissionService) AccrueForOrder(tx *gorm.DB, order *models.Order) error {
	merchant, err := s.merchantRepo.WithTx(tx).GetByID(order.MerchantID)
	if err != nil {
		return err
	}
	if merchant == nil || merchant.AgentID == nil || *merchant.AgentID == 0 {
		return nil
	}
	directAgentID := *merchant.AgentID

	agentRepo := s.agentRepo.WithTx(tx)
	commissionRepo := s.commissionRepo.WithTx(tx)

	// markup 模型的贴水基准：直属代理对照商户费率，祖先对照直属代理费率
	merchantRate := decimal.Zero
	if fee, err := s.merchantRepo.WithTx(tx).GetChannelFee(order.MerchantID, order.ChannelID, order.Currency); err != nil {
		return err
	} else if fee != nil {
		merchantRate = fee.FeeRate.Decimal
	}

	directRule, err := agentRepo.GetActiveRule(directAgentID, order.Currency)
	if err != nil {
		return err
	}
	directRate := decimal.Zero
	if directRule != nil {
		directRate = directRule.RatePercent.Decimal
	}

	if directRule != nil {
		if err := s.accrueOne(commissionRepo, order, directAgentID, directRule, merchantRate); err != nil {
			return err
		}
	}

	ancestors, err := agentRepo.ListAncestors(directAgentID)
	if err != nil {
		return err
	}
	for _, edge := range ancestors {
		rule, err := agentRepo.GetActiveRule(edge.AncestorID, order.Currency)
		if err != nil {
			return err
		}
		if rule == nil {
			continue
		}
		if err := s.accrueOne(commissionRepo, order, edge.AncestorID, rule, directRate); err != nil {
			return err
		}
	}
	return nil
}

func (s *CommissionService) accrueOne(commissionRepo *repository.GormCommissionRepository, order *models.Order, agentID uint, rule *models.AgentCommissionRule, downstreamRate decimal.Decimal) error {
	exists, err := commissionRepo.ExistsForOrder(agentID, order.ID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	amount, err := computeCommission(rule, order.Amount.Decimal, downstreamRate)
	if err != nil {
		return err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	return commissionRepo.Create(&models.CommissionAccrual{
		AgentID:  agentID,
		OrderID:  order.ID,
		Currency: order.Currency,
		RateType: rule.RateType,
		Amount:   models.NewMoneyFromDecimal(amount),
		Status:   constants.CommissionStatusPending,
	})
}

// computeCommission 按规则计算单笔佣金
func computeCommission(rule *models.AgentCommissionRule, orderAmount, downstreamRate decimal.Decimal) (decimal.Decimal, error) {
	hundred := decimal.NewFromInt(100)
	switch rule.RateType {
	case constants.CommissionRateTypePercentage:
		return orderAmount.Mul(rule.RatePercent.Decimal).Div(hundred), nil
	case constants.CommissionRateTypeFixed:
		return rule.FixedAmount.Decimal, nil
	case constants.CommissionRateTypeMarkup:
		diff := downstreamRate.Sub(rule.RatePercent.Decimal)
		if diff.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero, nil
		}
		return orderAmount.Mul(diff).Div(hundred), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownCommissionRateType, rule.RateType)
	}
}

// SettleSummary 佣金批量结算汇总
type SettleSummary struct {
	Groups   int // 处理的代理×币种分组数
	Accruals int // 翻转为已结算的应计条数
}

// SettleAccruals 批量结算待入账佣金。
// 每个代理×币种分组一个事务：锁余额行、累加精确金额、
// 入账并翻转应计状态，要么整组成功要么整组回滚。
func (s *CommissionService) SettleAccruals() (*SettleSummary, error) {
	groups, err := s.commissionRepo.ListPendingGroups()
	if err != nil {
		return nil, err
	}
	summary := &SettleSummary{}
	for _, group := range groups {
		settled, err := s.settleGroup(group.AgentID, group.Currency)
		if err != nil {
			logger.SW().Errorw("commission_settle_group_failed",
				"agent_id", group.AgentID,
				"currency", group.Currency,
				"error", err)
			continue
		}
		if settled > 0 {
			summary.Groups++
			summary.Accruals += settled
		}
	}
	return summary, nil
}

func (s *CommissionService) settleGroup(agentID uint, currency string) (int, error) {
	settled := 0
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		agentRepo := s.agentRepo.WithTx(tx)

		// 行锁住待结算应计：锁 TTL 过期后重入的并发批次
		// 在这里阻塞，等前一批提交后只会读到空集。
		accruals, err := commissionRepo.ListPendingByGroupForUpdate(agentID, currency)
		if err != nil {
			return err
		}
		if len(accruals) == 0 {
			return nil
		}

		total := decimal.Zero
		ids := make([]uint, 0, len(accruals))
		for _, accrual := range accruals {
			total = total.Add(accrual.Amount.Decimal)
			ids = append(ids, accrual.ID)
		}
		if err := agentRepo.CreditBalance(agentID, currency, models.NewMoneyFromDecimal(total)); err != nil {
			return err
		}
		flipped, err := commissionRepo.MarkSettled(ids, time.Now())
		if err != nil {
			return err
		}
		if flipped != int64(len(ids)) {
			// 读到的待结算行已被并发批次翻转，入账必须跟着回滚
			return fmt.Errorf("settle group %d/%s: flipped %d of %d accruals", agentID, currency, flipped, len(ids))
		}
		settled = len(ids)
		logger.SW().Infow("commission_group_settled",
			"agent_id", agentID,
			"currency", currency,
			"accrual_count", len(ids),
			"total", total.String())
		return nil
	})
	return settled, err
}
