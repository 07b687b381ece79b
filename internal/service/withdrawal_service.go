package service

import (
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/repository"
)

// WithdrawalService 提现服务。
// 可用余额按历史记录推导：已完成结算净额之和减去未失败提现之和，
// 不维护独立的账户余额状态。
type WithdrawalService struct {
	settlementRepo *repository.GormSettlementRepository
	withdrawalRepo *repository.GormWithdrawalRepository
}

// NewWithdrawalService 创建提现服务
func NewWithdrawalService(
	settlementRepo *repository.GormSettlementRepository,
	withdrawalRepo *repository.GormWithdrawalRepository,
) *WithdrawalService {
	return &WithdrawalService{
		settlementRepo: settlementRepo,
		withdrawalRepo: withdrawalRepo,
	}
}

// CreateWithdrawalInput 创建提现输入
type CreateWithdrawalInput struct {
	EntityType    string
	EntityID      uint
	Currency      string
	Amount        string
	Fee           string
	PayoutDetails map[string]interface{}
}

// AvailableBalance 推导实体当前可用余额
func (s *WithdrawalService) AvailableBalance(entityType string, entityID uint, currency string) (models.Money, error) {
	settledNet, err := s.settlementRepo.SumCompletedNet(entityType, entityID, currency)
	if err != nil {
		return models.Money{}, err
	}
	held, err := s.withdrawalRepo.SumHeld(entityType, entityID, currency)
	if err != nil {
		return models.Money{}, err
	}
	return models.NewMoneyFromDecimal(settledNet.Decimal.Sub(held.Decimal)), nil
}

// CreateWithdrawal 创建提现申请。
// 余额校验与落库在同一事务内完成，超额申请不会留下任何记录。
func (s *WithdrawalService) CreateWithdrawal(input CreateWithdrawalInput) (*models.Withdrawal, error) {
	entityType := strings.ToLower(strings.TrimSpace(input.EntityType))
	switch entityType {
	case constants.SettlementEntityMerchant, constants.SettlementEntityAgent:
	default:
		return nil, ErrUnsupportedEntityType
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))

	amount, err := models.NewMoneyFromString(strings.TrimSpace(input.Amount))
	if err != nil || amount.Decimal.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	fee := models.NewMoneyFromDecimal(decimal.Zero)
	if strings.TrimSpace(input.Fee) != "" {
		fee, err = models.NewMoneyFromString(strings.TrimSpace(input.Fee))
		if err != nil || fee.Decimal.IsNegative() {
			return nil, ErrInvalidAmount
		}
	}
	payout := amount.Decimal.Sub(fee.Decimal)
	if payout.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	var withdrawal *models.Withdrawal
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		settlementRepo := s.settlementRepo.WithTx(tx)
		withdrawalRepo := s.withdrawalRepo.WithTx(tx)

		// 先锁实体的已完成结算行，同实体的并发提现在此排队，
		// 余额校验与落库之间不会再挤进第二笔申请
		if err := settlementRepo.LockCompletedForEntity(entityType, input.EntityID, currency); err != nil {
			return err
		}
		settledNet, err := settlementRepo.SumCompletedNet(entityType, input.EntityID, currency)
		if err != nil {
			return err
		}
		held, err := withdrawalRepo.SumHeld(entityType, input.EntityID, currency)
		if err != nil {
			return err
		}
		available := settledNet.Decimal.Sub(held.Decimal)
		if amount.Decimal.GreaterThan(available) {
			return ErrInsufficientBalance
		}

		withdrawal = &models.Withdrawal{
			EntityType:    entityType,
			EntityID:      input.EntityID,
			Currency:      currency,
			Amount:        amount,
			Fee:           fee,
			PayoutAmount:  models.NewMoneyFromDecimal(payout),
			PayoutDetails: models.JSON(input.PayoutDetails),
			Status:        constants.WithdrawalStatusPending,
		}
		return withdrawalRepo.Create(withdrawal)
	})
	if err != nil {
		return nil, err
	}
	logger.SW().Infow("withdrawal_created",
		"withdrawal_id", withdrawal.ID,
		"entity_type", entityType,
		"entity_id", input.EntityID,
		"currency", currency,
		"amount", withdrawal.Amount.String())
	return withdrawal, nil
}

// ListWithdrawals 分页查询提现申请
func (s *WithdrawalService) ListWithdrawals(filter repository.WithdrawalListFilter) ([]models.Withdrawal, int64, error) {
	return s.withdrawalRepo.List(filter)
}
