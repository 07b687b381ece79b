package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
)

// PendingAccrualGroup 待结算佣金分组（代理×币种）
type PendingAccrualGroup struct {
	AgentID  uint   `gorm:"column:agent_id"`
	Currency string `gorm:"column:currency"`
}

// CommissionRepository 佣金应计数据访问接口
type CommissionRepository interface {
	Create(accrual *models.CommissionAccrual) error
	ExistsForOrder(agentID, orderID uint) (bool, error)
	ListPendingGroups() ([]PendingAccrualGroup, error)
	ListPendingByGroup(agentID uint, currency string) ([]models.CommissionAccrual, error)
	ListPendingByGroupForUpdate(agentID uint, currency string) ([]models.CommissionAccrual, error)
	MarkSettled(ids []uint, settledAt time.Time) (int64, error)
	SumSettled(agentID uint, currency string) (models.Money, error)
	ListSettledUnconsumed(agentID uint, currency string, periodStart, periodEnd time.Time) ([]models.CommissionAccrual, error)
	ListSettledGroupsInPeriod(periodStart, periodEnd time.Time) ([]PendingAccrualGroup, error)
	StampSettlement(ids []uint, settlementID uint) (int64, error)
	ListByOrder(orderID uint) ([]models.CommissionAccrual, error)
	WithTx(tx *gorm.DB) *GormCommissionRepository
}

// GormCommissionRepository GORM 实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓库
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) *GormCommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Create 创建佣金应计
func (r *GormCommissionRepository) Create(accrual *models.CommissionAccrual) error {
	return r.db.Create(accrual).Error
}

// ExistsForOrder 判断某代理对某订单是否已有应计
func (r *GormCommissionRepository) ExistsForOrder(agentID, orderID uint) (bool, error) {
	var count int64
	if err := r.db.Model(&models.CommissionAccrual{}).
		Where("agent_id = ? AND order_id = ?", agentID, orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListPendingGroups 列出存在待结算应计的代理×币种分组
func (r *GormCommissionRepository) ListPendingGroups() ([]PendingAccrualGroup, error) {
	var groups []PendingAccrualGroup
	if err := r.db.Model(&models.CommissionAccrual{}).
		Select("agent_id, currency").
		Where("status = ?", constants.CommissionStatusPending).
		Group("agent_id, currency").
		Scan(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// ListPendingByGroup 列出分组下全部待结算应计
func (r *GormCommissionRepository) ListPendingByGroup(agentID uint, currency string) ([]models.CommissionAccrual, error) {
	var accruals []models.CommissionAccrual
	if err := r.db.Where("agent_id = ? AND currency = ? AND status = ?",
		agentID, currency, constants.CommissionStatusPending).
		Order("id ASC").
		Find(&accruals).Error; err != nil {
		return nil, err
	}
	return accruals, nil
}

// ListPendingByGroupForUpdate 列出分组下全部待结算应计并加行锁，必须在事务内调用。
// 锁住待结算行后，锁过期重入的并发结算批次会在此阻塞并读到翻转后的状态。
func (r *GormCommissionRepository) ListPendingByGroupForUpdate(agentID uint, currency string) ([]models.CommissionAccrual, error) {
	var accruals []models.CommissionAccrual
	if err := r.db.Clauses(lockingForUpdate()).
		Where("agent_id = ? AND currency = ? AND status = ?",
			agentID, currency, constants.CommissionStatusPending).
		Order("id ASC").
		Find(&accruals).Error; err != nil {
		return nil, err
	}
	return accruals, nil
}

// MarkSettled 批量翻转应计状态为已结算，返回实际翻转的行数。
// 只匹配仍为待结算的行，调用方据此识别被并发批次抢先处理的分组。
func (r *GormCommissionRepository) MarkSettled(ids []uint, settledAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.Model(&models.CommissionAccrual{}).
		Where("id IN ? AND status = ?", ids, constants.CommissionStatusPending).
		Updates(map[string]interface{}{
			"status":     constants.CommissionStatusSettled,
			"settled_at": settledAt,
		})
	return res.RowsAffected, res.Error
}

// SumSettled 汇总代理币种下全部已结算佣金
func (r *GormCommissionRepository) SumSettled(agentID uint, currency string) (models.Money, error) {
	var accruals []models.CommissionAccrual
	if err := r.db.Where("agent_id = ? AND currency = ? AND status = ?",
		agentID, currency, constants.CommissionStatusSettled).
		Find(&accruals).Error; err != nil {
		return models.Money{}, err
	}
	total := models.Money{}
	for _, accrual := range accruals {
		total = models.NewMoneyFromDecimal(total.Decimal.Add(accrual.Amount.Decimal))
	}
	return total, nil
}

// ListSettledUnconsumed 列出周期内已结算且尚未汇入代理结算批次的应计
func (r *GormCommissionRepository) ListSettledUnconsumed(agentID uint, currency string, periodStart, periodEnd time.Time) ([]models.CommissionAccrual, error) {
	var accruals []models.CommissionAccrual
	if err := r.db.Where("agent_id = ? AND currency = ? AND status = ? AND settlement_id IS NULL",
		agentID, currency, constants.CommissionStatusSettled).
		Where("settled_at >= ? AND settled_at < ?", periodStart, periodEnd).
		Order("id ASC").
		Find(&accruals).Error; err != nil {
		return nil, err
	}
	return accruals, nil
}

// ListSettledGroupsInPeriod 列出周期内有未汇入批次的已结算应计的代理×币种分组
func (r *GormCommissionRepository) ListSettledGroupsInPeriod(periodStart, periodEnd time.Time) ([]PendingAccrualGroup, error) {
	var groups []PendingAccrualGroup
	if err := r.db.Model(&models.CommissionAccrual{}).
		Select("agent_id, currency").
		Where("status = ? AND settlement_id IS NULL", constants.CommissionStatusSettled).
		Where("settled_at >= ? AND settled_at < ?", periodStart, periodEnd).
		Group("agent_id, currency").
		Scan(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// StampSettlement 给应计打上代理结算批次标记，仅覆盖尚未汇入批次的行，
// 返回实际打标的行数。重复执行不改写已有标记，代理结算因此天然幂等。
func (r *GormCommissionRepository) StampSettlement(ids []uint, settlementID uint) (int64, error) {
	if len(ids) == 0 || settlementID == 0 {
		return 0, nil
	}
	res := r.db.Model(&models.CommissionAccrual{}).
		Where("id IN ? AND settlement_id IS NULL", ids).
		Update("settlement_id", settlementID)
	return res.RowsAffected, res.Error
}

// ListByOrder 列出订单产生的全部应计
func (r *GormCommissionRepository) ListByOrder(orderID uint) ([]models.CommissionAccrual, error) {
	var accruals []models.CommissionAccrual
	if err := r.db.Where("order_id = ?", orderID).Order("id ASC").Find(&accruals).Error; err != nil {
		return nil, err
	}
	return accruals, nil
}
