package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
)

// SettlementListFilter 结算列表过滤条件
type SettlementListFilter struct {
	EntityType string
	EntityID   uint
	Status     string
	Page       int
	PageSize   int
}

// SettlementRepository 结算批次数据访问接口
type SettlementRepository interface {
	Create(settlement *models.Settlement) error
	Update(settlement *models.Settlement) error
	GetByID(id uint) (*models.Settlement, error)
	GetByIDForUpdate(id uint) (*models.Settlement, error)
	ExistsForPeriod(entityType string, entityID uint, currency string, periodStart, periodEnd time.Time) (bool, error)
	List(filter SettlementListFilter) ([]models.Settlement, int64, error)
	SumCompletedNet(entityType string, entityID uint, currency string) (models.Money, error)
	LockCompletedForEntity(entityType string, entityID uint, currency string) error
	WithTx(tx *gorm.DB) *GormSettlementRepository
}

// GormSettlementRepository GORM 实现
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository 创建结算仓库
func NewSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSettlementRepository) WithTx(tx *gorm.DB) *GormSettlementRepository {
	if tx == nil {
		return r
	}
	return &GormSettlementRepository{db: tx}
}

// Create 创建结算批次
func (r *GormSettlementRepository) Create(settlement *models.Settlement) error {
	return r.db.Create(settlement).Error
}

// Update 更新结算批次
func (r *GormSettlementRepository) Update(settlement *models.Settlement) error {
	return r.db.Save(settlement).Error
}

// GetByID 根据 ID 获取结算批次
func (r *GormSettlementRepository) GetByID(id uint) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.First(&settlement, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// GetByIDForUpdate 根据 ID 获取结算批次并加行锁，必须在事务内调用
func (r *GormSettlementRepository) GetByIDForUpdate(id uint) (*models.Settlement, error) {
	var settlement models.Settlement
	if err := r.db.Clauses(lockingForUpdate()).First(&settlement, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settlement, nil
}

// ExistsForPeriod 判断实体在指定周期内是否已有结算批次
func (r *GormSettlementRepository) ExistsForPeriod(entityType string, entityID uint, currency string, periodStart, periodEnd time.Time) (bool, error) {
	var count int64
	if err := r.db.Model(&models.Settlement{}).
		Where("entity_type = ? AND entity_id = ? AND currency = ? AND period_start = ? AND period_end = ?",
			entityType, entityID, strings.ToUpper(strings.TrimSpace(currency)), periodStart, periodEnd).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List 分页查询结算批次
func (r *GormSettlementRepository) List(filter SettlementListFilter) ([]models.Settlement, int64, error) {
	query := r.db.Model(&models.Settlement{})
	if strings.TrimSpace(filter.EntityType) != "" {
		query = query.Where("entity_type = ?", strings.TrimSpace(filter.EntityType))
	}
	if filter.EntityID > 0 {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var settlements []models.Settlement
	if err := applyPagination(query.Order("id DESC"), filter.Page, filter.PageSize).
		Find(&settlements).Error; err != nil {
		return nil, 0, err
	}
	return settlements, total, nil
}

// LockCompletedForEntity 锁定实体币种下全部已完成结算行，必须在事务内调用。
// 同实体的并发提现申请都要先拿到这些行锁，余额校验因此串行化。
func (r *GormSettlementRepository) LockCompletedForEntity(entityType string, entityID uint, currency string) error {
	var ids []uint
	return r.db.Model(&models.Settlement{}).
		Clauses(lockingForUpdate()).
		Where("entity_type = ? AND entity_id = ? AND currency = ? AND status = ?",
			entityType, entityID, strings.ToUpper(strings.TrimSpace(currency)), constants.SettlementStatusCompleted).
		Pluck("id", &ids).Error
}

// SumCompletedNet 汇总实体已完成结算的净额
func (r *GormSettlementRepository) SumCompletedNet(entityType string, entityID uint, currency string) (models.Money, error) {
	var settlements []models.Settlement
	if err := r.db.Where("entity_type = ? AND entity_id = ? AND currency = ? AND status = ?",
		entityType, entityID, strings.ToUpper(strings.TrimSpace(currency)), constants.SettlementStatusCompleted).
		Find(&settlements).Error; err != nil {
		return models.Money{}, err
	}
	total := models.Money{}
	for _, settlement := range settlements {
		total = models.NewMoneyFromDecimal(total.Decimal.Add(settlement.NetAmount.Decimal))
	}
	return total, nil
}
