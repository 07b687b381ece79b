package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
)

// WithdrawalListFilter 提现列表过滤条件
type WithdrawalListFilter struct {
	EntityType string
	EntityID   uint
	Status     string
	Page       int
	PageSize   int
}

// WithdrawalRepository 提现数据访问接口
type WithdrawalRepository interface {
	Create(withdrawal *models.Withdrawal) error
	Update(withdrawal *models.Withdrawal) error
	GetByID(id uint) (*models.Withdrawal, error)
	SumHeld(entityType string, entityID uint, currency string) (models.Money, error)
	List(filter WithdrawalListFilter) ([]models.Withdrawal, int64, error)
	WithTx(tx *gorm.DB) *GormWithdrawalRepository
}

// GormWithdrawalRepository GORM 实现
type GormWithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现仓库
func NewWithdrawalRepository(db *gorm.DB) *GormWithdrawalRepository {
	return &GormWithdrawalRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWithdrawalRepository) WithTx(tx *gorm.DB) *GormWithdrawalRepository {
	if tx == nil {
		return r
	}
	return &GormWithdrawalRepository{db: tx}
}

// Create 创建提现申请
func (r *GormWithdrawalRepository) Create(withdrawal *models.Withdrawal) error {
	return r.db.Create(withdrawal).Error
}

// Update 更新提现申请
func (r *GormWithdrawalRepository) Update(withdrawal *models.Withdrawal) error {
	return r.db.Save(withdrawal).Error
}

// GetByID 根据 ID 获取提现申请
func (r *GormWithdrawalRepository) GetByID(id uint) (*models.Withdrawal, error) {
	var withdrawal models.Withdrawal
	if err := r.db.First(&withdrawal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &withdrawal, nil
}

// SumHeld 汇总占用中的提现金额（未失败即占用可用余额）
func (r *GormWithdrawalRepository) SumHeld(entityType string, entityID uint, currency string) (models.Money, error) {
	var withdrawals []models.Withdrawal
	if err := r.db.Where("entity_type = ? AND entity_id = ? AND currency = ? AND status <> ?",
		entityType, entityID, strings.ToUpper(strings.TrimSpace(currency)), constants.WithdrawalStatusFailed).
		Find(&withdrawals).Error; err != nil {
		return models.Money{}, err
	}
	total := models.Money{}
	for _, withdrawal := range withdrawals {
		total = models.NewMoneyFromDecimal(total.Decimal.Add(withdrawal.Amount.Decimal))
	}
	return total, nil
}

// List 分页查询提现申请
func (r *GormWithdrawalRepository) List(filter WithdrawalListFilter) ([]models.Withdrawal, int64, error) {
	query := r.db.Model(&models.Withdrawal{})
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

	var withdrawals []models.Withdrawal
	if err := applyPagination(query.Order("id DESC"), filter.Page, filter.PageSize).
		Find(&withdrawals).Error; err != nil {
		return nil, 0, err
	}
	return withdrawals, total, nil
}
