package repository

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/models"
)

// OrderListFilter 订单列表过滤条件
type OrderListFilter struct {
	MerchantID uint
	Status     string
	ChannelID  uint
	Page       int
	PageSize   int
}

// MerchantCurrencyGroup 未结算成功订单分组（商户×币种）
type MerchantCurrencyGroup struct {
	MerchantID uint   `gorm:"column:merchant_id"`
	Currency   string `gorm:"column:currency"`
}

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	Update(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByIDForUpdate(id uint) (*models.Order, error)
	GetByOrderNo(orderNo string) (*models.Order, error)
	GetByMerchantRef(merchantID uint, merchantRef string) (*models.Order, error)
	ListExpiredPending(now time.Time, limit int) ([]models.Order, error)
	ListUnsettledSuccess(merchantID uint, currency string, periodStart, periodEnd time.Time) ([]models.Order, error)
	ListUnsettledGroups(periodStart, periodEnd time.Time) ([]MerchantCurrencyGroup, error)
	StampSettlement(orderIDs []uint, settlementID uint) (int64, error)
	AppendTransitionLog(log *models.OrderTransitionLog) error
	ListTransitionLogs(orderID uint) ([]models.OrderTransitionLog, error)
	List(filter OrderListFilter) ([]models.Order, int64, error)
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// Update 更新订单
func (r *GormOrderRepository) Update(order *models.Order) error {
	return r.db.Save(order).Error
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByIDForUpdate 根据 ID 获取订单并加行锁，必须在事务内调用
func (r *GormOrderRepository) GetByIDForUpdate(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByOrderNo 根据平台订单号获取订单
func (r *GormOrderRepository) GetByOrderNo(orderNo string) (*models.Order, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Where("order_no = ?", orderNo).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// GetByMerchantRef 根据商户侧订单号获取订单
func (r *GormOrderRepository) GetByMerchantRef(merchantID uint, merchantRef string) (*models.Order, error) {
	merchantRef = strings.TrimSpace(merchantRef)
	if merchantID == 0 || merchantRef == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.Where("merchant_id = ? AND merchant_ref = ?", merchantID, merchantRef).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// ListExpiredPending 列出已到期的待支付订单
func (r *GormOrderRepository) ListExpiredPending(now time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 200
	}
	var orders []models.Order
	if err := r.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", constants.OrderStatusPending, now).
		Order("id ASC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListUnsettledSuccess 列出周期内未结算的成功订单
func (r *GormOrderRepository) ListUnsettledSuccess(merchantID uint, currency string, periodStart, periodEnd time.Time) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Where("merchant_id = ? AND currency = ? AND status = ? AND settlement_id IS NULL", merchantID, currency, constants.OrderStatusSuccess).
		Where("paid_at >= ? AND paid_at < ?", periodStart, periodEnd).
		Order("id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListUnsettledGroups 列出周期内存在未结算成功订单的商户×币种分组
func (r *GormOrderRepository) ListUnsettledGroups(periodStart, periodEnd time.Time) ([]MerchantCurrencyGroup, error) {
	var groups []MerchantCurrencyGroup
	if err := r.db.Model(&models.Order{}).
		Select("merchant_id, currency").
		Where("status = ? AND settlement_id IS NULL", constants.OrderStatusSuccess).
		Where("paid_at >= ? AND paid_at < ?", periodStart, periodEnd).
		Group("merchant_id, currency").
		Scan(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// StampSettlement 给订单打上结算批次标记，仅覆盖尚未结算的行，
// 返回实际打标的行数。重复执行不会改写已有标记，
// 调用方比对行数即可识别被并发结算抢先消费的订单。
func (r *GormOrderRepository) StampSettlement(orderIDs []uint, settlementID uint) (int64, error) {
	if len(orderIDs) == 0 || settlementID == 0 {
		return 0, nil
	}
	res := r.db.Model(&models.Order{}).
		Where("id IN ? AND settlement_id IS NULL", orderIDs).
		Update("settlement_id", settlementID)
	return res.RowsAffected, res.Error
}

// AppendTransitionLog 追加状态流转日志
func (r *GormOrderRepository) AppendTransitionLog(log *models.OrderTransitionLog) error {
	return r.db.Create(log).Error
}

// ListTransitionLogs 按时间顺序列出订单流转日志
func (r *GormOrderRepository) ListTransitionLogs(orderID uint) ([]models.OrderTransitionLog, error) {
	var logs []models.OrderTransitionLog
	if err := r.db.Where("order_id = ?", orderID).Order("id ASC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// List 分页查询订单
func (r *GormOrderRepository) List(filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{})
	if filter.MerchantID > 0 {
		query = query.Where("merchant_id = ?", filter.MerchantID)
	}
	if strings.TrimSpace(filter.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(filter.Status))
	}
	if filter.ChannelID > 0 {
		query = query.Where("channel_id = ?", filter.ChannelID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := applyPagination(query.Order("id DESC"), filter.Page, filter.PageSize).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}
