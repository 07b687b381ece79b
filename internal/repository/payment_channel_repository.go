package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/models"
)

// PaymentChannelRepository 支付渠道数据访问接口
type PaymentChannelRepository interface {
	Create(channel *models.PaymentChannel) error
	GetByID(id uint) (*models.PaymentChannel, error)
	GetByCode(code string) (*models.PaymentChannel, error)
	ListActive() ([]models.PaymentChannel, error)
	WithTx(tx *gorm.DB) *GormPaymentChannelRepository
}

// GormPaymentChannelRepository GORM 实现
type GormPaymentChannelRepository struct {
	db *gorm.DB
}

// NewPaymentChannelRepository 创建支付渠道仓库
func NewPaymentChannelRepository(db *gorm.DB) *GormPaymentChannelRepository {
	return &GormPaymentChannelRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentChannelRepository) WithTx(tx *gorm.DB) *GormPaymentChannelRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentChannelRepository{db: tx}
}

// Create 创建渠道
func (r *GormPaymentChannelRepository) Create(channel *models.PaymentChannel) error {
	return r.db.Create(channel).Error
}

// GetByID 根据 ID 获取渠道
func (r *GormPaymentChannelRepository) GetByID(id uint) (*models.PaymentChannel, error) {
	var channel models.PaymentChannel
	if err := r.db.First(&channel, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetByCode 根据渠道编码获取渠道
func (r *GormPaymentChannelRepository) GetByCode(code string) (*models.PaymentChannel, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	var channel models.PaymentChannel
	if err := r.db.Where("code = ?", code).First(&channel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// ListActive 列出启用的渠道
func (r *GormPaymentChannelRepository) ListActive() ([]models.PaymentChannel, error) {
	var channels []models.PaymentChannel
	if err := r.db.Where("is_active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}
