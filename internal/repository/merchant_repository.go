package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/payhub-next/internal/models"
)

// MerchantRepository 商户数据访问接口
type MerchantRepository interface {
	Create(merchant *models.Merchant) error
	GetByID(id uint) (*models.Merchant, error)
	GetChannelFee(merchantID, channelID uint, currency string) (*models.MerchantChannelFee, error)
	CreateChannelFee(fee *models.MerchantChannelFee) error
	WithTx(tx *gorm.DB) *GormMerchantRepository
}

// GormMerchantRepository GORM 实现
type GormMerchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository 创建商户仓库
func NewMerchantRepository(db *gorm.DB) *GormMerchantRepository {
	return &GormMerchantRepository{db: db}
}

// WithTx 绑定事务
func (r *GormMerchantRepository) WithTx(tx *gorm.DB) *GormMerchantRepository {
	if tx == nil {
		return r
	}
	return &GormMerchantRepository{db: tx}
}

// Create 创建商户
func (r *GormMerchantRepository) Create(merchant *models.Merchant) error {
	return r.db.Create(merchant).Error
}

// GetByID 根据 ID 获取商户
func (r *GormMerchantRepository) GetByID(id uint) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.db.First(&merchant, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

// GetChannelFee 获取商户在指定渠道币种下启用的费率配置
func (r *GormMerchantRepository) GetChannelFee(merchantID, channelID uint, currency string) (*models.MerchantChannelFee, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	var fee models.MerchantChannelFee
	if err := r.db.Where("merchant_id = ? AND channel_id = ? AND currency = ? AND is_active = ?",
		merchantID, channelID, currency, true).
		First(&fee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fee, nil
}

// CreateChannelFee 创建费率配置
func (r *GormMerchantRepository) CreateChannelFee(fee *models.MerchantChannelFee) error {
	return r.db.Create(fee).Error
}
