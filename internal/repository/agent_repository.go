package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/payhub-next/internal/models"
)

// AgentRepository 代理及闭包层级数据访问接口
type AgentRepository interface {
	CreateWithHierarchy(agent *models.Agent) error
	GetByID(id uint) (*models.Agent, error)
	ListAncestors(agentID uint) ([]models.AgentHierarchy, error)
	GetActiveRule(agentID uint, currency string) (*models.AgentCommissionRule, error)
	CreateRule(rule *models.AgentCommissionRule) error
	GetBalance(agentID uint, currency string) (*models.AgentBalance, error)
	GetBalanceForUpdate(agentID uint, currency string) (*models.AgentBalance, error)
	CreditBalance(agentID uint, currency string, amount models.Money) error
	WithTx(tx *gorm.DB) *GormAgentRepository
}

// GormAgentRepository GORM 实现
type GormAgentRepository struct {
	db *gorm.DB
}

// NewAgentRepository 创建代理仓库
func NewAgentRepository(db *gorm.DB) *GormAgentRepository {
	return &GormAgentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAgentRepository) WithTx(tx *gorm.DB) *GormAgentRepository {
	if tx == nil {
		return r
	}
	return &GormAgentRepository{db: tx}
}

// CreateWithHierarchy 创建代理并一次性写入闭包层级：
// 自身 depth 0 边，加上父代理全部祖先边的 depth+1 副本。
// 层级关系建档后不再改写。
func (r *GormAgentRepository) CreateWithHierarchy(agent *models.Agent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(agent).Error; err != nil {
			return err
		}
		edges := []models.AgentHierarchy{
			{AncestorID: agent.ID, DescendantID: agent.ID, Depth: 0},
		}
		if agent.ParentID != nil && *agent.ParentID > 0 {
			var parentEdges []models.AgentHierarchy
			if err := tx.Where("descendant_id = ?", *agent.ParentID).
				Find(&parentEdges).Error; err != nil {
				return err
			}
			for _, edge := range parentEdges {
				edges = append(edges, models.AgentHierarchy{
					AncestorID:   edge.AncestorID,
					DescendantID: agent.ID,
					Depth:        edge.Depth + 1,
				})
			}
		}
		return tx.Create(&edges).Error
	})
}

// GetByID 根据 ID 获取代理
func (r *GormAgentRepository) GetByID(id uint) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.First(&agent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &agent, nil
}

// ListAncestors 列出代理的全部祖先边（不含自身），按距离升序
func (r *GormAgentRepository) ListAncestors(agentID uint) ([]models.AgentHierarchy, error) {
	var edges []models.AgentHierarchy
	if err := r.db.Where("descendant_id = ? AND depth > 0", agentID).
		Order("depth ASC").
		Find(&edges).Error; err != nil {
		return nil, err
	}
	return edges, nil
}

// GetActiveRule 获取代理在指定币种下启用的佣金规则
func (r *GormAgentRepository) GetActiveRule(agentID uint, currency string) (*models.AgentCommissionRule, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	var rule models.AgentCommissionRule
	if err := r.db.Where("agent_id = ? AND currency = ? AND is_active = ?", agentID, currency, true).
		First(&rule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// CreateRule 创建佣金规则
func (r *GormAgentRepository) CreateRule(rule *models.AgentCommissionRule) error {
	return r.db.Create(rule).Error
}

// GetBalance 获取代理币种余额
func (r *GormAgentRepository) GetBalance(agentID uint, currency string) (*models.AgentBalance, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	var balance models.AgentBalance
	if err := r.db.Where("agent_id = ? AND currency = ?", agentID, currency).
		First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// GetBalanceForUpdate 获取代理余额并加行锁，必须在事务内调用
func (r *GormAgentRepository) GetBalanceForUpdate(agentID uint, currency string) (*models.AgentBalance, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	var balance models.AgentBalance
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("agent_id = ? AND currency = ?", agentID, currency).
		First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// CreditBalance 给代理余额入账，余额行不存在时先创建
func (r *GormAgentRepository) CreditBalance(agentID uint, currency string, amount models.Money) error {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	balance, err := r.GetBalanceForUpdate(agentID, currency)
	if err != nil {
		return err
	}
	if balance == nil {
		return r.db.Create(&models.AgentBalance{
			AgentID:  agentID,
			Currency: currency,
			Balance:  amount,
		}).Error
	}
	balance.Balance = models.NewMoneyFromDecimal(balance.Balance.Decimal.Add(amount.Decimal))
	return r.db.Save(balance).Error
}
