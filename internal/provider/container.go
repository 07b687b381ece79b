package provider

import (
	"time"

	"github.com/payhub-next/internal/cache"
	"github.com/payhub-next/internal/channel"
	"github.com/payhub-next/internal/channel/factory"
	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/idempotency"
	"github.com/payhub-next/internal/lock"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
	"github.com/payhub-next/internal/queue"
	"github.com/payhub-next/internal/repository"
	"github.com/payhub-next/internal/risk"
	"github.com/payhub-next/internal/service"
)

// Container 依赖注入容器。
// Redis、锁与幂等存储都是显式构建后注入，不暴露包级全局状态。
type Container struct {
	Config      *config.Config
	Cache       *cache.Client
	Locker      *lock.Locker
	IdemStore   *idempotency.Store
	QueueClient *queue.Client
	Registry    *channel.Registry

	// Repositories
	OrderRepo          *repository.GormOrderRepository
	MerchantRepo       *repository.GormMerchantRepository
	PaymentChannelRepo *repository.GormPaymentChannelRepository
	AgentRepo          *repository.GormAgentRepository
	CommissionRepo     *repository.GormCommissionRepository
	SettlementRepo     *repository.GormSettlementRepository
	WithdrawalRepo     *repository.GormWithdrawalRepository

	// Services
	OrderService      *service.OrderService
	CommissionService *service.CommissionService
	SettlementService *service.SettlementService
	WithdrawalService *service.WithdrawalService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	cacheClient, err := cache.NewClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}
	if queueClient == nil {
		queueClient, _ = queue.NewClient(nil)
	}

	c := &Container{
		Config:      cfg,
		Cache:       cacheClient,
		Locker:      lock.NewLocker(cacheClient, time.Duration(cfg.Lock.TTLSeconds)*time.Second),
		IdemStore:   idempotency.NewStore(cacheClient, time.Duration(cfg.Idempotency.TTLSeconds)*time.Second),
		QueueClient: queueClient,
	}

	c.initRepositories()
	if err := c.initRegistry(); err != nil {
		return nil, err
	}
	c.initServices()
	return c, nil
}

func (c *Container) initRepositories() {
	db := models.DB
	c.OrderRepo = repository.NewOrderRepository(db)
	c.MerchantRepo = repository.NewMerchantRepository(db)
	c.PaymentChannelRepo = repository.NewPaymentChannelRepository(db)
	c.AgentRepo = repository.NewAgentRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.SettlementRepo = repository.NewSettlementRepository(db)
	c.WithdrawalRepo = repository.NewWithdrawalRepository(db)
}

func (c *Container) initRegistry() error {
	channels, err := c.PaymentChannelRepo.ListActive()
	if err != nil {
		return err
	}
	timeout := time.Duration(c.Config.Channel.TimeoutSeconds) * time.Second
	registry, err := factory.BuildRegistry(channels, timeout)
	if err != nil {
		return err
	}
	c.Registry = registry
	return nil
}

func (c *Container) initServices() {
	c.CommissionService = service.NewCommissionService(c.AgentRepo, c.CommissionRepo, c.MerchantRepo)
	c.SettlementService = service.NewSettlementService(c.OrderRepo, c.SettlementRepo, c.MerchantRepo, c.CommissionRepo)
	c.WithdrawalService = service.NewWithdrawalService(c.SettlementRepo, c.WithdrawalRepo)
	c.OrderService = service.NewOrderService(
		c.OrderRepo,
		c.MerchantRepo,
		c.PaymentChannelRepo,
		c.CommissionService,
		c.Registry,
		c.QueueClient,
		risk.NewEvaluator(&c.Config.Risk),
		&c.Config.Order,
		&c.Config.Channel,
	)
}

// Close 释放容器持有的外部连接
func (c *Container) Close() {
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_failed", "error", err)
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			logger.Warnw("provider_close_cache_failed", "error", err)
		}
	}
}
