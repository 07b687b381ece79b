package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/payhub-next/internal/config"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/lock"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/queue"
)

const expireSweepBatchSize = 200

// Service 异步队列与周期任务服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
	cfg      *config.Config
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
		cfg:      cfg,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	go s.runExpireSweepLoop(ctx)
	go s.runSettlementLoop(ctx)
	go s.runCommissionSettleLoop(ctx)
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runWithLock 持有命名锁执行任务，锁被其他实例占用时本轮跳过
func (s *Service) runWithLock(ctx context.Context, lockName string, fn func()) {
	lk, err := s.consumer.Locker.Acquire(ctx, lockName)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			logger.Debugw("job_lock_busy_skip", "lock", lockName)
			return
		}
		logger.Warnw("job_lock_acquire_failed", "lock", lockName, "error", err)
		return
	}
	defer func() {
		if _, err := lk.Release(ctx); err != nil {
			logger.Warnw("job_lock_release_failed", "lock", lockName, "error", err)
		}
	}()
	fn()
}

// runExpireSweepLoop 周期性兜底扫描到期未支付订单
func (s *Service) runExpireSweepLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Order.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWithLock(ctx, constants.LockOrderExpireSweep, func() {
				expired, err := s.consumer.OrderService.SweepExpiredOrders(expireSweepBatchSize)
				if err != nil {
					logger.Warnw("order_expire_sweep_run_failed", "error", err)
					return
				}
				if expired > 0 {
					logger.Infow("order_expire_sweep_done", "expired", expired)
				}
			})
		}
	}
}

// runSettlementLoop 周期性对上一个结算窗口执行结算
func (s *Service) runSettlementLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Settlement.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	periodHours := s.cfg.Settlement.PeriodHours
	if periodHours <= 0 {
		periodHours = 24
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWithLock(ctx, constants.LockSettlementRun, func() {
				periodEnd := time.Now()
				periodStart := periodEnd.Add(-time.Duration(periodHours) * time.Hour)
				summary, err := s.consumer.SettlementService.RunPeriod(periodStart, periodEnd)
				if err != nil {
					logger.Warnw("settlement_run_job_failed", "error", err)
					return
				}
				logger.Infow("settlement_run_job_done",
					"merchant_settlements", summary.MerchantSettlements,
					"agent_settlements", summary.AgentSettlements)
			})
		}
	}
}

// runCommissionSettleLoop 周期性批量结算待结佣金
func (s *Service) runCommissionSettleLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Commission.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWithLock(ctx, constants.LockCommissionSettleRun, func() {
				summary, err := s.consumer.CommissionService.SettleAccruals()
				if err != nil {
					logger.Warnw("commission_settle_job_failed", "error", err)
					return
				}
				if summary.Accruals > 0 {
					logger.Infow("commission_settle_job_done",
						"settled_accruals", summary.Accruals,
						"settled_groups", summary.Groups)
				}
			})
		}
	}
}
