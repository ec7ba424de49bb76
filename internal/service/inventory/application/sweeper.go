// internal/service/inventory/application/sweeper.go
package application

import (
	"context"
	"sync/atomic"
	"time"

	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/metrics"
)

// Sweeper 周期性触发过期预占清扫。单实例内用重入保护跳过仍在执行的 tick；
// 配置了 locker 时先抢分布式锁，保证集群内同一时刻只有一个实例清扫。
// 清扫是补偿丢失后的最终兜底，因此失败只记录并等待下一个 tick。
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	locker   SweepLocker // 可为 nil
	running  atomic.Bool
}

// NewSweeper interval <= 0 表示禁用清扫。
func NewSweeper(engine *Engine, interval time.Duration, locker SweepLocker) *Sweeper {
	return &Sweeper{engine: engine, interval: interval, locker: locker}
}

// Run 随服务生命周期运行，ctx 取消后返回。
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		logger.Ctx(ctx).Info().Msg("reservation sweep disabled")
		return nil
	}

	logger.Ctx(ctx).Info().Dur("interval", s.interval).Msg("reservation sweep started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("reservation sweep stopped")
			return nil
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.SweepRunsTotal.WithLabelValues("skipped").Inc()
		return
	}
	defer s.running.Store(false)

	if s.locker != nil {
		release, acquired, err := s.locker.TryAcquire()
		if err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("sweep lock acquisition failed")
			metrics.SweepRunsTotal.WithLabelValues("error").Inc()
			return
		}
		if !acquired {
			metrics.SweepRunsTotal.WithLabelValues("skipped").Inc()
			return
		}
		defer release()
	}

	result, err := s.engine.Sweep(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("failed to release expired reservations")
		metrics.SweepRunsTotal.WithLabelValues("error").Inc()
		return
	}

	metrics.SweepRunsTotal.WithLabelValues("ok").Inc()
	if result.ExpiredCount > 0 {
		logger.Ctx(ctx).Info().
			Int("count", result.ExpiredCount).
			Int("quantity", result.ExpiredQuantity).
			Msg("released expired reservations")
	}
}
