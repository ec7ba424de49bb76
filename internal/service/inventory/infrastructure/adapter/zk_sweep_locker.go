// internal/service/inventory/infrastructure/adapter/zk_sweep_locker.go
package adapter

import (
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/zookeeper"
)

// ZkSweepLocker 实现 application.SweepLocker：
// 用 Zookeeper 临时节点做清扫任务的集群级互斥。
type ZkSweepLocker struct {
	conn     *zookeeper.Conn
	resource string
}

func NewZkSweepLocker(conn *zookeeper.Conn, resource string) *ZkSweepLocker {
	return &ZkSweepLocker{conn: conn, resource: resource}
}

func (l *ZkSweepLocker) TryAcquire() (func(), bool, error) {
	lock, acquired, err := l.conn.TryLock(l.resource)
	if err != nil || !acquired {
		return nil, false, err
	}
	release := func() {
		if err := lock.Unlock(); err != nil {
			logger.Logger().Error().Err(err).Msg("failed to release sweep lock")
		}
	}
	return release, true, nil
}
