// internal/pkg/zookeeper/lock.go
package zookeeper

import (
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

const lockRoot = "/distributed_locks" // 所有分布式锁的根节点

// Conn 封装一个 Zookeeper 会话。
type Conn struct {
	conn *zk.Conn
}

// Connect 建立到 Zookeeper 集群的会话。
func Connect(servers []string, sessionTimeout time.Duration) (*Conn, error) {
	if sessionTimeout <= 0 {
		sessionTimeout = 10 * time.Second
	}
	conn, _, err := zk.Connect(servers, sessionTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Close 关闭会话，会话关闭后所有临时节点自动删除。
func (c *Conn) Close() { c.conn.Close() }

// TryLock 以非阻塞方式抢占一把锁：在锁路径下创建临时节点，
// 成功即持有锁，节点已存在说明锁在别的实例手里。
// 适用于"集群内只要有一个实例在干活"的场景，例如过期预占的清扫任务。
func (c *Conn) TryLock(resourceID string) (*Lock, bool, error) {
	if err := c.ensurePath(lockRoot); err != nil {
		return nil, false, err
	}

	lockPath := lockRoot + "/" + resourceID
	_, err := c.conn.Create(lockPath, []byte(""), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err == zk.ErrNodeExists {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create lock node %s: %w", lockPath, err)
	}
	return &Lock{conn: c.conn, path: lockPath}, true, nil
}

func (c *Conn) ensurePath(path string) error {
	exists, _, err := c.conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check lock root: %w", err)
	}
	if exists {
		return nil
	}
	_, err = c.conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("failed to create lock root node: %w", err)
	}
	return nil
}

// Lock 是一把已持有的锁。
type Lock struct {
	conn *zk.Conn
	path string
}

// Unlock 释放锁。节点已不存在（会话曾断开）不算错误。
func (l *Lock) Unlock() error {
	err := l.conn.Delete(l.path, -1)
	if err != nil && err != zk.ErrNoNode {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}
