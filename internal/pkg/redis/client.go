// internal/pkg/redis/client.go
package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Client 是 go-redis 的薄封装，持有一个可复用的连接池。
type Client struct {
	rdb *goredis.Client
}

// NewClient 创建并探活一个 Redis 客户端。
func NewClient(ctx context.Context, addr string) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

// GetClient 暴露底层客户端，供需要 pipeline 等高级能力的调用方使用。
func (c *Client) GetClient() *goredis.Client { return c.rdb }

// GetBytes 读取一个 key，不存在时返回 (nil, false, nil)。
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

// SetBytes 带 TTL 写入一个 key。
func (c *Client) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Delete 删除若干 key。
func (c *Client) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Close 关闭连接池。
func (c *Client) Close() error { return c.rdb.Close() }
