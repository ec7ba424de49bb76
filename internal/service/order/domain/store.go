// internal/service/order/domain/store.go
package domain

import "context"

// Store 是订单聚合的持久化端口。
type Store interface {
	// InTx 在一个数据库事务内执行 fn，fn 返回错误则整体回滚。
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// GetOrder 返回订单及其商品行，不存在时返回 (nil, nil)。
	GetOrder(ctx context.Context, orderID int64) (*Order, error)
	// ListOrdersByUser 返回某用户的全部订单（含商品行），新订单在前。
	ListOrdersByUser(ctx context.Context, userID int64) ([]Order, error)
	// OrderExists 只做存在性判断，供库存服务的预占前校验使用。
	OrderExists(ctx context.Context, orderID int64) (bool, error)
	// UpsertUser 维护 order_users 投影，供用户事件消费者使用。
	UpsertUser(ctx context.Context, user User) error
}

// Tx 是单个事务内可用的写操作。
type Tx interface {
	// InsertOrder 插入订单行并回填自增 ID。
	InsertOrder(ctx context.Context, order *Order) error
	// InsertOrderItems 插入订单商品行。
	InsertOrderItems(ctx context.Context, items []OrderItem) error
	// LockOrder 以排它锁读出订单行（不含商品行），不存在时返回 (nil, nil)。
	LockOrder(ctx context.Context, orderID int64) (*Order, error)
	// UpdateOrderStatus 持久化状态流转的结果字段。
	UpdateOrderStatus(ctx context.Context, order *Order) error
	// UpsertUser 在事务内维护 order_users 投影。
	UpsertUser(ctx context.Context, user User) error
}
