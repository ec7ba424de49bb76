// internal/service/order/domain/port/inventory.go
package port

import (
	"context"
	"time"
)

// InventoryService 是库存服务的出站端口。
// 调用失败的语义由错误分类承载：超时/不可达是 Unavailable，绝不等于"不存在"。
type InventoryService interface {
	// Reserve 为订单预占库存，expiresAt 之后未确认的预占会被清扫回收。
	Reserve(ctx context.Context, orderID, productID int64, quantity int, expiresAt time.Time) error
	// ReleaseByOrder 释放订单名下的全部活跃预占，对无活跃预占的订单是无害的空操作。
	ReleaseByOrder(ctx context.Context, orderID int64, reason string) error
	// ConfirmByOrder 确认订单名下的全部活跃预占，库存被永久扣减。
	ConfirmByOrder(ctx context.Context, orderID int64) error
}
