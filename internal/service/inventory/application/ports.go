// internal/service/inventory/application/ports.go
package application

import (
	"context"
	"time"

	"atlas/internal/service/inventory/domain"
)

// ProductCatalog 是商品目录服务的出站端口，只做存在性校验。
type ProductCatalog interface {
	// ProductExists 商品不存在返回 NotFound；下游超时或不可达返回 Unavailable。
	ProductExists(ctx context.Context, productID int64) error
}

// OrderDirectory 是订单服务的出站端口，只做存在性校验。
type OrderDirectory interface {
	OrderExists(ctx context.Context, orderID int64) error
}

// StockCache 缓存公共库存读，写路径负责失效。
type StockCache interface {
	Get(ctx context.Context, productID int64) (*domain.StockItem, bool)
	Set(ctx context.Context, item *domain.StockItem)
	Invalidate(ctx context.Context, productIDs ...int64)
}

// StockNotifier 把库存变动推给订阅方（运维看板的 WebSocket 推送），
// 尽力而为，不允许阻塞或影响主流程。
type StockNotifier interface {
	NotifyStockChanged(item domain.StockItem)
}

// SweepLocker 是清扫任务的可选分布式锁端口。
type SweepLocker interface {
	// TryAcquire 非阻塞抢锁，抢到返回释放函数；没抢到返回 (nil, false)。
	TryAcquire() (release func(), acquired bool, err error)
}

// Clock 便于测试注入时间。
type Clock func() time.Time
