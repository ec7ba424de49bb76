// internal/service/order/application/saga/handler.go
package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/domain/port"
)

// OrderContext 在下单 Saga 的各步骤之间传递状态。
// 所有外部依赖都是抽象端口，便于在测试里替换。
type OrderContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer

	Store     domain.Store
	Inventory port.InventoryService
	// ExpiresAt 是本次预占的到期时间，订单超时未支付后由清扫器回收。
	ExpiresAt time.Time

	// OrderPersisted 标记订单行已落库，决定失败后是否要做取消兜底。
	OrderPersisted bool

	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 注册一个补偿动作，触发时按注册的逆序执行。
func (c *OrderContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 执行全部已注册的补偿。补偿是尽力而为的：
// 单个补偿失败只记录，不中断后续补偿，清扫器是最终兜底。
func (c *OrderContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Int64("order_id", c.Order.ID).
		Int("compensations", len(c.compensations)).
		Msg("executing saga compensations")
	for _, comp := range c.compensations {
		comp(ctx)
	}
}

// Handler 是 Saga 步骤的责任链接口。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}
