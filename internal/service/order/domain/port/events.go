// internal/service/order/domain/port/events.go
package port

import (
	"context"

	"atlas/internal/service/order/domain"
)

// EventPublisher 把订单生命周期事件发到消息总线。
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error
}
