// internal/service/order/application/saga/persist_items.go
package saga

import (
	"github.com/pkg/errors"

	"atlas/internal/service/order/domain"
)

// PersistItemsHandler 落库订单商品行，是预占成功之后的最后一个前进步骤。
type PersistItemsHandler struct {
	NextHandler
}

func (h *PersistItemsHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PersistItems")
	defer span.End()

	order := orderCtx.Order
	items := make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.OrderID = order.ID
		items[i] = item
	}

	err := orderCtx.Store.InTx(ctx, func(tx domain.Tx) error {
		return tx.InsertOrderItems(ctx, items)
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to persist order items")
	}

	order.Items = items
	span.AddEvent("order items persisted")
	return h.executeNext(orderCtx)
}
