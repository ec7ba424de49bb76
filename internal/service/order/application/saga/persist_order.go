// internal/service/order/application/saga/persist_order.go
package saga

import (
	"github.com/pkg/errors"

	"atlas/internal/service/order/domain"
)

// PersistOrderHandler 落库订单行并维护 order_users 投影。
// 订单行必须先于预占调用落库并提交：库存服务在预占前会回查订单是否存在。
type PersistOrderHandler struct {
	NextHandler
}

func (h *PersistOrderHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PersistOrder")
	defer span.End()

	order := orderCtx.Order
	err := orderCtx.Store.InTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertUser(ctx, domain.User{ID: order.UserID, Role: "user"}); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, order)
	})
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "failed to persist pending order")
	}

	orderCtx.OrderPersisted = true
	span.AddEvent("pending order persisted")
	return h.executeNext(orderCtx)
}
