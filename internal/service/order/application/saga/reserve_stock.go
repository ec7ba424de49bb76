// internal/service/order/application/saga/reserve_stock.go
package saga

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/metrics"
)

// ReserveStockHandler 调用库存服务预占库存。
// 预占成功后注册补偿：后续任何步骤失败都会以 order_create_rollback
// 为理由释放本订单的全部活跃预占。
type ReserveStockHandler struct {
	NextHandler
}

func (h *ReserveStockHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.ReserveStock")
	defer span.End()

	order := orderCtx.Order
	item := order.Items[0]
	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.Int64("product.id", item.ProductID),
		attribute.Int("quantity", item.Quantity),
	)

	if err := orderCtx.Inventory.Reserve(ctx, order.ID, item.ProductID, item.Quantity, orderCtx.ExpiresAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inventory reservation failed")
		return err
	}
	span.AddEvent("stock reserved")

	orderCtx.AddCompensation(func(compCtx context.Context) {
		compCtx, compSpan := orderCtx.Tracer.Start(compCtx, "saga.compensation.ReleaseStock")
		defer compSpan.End()

		// 补偿只尝试一次，失败交给过期清扫兜底
		if err := orderCtx.Inventory.ReleaseByOrder(compCtx, order.ID, "order_create_rollback"); err != nil {
			compSpan.RecordError(err)
			metrics.CompensationFailuresTotal.Inc()
			logger.Ctx(compCtx).Error().Err(err).
				Int64("order_id", order.ID).
				Msg("compensating stock release failed, expiry sweep will reclaim")
		}
	})

	return h.executeNext(orderCtx)
}
