// internal/service/inventory/application/engine.go
package application

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/metrics"
	"atlas/internal/service/inventory/domain"
)

// Engine 是库存预占引擎：reserve / confirm / release / sweep 四个公开操作，
// 每个操作都是 Ledger + Store 之上的一个原子事务，行级悲观锁在事务内持有。
type Engine struct {
	store    domain.Store
	catalog  ProductCatalog
	orders   OrderDirectory
	cache    StockCache
	notifier StockNotifier
	tracer   trace.Tracer
	now      Clock
}

// NewEngine 创建预占引擎。cache 与 notifier 可以为 nil。
func NewEngine(store domain.Store, catalog ProductCatalog, orders OrderDirectory, cache StockCache, notifier StockNotifier) *Engine {
	return &Engine{
		store:    store,
		catalog:  catalog,
		orders:   orders,
		cache:    cache,
		notifier: notifier,
		tracer:   otel.Tracer("inventory-engine"),
		now:      time.Now,
	}
}

// WithClock 替换时钟，测试用。
func (e *Engine) WithClock(clock Clock) *Engine {
	e.now = clock
	return e
}

// Reserve 为 (orderId, productId) 预占 quantity 个库存。
// 相同数量的重复调用是幂等命中，返回已有预占；数量不同则拒绝为 Conflict，
// 这让调用方在网络超时后可以安全重试而不会重复扣减。
func (e *Engine) Reserve(ctx context.Context, cmd ReserveCommand) (*ReserveResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Reserve", trace.WithAttributes(
		attribute.Int64("order.id", cmd.OrderID),
		attribute.Int64("product.id", cmd.ProductID),
		attribute.Int("quantity", cmd.Quantity),
	))
	defer span.End()

	if cmd.OrderID <= 0 {
		return nil, apperr.InvalidInput("Invalid orderId")
	}
	if cmd.ProductID <= 0 {
		return nil, apperr.InvalidInput("Invalid productId")
	}
	if cmd.Quantity <= 0 {
		return nil, apperr.InvalidInput("Invalid quantity")
	}

	// 存在性校验交给各自的属主服务，且必须发生在开启事务之前，
	// 远程调用绝不能发生在持有行锁期间。
	if err := e.catalog.ProductExists(ctx, cmd.ProductID); err != nil {
		return nil, err
	}
	if err := e.orders.OrderExists(ctx, cmd.OrderID); err != nil {
		return nil, err
	}

	var result ReserveResult
	var idempotentHit bool
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		item, err := tx.LockStockItem(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		if item == nil {
			return apperr.NotFound("Inventory item not found")
		}

		existing, err := tx.LockActiveReservation(ctx, cmd.OrderID, cmd.ProductID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Quantity != cmd.Quantity {
				return apperr.Conflict("Active reservation already exists with different quantity")
			}
			// 幂等重试：原样返回，不做第二次扣减
			idempotentHit = true
			result = ReserveResult{Reservation: *existing, Stock: *item}
			return nil
		}

		if item.AvailableQuantity() < cmd.Quantity {
			return apperr.InsufficientStock(item.AvailableQuantity())
		}

		reservation := &domain.Reservation{
			OrderID:   cmd.OrderID,
			ProductID: cmd.ProductID,
			Quantity:  cmd.Quantity,
			Status:    domain.StatusActive,
			ExpiresAt: cmd.ExpiresAt,
		}
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		if err := tx.AddReservedQuantity(ctx, cmd.ProductID, cmd.Quantity); err != nil {
			return err
		}

		updated, err := tx.GetStockItem(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		result = ReserveResult{Reservation: *reservation, Stock: *updated}
		return nil
	})
	if err != nil {
		e.recordReserveFailure(span, err)
		return nil, err
	}

	if idempotentHit {
		span.AddEvent("idempotent reservation hit")
		metrics.ReservationsTotal.WithLabelValues("idempotent_hit").Inc()
		return &result, nil
	}

	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	e.stockChanged(ctx, result.Stock.ProductID)
	return &result, nil
}

func (e *Engine) recordReserveFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch {
	case apperr.IsKind(err, apperr.KindConflict):
		metrics.ReservationsTotal.WithLabelValues("conflict").Inc()
	case apperr.IsKind(err, apperr.KindInsufficientStock):
		metrics.ReservationsTotal.WithLabelValues("insufficient_stock").Inc()
	default:
		metrics.ReservationsTotal.WithLabelValues("error").Inc()
	}
}

// Confirm 确认订单名下全部 active 预占：同时扣减 total 与 reserved，
// 即确认会永久消耗库存，而不只是解除持有。无 active 预占时为零值幂等。
func (e *Engine) Confirm(ctx context.Context, orderID int64) (*ConfirmResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Confirm", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
	))
	defer span.End()

	if orderID <= 0 {
		return nil, apperr.InvalidInput("Invalid orderId")
	}
	if err := e.orders.OrderExists(ctx, orderID); err != nil {
		return nil, err
	}

	result := &ConfirmResult{OrderID: orderID, Reservations: []domain.Reservation{}}
	var touched []int64
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		active, err := tx.LockActiveReservationsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}

		for _, reservation := range active {
			item, err := tx.LockStockItem(ctx, reservation.ProductID)
			if err != nil {
				return err
			}
			if item == nil {
				return apperr.NotFound("Inventory item not found for productId %d", reservation.ProductID)
			}
			// 账目一致性检查：违反说明状态已被外部破坏，按 Conflict 中止
			if item.TotalQuantity < reservation.Quantity || item.ReservedQuantity < reservation.Quantity {
				return apperr.Conflict("Inventory state conflict for productId %d", reservation.ProductID)
			}
			if err := tx.ConsumeStock(ctx, reservation.ProductID, reservation.Quantity); err != nil {
				return err
			}
			touched = append(touched, reservation.ProductID)
		}

		ids := make([]int64, 0, len(active))
		for _, reservation := range active {
			ids = append(ids, reservation.ID)
			result.ConfirmedQuantity += reservation.Quantity
		}
		if err := tx.FinishReservations(ctx, ids, domain.StatusConfirmed, domain.ReasonOrderConfirmed); err != nil {
			return err
		}
		result.ConfirmedCount = len(ids)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if result.ConfirmedCount > 0 {
		reservations, err := e.store.GetReservationsByOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		result.Reservations = reservations
		metrics.ReservationsConfirmedTotal.Add(float64(result.ConfirmedCount))
		e.stockChanged(ctx, touched...)
	}
	return result, nil
}

// ReleaseByOrder 释放订单名下全部 active 预占。已离开 active 的行保持原样，
// 重复释放是无害的空操作。同一商品的多条预占在写账目前先按商品聚合。
func (e *Engine) ReleaseByOrder(ctx context.Context, orderID int64, reason string) (*OrderReleaseResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReleaseByOrder", trace.WithAttributes(
		attribute.Int64("order.id", orderID),
	))
	defer span.End()

	if orderID <= 0 {
		return nil, apperr.InvalidInput("Invalid orderId")
	}
	normalizedReason := domain.NormalizeReleaseReason(reason, domain.ReasonOrderCancelled)
	if err := e.orders.OrderExists(ctx, orderID); err != nil {
		return nil, err
	}

	result := &OrderReleaseResult{OrderID: orderID, Reservations: []domain.Reservation{}}
	var touched []int64
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		active, err := tx.LockActiveReservationsByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(active))
		for _, reservation := range active {
			ids = append(ids, reservation.ID)
			result.ReleasedQuantity += reservation.Quantity
		}
		if err := e.subtractAggregated(ctx, tx, active); err != nil {
			return err
		}
		if err := tx.FinishReservations(ctx, ids, domain.StatusReleased, normalizedReason); err != nil {
			return err
		}
		result.ReleasedCount = len(ids)
		touched = productIDsOf(active)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	reservations, err := e.store.GetReservationsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Reservations = reservations

	if result.ReleasedCount > 0 {
		metrics.ReservationsReleasedTotal.Add(float64(result.ReleasedCount))
		e.stockChanged(ctx, touched...)
	}
	return result, nil
}

// ReleaseByID 按预占 id 释放。非 active 的预占原样返回，不报错。
func (e *Engine) ReleaseByID(ctx context.Context, reservationID int64, reason string) (*ReleaseResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ReleaseByID", trace.WithAttributes(
		attribute.Int64("reservation.id", reservationID),
	))
	defer span.End()

	if reservationID <= 0 {
		return nil, apperr.InvalidInput("Invalid reservationId")
	}
	normalizedReason := domain.NormalizeReleaseReason(reason, domain.ReasonManualRelease)

	var result ReleaseResult
	var released bool
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		reservation, err := tx.LockReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if reservation == nil {
			return apperr.NotFound("Reservation not found")
		}

		if !reservation.IsActive() {
			stock, err := tx.GetStockItem(ctx, reservation.ProductID)
			if err != nil {
				return err
			}
			result = ReleaseResult{Reservation: *reservation, Stock: stock}
			return nil
		}

		item, err := tx.LockStockItem(ctx, reservation.ProductID)
		if err != nil {
			return err
		}
		if item != nil {
			if err := tx.SubReservedQuantityClamped(ctx, reservation.ProductID, reservation.Quantity); err != nil {
				return err
			}
		}
		if err := tx.FinishReservations(ctx, []int64{reservation.ID}, domain.StatusReleased, normalizedReason); err != nil {
			return err
		}

		reservation.Status = domain.StatusReleased
		reservation.ReleaseReason = normalizedReason
		stock, err := tx.GetStockItem(ctx, reservation.ProductID)
		if err != nil {
			return err
		}
		result = ReleaseResult{Reservation: *reservation, Stock: stock}
		released = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if released {
		metrics.ReservationsReleasedTotal.Inc()
		e.stockChanged(ctx, result.Reservation.ProductID)
	}
	return &result, nil
}

// Sweep 释放所有已过持有期仍未确认或释放的 active 预占，
// 按 id 升序处理，原因固定为 order_timeout。
// 锁是行级的，与自身及 reserve/release/confirm 在不相交的行上并发运行是安全的。
func (e *Engine) Sweep(ctx context.Context) (*SweepResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Sweep")
	defer span.End()

	result := &SweepResult{ReservationIDs: []int64{}}
	var touched []int64
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		expired, err := tx.LockExpiredActiveReservations(ctx, e.now())
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}

		if err := e.subtractAggregated(ctx, tx, expired); err != nil {
			return err
		}

		ids := make([]int64, 0, len(expired))
		for _, reservation := range expired {
			ids = append(ids, reservation.ID)
			result.ExpiredQuantity += reservation.Quantity
		}
		if err := tx.FinishReservations(ctx, ids, domain.StatusExpired, domain.ReasonOrderTimeout); err != nil {
			return err
		}
		result.ExpiredCount = len(ids)
		result.ReservationIDs = ids
		touched = productIDsOf(expired)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if result.ExpiredCount > 0 {
		span.SetAttributes(attribute.Int("sweep.expired_count", result.ExpiredCount))
		metrics.SweepExpiredTotal.Add(float64(result.ExpiredCount))
		e.stockChanged(ctx, touched...)
	}
	return result, nil
}

// GetStock 公共库存读，带缓存。
func (e *Engine) GetStock(ctx context.Context, productID int64) (*domain.StockItem, error) {
	ctx, span := e.tracer.Start(ctx, "engine.GetStock")
	defer span.End()

	if productID <= 0 {
		return nil, apperr.InvalidInput("Invalid productId")
	}
	if e.cache != nil {
		if item, ok := e.cache.Get(ctx, productID); ok {
			span.AddEvent("stock cache hit")
			return item, nil
		}
	}

	item, err := e.store.GetStockItem(ctx, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("Inventory item not found")
	}
	if e.cache != nil {
		e.cache.Set(ctx, item)
	}
	return item, nil
}

// UpsertStock 管理端设置某商品的总量。首次写入时惰性建行；
// 已有预占时总量不得低于 reservedQuantity。
func (e *Engine) UpsertStock(ctx context.Context, productID int64, totalQuantity int) (*domain.StockItem, error) {
	ctx, span := e.tracer.Start(ctx, "engine.UpsertStock", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("total_quantity", totalQuantity),
	))
	defer span.End()

	if productID <= 0 {
		return nil, apperr.InvalidInput("Invalid productId")
	}
	if totalQuantity < 0 {
		return nil, apperr.InvalidInput("totalQuantity must be a non-negative integer")
	}
	if err := e.catalog.ProductExists(ctx, productID); err != nil {
		return nil, err
	}

	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		item, err := tx.LockStockItem(ctx, productID)
		if err != nil {
			return err
		}
		if item == nil {
			return tx.InsertStockItem(ctx, &domain.StockItem{
				ProductID:     productID,
				TotalQuantity: totalQuantity,
			})
		}
		if totalQuantity < item.ReservedQuantity {
			return apperr.InvalidInput("totalQuantity cannot be less than reservedQuantity (%d)", item.ReservedQuantity)
		}
		return tx.SetTotalQuantity(ctx, productID, totalQuantity)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.stockChanged(ctx, productID)
	return e.store.GetStockItem(ctx, productID)
}

// subtractAggregated 把一批预占按商品聚合后写账目：
// 同一商品只发一条 UPDATE，且按 productID 升序加锁，保持固定锁序。
func (e *Engine) subtractAggregated(ctx context.Context, tx domain.Tx, reservations []domain.Reservation) error {
	quantityByProduct := map[int64]int{}
	for _, reservation := range reservations {
		quantityByProduct[reservation.ProductID] += reservation.Quantity
	}

	productIDs := make([]int64, 0, len(quantityByProduct))
	for productID := range quantityByProduct {
		productIDs = append(productIDs, productID)
	}
	sort.Slice(productIDs, func(i, j int) bool { return productIDs[i] < productIDs[j] })

	for _, productID := range productIDs {
		if _, err := tx.LockStockItem(ctx, productID); err != nil {
			return err
		}
		if err := tx.SubReservedQuantityClamped(ctx, productID, quantityByProduct[productID]); err != nil {
			return err
		}
	}
	return nil
}

// stockChanged 统一处理写路径后的缓存失效与推送。
func (e *Engine) stockChanged(ctx context.Context, productIDs ...int64) {
	if len(productIDs) == 0 {
		return
	}
	if e.cache != nil {
		e.cache.Invalidate(ctx, productIDs...)
	}
	if e.notifier != nil {
		for _, productID := range productIDs {
			item, err := e.store.GetStockItem(ctx, productID)
			if err != nil || item == nil {
				logger.Ctx(ctx).Warn().Int64("product_id", productID).Msg("failed to load stock for notification")
				continue
			}
			e.notifier.NotifyStockChanged(*item)
		}
	}
}

func productIDsOf(reservations []domain.Reservation) []int64 {
	seen := map[int64]bool{}
	var ids []int64
	for _, reservation := range reservations {
		if !seen[reservation.ProductID] {
			seen[reservation.ProductID] = true
			ids = append(ids, reservation.ProductID)
		}
	}
	return ids
}
