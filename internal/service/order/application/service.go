// internal/service/order/application/service.go
package application

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/identity"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/application/saga"
	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/domain/port"
)

// OrderService 编排订单生命周期：下单 Saga、状态流转与查询。
type OrderService struct {
	store     domain.Store
	inventory port.InventoryService
	cart      port.CartService
	rules     port.RuleEngine
	publisher port.EventPublisher
	tracer    trace.Tracer

	// orderTimeout 决定预占的 expiresAt：下单时刻 + orderTimeout。
	orderTimeout time.Duration
	now          func() time.Time
}

func NewOrderService(store domain.Store, inventory port.InventoryService, cart port.CartService, rules port.RuleEngine, publisher port.EventPublisher, orderTimeout time.Duration) *OrderService {
	if orderTimeout <= 0 {
		orderTimeout = 15 * time.Minute
	}
	return &OrderService{
		store:        store,
		inventory:    inventory,
		cart:         cart,
		rules:        rules,
		publisher:    publisher,
		tracer:       otel.Tracer("order-service"),
		orderTimeout: orderTimeout,
		now:          time.Now,
	}
}

// WithClock 替换时间源，测试用。
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// CreateOrder 执行下单 Saga：校验购物车与准入规则，落库订单行，
// 预占库存，最后落库商品行。订单行落库之后的任何失败都会触发
// 尽力而为的预占释放，原始错误仍然上抛给调用方。
func (s *OrderService) CreateOrder(ctx context.Context, actor *identity.Actor, authorization string, req CreateOrderRequest) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer span.End()

	if err := actor.RequireRole(identity.RoleUser); err != nil {
		return nil, err
	}
	if req.ProductID <= 0 {
		return nil, apperr.InvalidInput("productId must be a positive integer")
	}
	if req.Quantity != nil && *req.Quantity <= 0 {
		return nil, apperr.InvalidInput("quantity must be a positive integer")
	}

	cart, err := s.cart.GetCart(ctx, actor.ID, actor.Role, authorization)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	line, ok := findCartLine(cart, req.ProductID)
	if !ok {
		return nil, apperr.InvalidInput("Product not found in cart")
	}
	quantity := line.Quantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity > line.Quantity {
		return nil, apperr.InvalidInput("Requested quantity exceeds cart quantity (%d)", line.Quantity)
	}

	now := s.now()
	currency := domain.NormalizeCurrency(line.Currency)
	lineTotal := line.UnitPrice * float64(quantity)
	order := &domain.Order{
		UserID:      actor.ID,
		Status:      domain.StatusPending,
		TotalAmount: lineTotal,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
		Items: []domain.OrderItem{{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   lineTotal,
			Currency:    currency,
		}},
	}

	if err := s.rules.Evaluate(ctx, port.OrderFacts{
		Quantity:    quantity,
		ItemsCount:  order.ItemsCount(),
		TotalAmount: order.TotalAmount,
	}); err != nil {
		return nil, err
	}

	orderCtx := &saga.OrderContext{
		Ctx:       ctx,
		Order:     order,
		Tracer:    s.tracer,
		Store:     s.store,
		Inventory: s.inventory,
		ExpiresAt: now.Add(s.orderTimeout),
	}

	chain := new(saga.PersistOrderHandler)
	chain.
		SetNext(new(saga.ReserveStockHandler)).
		SetNext(new(saga.PersistItemsHandler))

	if err := chain.Handle(orderCtx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order creation saga failed")
		if orderCtx.OrderPersisted {
			orderCtx.TriggerCompensation(ctx)
			s.abandonOrder(ctx, order)
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.publishEvent(ctx, domain.EventOrderCreated, order)
	logger.Ctx(ctx).Info().
		Int64("order_id", order.ID).
		Int64("user_id", actor.ID).
		Msg("order created, stock reserved")
	return order, nil
}

// abandonOrder 把半创建的订单标记为 cancelled，让它不再以 pending 的
// 身份出现在用户视图里。这是失败路径上的尽力而为操作。
func (s *OrderService) abandonOrder(ctx context.Context, order *domain.Order) {
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		locked, err := tx.LockOrder(ctx, order.ID)
		if err != nil || locked == nil {
			return err
		}
		locked.ApplyStatus(domain.StatusCancelled, s.now())
		return tx.UpdateOrderStatus(ctx, locked)
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("order_id", order.ID).
			Msg("failed to mark half-created order as cancelled")
	}
}

// CancelOrder 取消订单并释放预占。状态翻转与远端释放在同一个本地
// 事务内：释放失败则整体回滚，取消绝不能在库存仍被占用时报告成功。
func (s *OrderService) CancelOrder(ctx context.Context, actor *identity.Actor, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID))

	var noop bool
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.NotFound("Order not found")
		}
		if order.UserID != actor.ID && !actor.IsAdmin() {
			return apperr.Forbidden("not the owner of this order")
		}
		if order.Status == domain.StatusCancelled {
			noop = true
			return nil
		}
		if !domain.CanTransition(order.Status, domain.StatusCancelled) {
			return apperr.Conflict("Invalid status transition from %s to %s", order.Status, domain.StatusCancelled)
		}
		order.ApplyStatus(domain.StatusCancelled, s.now())
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		return s.inventory.ReleaseByOrder(ctx, orderID, "order_cancelled")
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !noop {
		s.publishEvent(ctx, domain.EventOrderStatusChanged, result)
	}
	return result, nil
}

// UpdateStatus 是管理员状态流转入口。shipped 触发预占确认，
// cancelled 触发预占释放，两者都与状态翻转同事务。
func (s *OrderService) UpdateStatus(ctx context.Context, actor *identity.Actor, orderID int64, rawStatus string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.Int64("order.id", orderID), attribute.String("status", rawStatus))

	if err := actor.RequireRole(identity.RoleAdmin); err != nil {
		return nil, err
	}
	target, ok := domain.ParseStatus(rawStatus)
	if !ok {
		return nil, apperr.InvalidInput("Invalid status value")
	}

	var noop bool
	err := s.store.InTx(ctx, func(tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return apperr.NotFound("Order not found")
		}
		if order.Status == target {
			noop = true
			return nil
		}
		if !domain.CanTransition(order.Status, target) {
			return apperr.Conflict("Invalid status transition from %s to %s", order.Status, target)
		}
		order.ApplyStatus(target, s.now())
		if err := tx.UpdateOrderStatus(ctx, order); err != nil {
			return err
		}
		switch target {
		case domain.StatusShipped:
			return s.inventory.ConfirmByOrder(ctx, orderID)
		case domain.StatusCancelled:
			return s.inventory.ReleaseByOrder(ctx, orderID, "order_cancelled")
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !noop {
		s.publishEvent(ctx, domain.EventOrderStatusChanged, result)
	}
	return result, nil
}

// GetOrder 返回单个订单，仅限本人或管理员。
func (s *OrderService) GetOrder(ctx context.Context, actor *identity.Actor, orderID int64) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, apperr.NotFound("Order not found")
	}
	if order.UserID != actor.ID && !actor.IsAdmin() {
		return nil, apperr.Forbidden("not the owner of this order")
	}
	return order, nil
}

// ListMyOrders 返回当前用户的全部订单。
func (s *OrderService) ListMyOrders(ctx context.Context, actor *identity.Actor) ([]domain.Order, error) {
	return s.store.ListOrdersByUser(ctx, actor.ID)
}

// OrderExists 供库存服务在预占前回查订单存在性。
func (s *OrderService) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	return s.store.OrderExists(ctx, orderID)
}

// HandleUserEvent 消费用户事件，维护 order_users 投影。
func (s *OrderService) HandleUserEvent(ctx context.Context, event domain.UserEvent) error {
	if event.User.ID <= 0 {
		return apperr.InvalidInput("user event without user id")
	}
	return s.store.UpsertUser(ctx, domain.User{
		ID:    event.User.ID,
		Email: event.User.Email,
		Name:  event.User.Name,
		Role:  event.User.Role,
	})
}

func (s *OrderService) publishEvent(ctx context.Context, eventType string, order *domain.Order) {
	if s.publisher == nil || order == nil {
		return
	}
	event := domain.OrderEvent{
		Type:        eventType,
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  s.now(),
	}
	// 事件流是旁路投影，发布失败不回滚业务
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("order_id", order.ID).
			Str("event_type", eventType).
			Msg("failed to publish order event")
	}
}

func findCartLine(cart *port.Cart, productID int64) (port.CartLine, bool) {
	if cart == nil {
		return port.CartLine{}, false
	}
	for _, line := range cart.Items {
		if line.ProductID == productID {
			return line, true
		}
	}
	return port.CartLine{}, false
}
