// internal/service/order/application/service_test.go
package application

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/identity"
	"atlas/internal/service/order/domain"
	"atlas/internal/service/order/domain/port"
)

// memOrderStore 是订单域 domain.Store 的内存实现，事务失败时恢复快照。
type memOrderStore struct {
	orders map[int64]*domain.Order
	items  map[int64][]domain.OrderItem
	users  map[int64]domain.User
	nextID int64

	failItemsInsert bool
}

func newMemOrderStore() *memOrderStore {
	return &memOrderStore{
		orders: map[int64]*domain.Order{},
		items:  map[int64][]domain.OrderItem{},
		users:  map[int64]domain.User{},
	}
}

func (s *memOrderStore) snapshot() (map[int64]*domain.Order, map[int64][]domain.OrderItem) {
	orders := map[int64]*domain.Order{}
	for id, o := range s.orders {
		clone := *o
		orders[id] = &clone
	}
	items := map[int64][]domain.OrderItem{}
	for id, list := range s.items {
		items[id] = append([]domain.OrderItem(nil), list...)
	}
	return orders, items
}

func (s *memOrderStore) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	orders, items := s.snapshot()
	if err := fn(&memOrderTx{store: s}); err != nil {
		s.orders, s.items = orders, items
		return err
	}
	return nil
}

func (s *memOrderStore) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}
	clone := *o
	clone.Items = append([]domain.OrderItem(nil), s.items[orderID]...)
	return &clone, nil
}

func (s *memOrderStore) ListOrdersByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	for id, o := range s.orders {
		if o.UserID == userID {
			clone := *o
			clone.Items = append([]domain.OrderItem(nil), s.items[id]...)
			out = append(out, clone)
		}
	}
	return out, nil
}

func (s *memOrderStore) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	_, ok := s.orders[orderID]
	return ok, nil
}

func (s *memOrderStore) UpsertUser(ctx context.Context, user domain.User) error {
	s.users[user.ID] = user
	return nil
}

type memOrderTx struct {
	store *memOrderStore
}

func (t *memOrderTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	t.store.nextID++
	order.ID = t.store.nextID
	clone := *order
	clone.Items = nil
	t.store.orders[order.ID] = &clone
	return nil
}

func (t *memOrderTx) InsertOrderItems(ctx context.Context, items []domain.OrderItem) error {
	if t.store.failItemsInsert {
		return errors.New("simulated item insert failure")
	}
	for _, item := range items {
		t.store.items[item.OrderID] = append(t.store.items[item.OrderID], item)
	}
	return nil
}

func (t *memOrderTx) LockOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	o, ok := t.store.orders[orderID]
	if !ok {
		return nil, nil
	}
	clone := *o
	return &clone, nil
}

func (t *memOrderTx) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	stored := t.store.orders[order.ID]
	stored.Status = order.Status
	stored.CancelledAt = order.CancelledAt
	stored.UpdatedAt = order.UpdatedAt
	return nil
}

func (t *memOrderTx) UpsertUser(ctx context.Context, user domain.User) error {
	return t.store.UpsertUser(ctx, user)
}

// fakeInventory 记录所有库存调用，可注入错误。
type fakeInventory struct {
	reserveErr error
	releaseErr error
	confirmErr error

	reserveCalls []reserveCall
	releaseCalls []releaseCall
	confirmCalls []int64
}

type reserveCall struct {
	orderID   int64
	productID int64
	quantity  int
	expiresAt time.Time
}

type releaseCall struct {
	orderID int64
	reason  string
}

func (f *fakeInventory) Reserve(ctx context.Context, orderID, productID int64, quantity int, expiresAt time.Time) error {
	f.reserveCalls = append(f.reserveCalls, reserveCall{orderID, productID, quantity, expiresAt})
	return f.reserveErr
}

func (f *fakeInventory) ReleaseByOrder(ctx context.Context, orderID int64, reason string) error {
	f.releaseCalls = append(f.releaseCalls, releaseCall{orderID, reason})
	return f.releaseErr
}

func (f *fakeInventory) ConfirmByOrder(ctx context.Context, orderID int64) error {
	f.confirmCalls = append(f.confirmCalls, orderID)
	return f.confirmErr
}

type fakeCart struct {
	cart *port.Cart
	err  error
}

func (f *fakeCart) GetCart(ctx context.Context, userID int64, role, authorization string) (*port.Cart, error) {
	return f.cart, f.err
}

type fakeRules struct{ err error }

func (f *fakeRules) Evaluate(ctx context.Context, facts port.OrderFacts) error { return f.err }

type fakePublisher struct {
	events []domain.OrderEvent
}

func (f *fakePublisher) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	f.events = append(f.events, event)
	return nil
}

type fixture struct {
	store     *memOrderStore
	inventory *fakeInventory
	cart      *fakeCart
	publisher *fakePublisher
	service   *OrderService
	now       time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemOrderStore(),
		inventory: &fakeInventory{},
		publisher: &fakePublisher{},
		now:       time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	f.cart = &fakeCart{cart: &port.Cart{Items: []port.CartLine{
		{ProductID: 9, ProductName: "Widget", Quantity: 3, UnitPrice: 19.99, Currency: "usd"},
	}}}
	f.service = NewOrderService(f.store, f.inventory, f.cart, &fakeRules{}, f.publisher, 15*time.Minute).
		WithClock(func() time.Time { return f.now })
	return f
}

func user(id int64) *identity.Actor  { return &identity.Actor{ID: id, Role: identity.RoleUser} }
func admin(id int64) *identity.Actor { return &identity.Actor{ID: id, Role: identity.RoleAdmin} }

func (f *fixture) seedOrder(userID int64, status domain.Status) *domain.Order {
	f.store.nextID++
	order := &domain.Order{
		ID:          f.store.nextID,
		UserID:      userID,
		Status:      status,
		TotalAmount: 59.97,
		Currency:    "USD",
		CreatedAt:   f.now,
		UpdatedAt:   f.now,
	}
	f.store.orders[order.ID] = order
	f.store.items[order.ID] = []domain.OrderItem{{
		OrderID: order.ID, ProductID: 9, ProductName: "Widget", Quantity: 3, UnitPrice: 19.99, LineTotal: 59.97, Currency: "USD",
	}}
	return order
}

func TestCreateOrderSuccess(t *testing.T) {
	f := newFixture()
	qty := 2

	order, err := f.service.CreateOrder(context.Background(), user(5), "Bearer t", CreateOrderRequest{ProductID: 9, Quantity: &qty})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, "USD", order.Currency)
	assert.InDelta(t, 39.98, order.TotalAmount, 0.001)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)

	require.Len(t, f.inventory.reserveCalls, 1)
	call := f.inventory.reserveCalls[0]
	assert.Equal(t, order.ID, call.orderID)
	assert.Equal(t, int64(9), call.productID)
	assert.Equal(t, 2, call.quantity)
	assert.Equal(t, f.now.Add(15*time.Minute), call.expiresAt)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.EventOrderCreated, f.publisher.events[0].Type)

	stored, _ := f.store.GetOrder(context.Background(), order.ID)
	require.Len(t, stored.Items, 1)
}

func TestCreateOrderDefaultsQuantityFromCart(t *testing.T) {
	f := newFixture()

	order, err := f.service.CreateOrder(context.Background(), user(5), "", CreateOrderRequest{ProductID: 9})
	require.NoError(t, err)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.InDelta(t, 59.97, order.TotalAmount, 0.001)
}

func TestCreateOrderQuantityExceedsCart(t *testing.T) {
	f := newFixture()
	qty := 4

	_, err := f.service.CreateOrder(context.Background(), user(5), "", CreateOrderRequest{ProductID: 9, Quantity: &qty})
	require.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
	assert.Empty(t, f.inventory.reserveCalls)
	assert.Empty(t, f.store.orders)
}

func TestCreateOrderProductNotInCart(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateOrder(context.Background(), user(5), "", CreateOrderRequest{ProductID: 404})
	require.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
}

func TestCreateOrderRequiresUserRole(t *testing.T) {
	f := newFixture()

	_, err := f.service.CreateOrder(context.Background(), admin(1), "", CreateOrderRequest{ProductID: 9})
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestCreateOrderRejectedByRules(t *testing.T) {
	f := newFixture()
	f.service = NewOrderService(f.store, f.inventory, f.cart, &fakeRules{err: apperr.InvalidInput("Order rejected by acceptance rules")}, f.publisher, 15*time.Minute)

	_, err := f.service.CreateOrder(context.Background(), user(5), "", CreateOrderRequest{ProductID: 9})
	require.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
	assert.Empty(t, f.store.orders)
	assert.Empty(t, f.inventory.reserveCalls)
}

func TestCreateOrderReserveFailureSurfacesWithoutRelease(t *testing.T) {
	f := newFixture()
	f.inventory.reserveErr = apperr.InsufficientStock(1)

	_, err := f.service.CreateOrder(context.Background(), user(5), "", CreateOrderRequest{ProductID: 9})
	require.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))

	// 预占没成功就没有可补偿的东西
	assert.Empty(t, f.inventory.releaseCalls)

	// 半创建的订单被兜底取消，不会以 pending 留存
	for _, order := range f.store.orders {
		assert.Equal(t, domain.StatusCancelled, order.Status)
	}
}

func TestCreateOrderItemInsertFailureTriggersCompensation(t *testing.T) {
	f := newFixture()
	f.store.failItemsInsert = true

	_, err := f.service.CreateOrder(context.Background(), user(5), "", CreateOrderRequest{ProductID: 9})
	require.Error(t, err)

	require.Len(t, f.inventory.reserveCalls, 1)
	require.Len(t, f.inventory.releaseCalls, 1)
	assert.Equal(t, f.inventory.reserveCalls[0].orderID, f.inventory.releaseCalls[0].orderID)
	assert.Equal(t, "order_create_rollback", f.inventory.releaseCalls[0].reason)

	for _, order := range f.store.orders {
		assert.Equal(t, domain.StatusCancelled, order.Status)
	}
	assert.Empty(t, f.publisher.events)
}

func TestCancelOrderReleasesReservation(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPending)

	order, err := f.service.CancelOrder(context.Background(), user(5), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, order.Status)
	require.NotNil(t, order.CancelledAt)

	require.Len(t, f.inventory.releaseCalls, 1)
	assert.Equal(t, "order_cancelled", f.inventory.releaseCalls[0].reason)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, domain.EventOrderStatusChanged, f.publisher.events[0].Type)
}

func TestCancelOrderReleaseFailureRollsBack(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPending)
	f.inventory.releaseErr = apperr.Unavailable("inventory-service unavailable", nil)

	_, err := f.service.CancelOrder(context.Background(), user(5), seeded.ID)
	require.True(t, apperr.IsKind(err, apperr.KindUnavailable))

	// 释放失败时状态翻转必须回滚，不能出现"已取消但库存仍被占用"
	stored, _ := f.store.GetOrder(context.Background(), seeded.ID)
	assert.Equal(t, domain.StatusPending, stored.Status)
	assert.Empty(t, f.publisher.events)
}

func TestCancelOrderAlreadyCancelledIsNoop(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusCancelled)

	order, err := f.service.CancelOrder(context.Background(), user(5), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, order.Status)
	assert.Empty(t, f.inventory.releaseCalls)
	assert.Empty(t, f.publisher.events)
}

func TestCancelOrderOwnership(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPending)

	_, err := f.service.CancelOrder(context.Background(), user(6), seeded.ID)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	_, err = f.service.CancelOrder(context.Background(), admin(1), seeded.ID)
	require.NoError(t, err)
}

func TestCancelDeliveredOrderConflicts(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusDelivered)

	_, err := f.service.CancelOrder(context.Background(), user(5), seeded.ID)
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestUpdateStatusShippedConfirmsReservation(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPaid)

	order, err := f.service.UpdateStatus(context.Background(), admin(1), seeded.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, order.Status)
	assert.Equal(t, []int64{seeded.ID}, f.inventory.confirmCalls)
}

func TestUpdateStatusConfirmFailureRollsBack(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPaid)
	f.inventory.confirmErr = apperr.Unavailable("inventory-service unavailable", nil)

	_, err := f.service.UpdateStatus(context.Background(), admin(1), seeded.ID, "shipped")
	require.True(t, apperr.IsKind(err, apperr.KindUnavailable))

	stored, _ := f.store.GetOrder(context.Background(), seeded.ID)
	assert.Equal(t, domain.StatusPaid, stored.Status)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPending)

	_, err := f.service.UpdateStatus(context.Background(), admin(1), seeded.ID, "shipped")
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPaid)

	order, err := f.service.UpdateStatus(context.Background(), admin(1), seeded.ID, "paid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, order.Status)
	assert.Empty(t, f.inventory.confirmCalls)
	assert.Empty(t, f.inventory.releaseCalls)
	assert.Empty(t, f.publisher.events)
}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPaid)

	_, err := f.service.UpdateStatus(context.Background(), user(5), seeded.ID, "shipped")
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestUpdateStatusInvalidValue(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPaid)

	_, err := f.service.UpdateStatus(context.Background(), admin(1), seeded.ID, "teleported")
	require.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
}

func TestGetOrderOwnership(t *testing.T) {
	f := newFixture()
	seeded := f.seedOrder(5, domain.StatusPending)

	_, err := f.service.GetOrder(context.Background(), user(6), seeded.ID)
	require.True(t, apperr.IsKind(err, apperr.KindForbidden))

	order, err := f.service.GetOrder(context.Background(), admin(1), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, order.ID)

	_, err = f.service.GetOrder(context.Background(), user(5), 9999)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestHandleUserEventUpsertsProjection(t *testing.T) {
	f := newFixture()
	var event domain.UserEvent
	event.Type = "user.updated"
	event.User.ID = 5
	event.User.Email = "a@b.c"
	event.User.Name = "Alice"
	event.User.Role = "user"

	require.NoError(t, f.service.HandleUserEvent(context.Background(), event))
	assert.Equal(t, "a@b.c", f.store.users[5].Email)
}
