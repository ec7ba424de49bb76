// internal/service/inventory/application/engine_test.go
package application

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/pkg/apperr"
	"atlas/internal/service/inventory/domain"
)

// memStore 是 domain.Store 的内存实现，事务失败时恢复快照，
// 模拟真实数据库的回滚语义。
type memStore struct {
	items        map[int64]*domain.StockItem
	reservations map[int64]*domain.Reservation
	nextID       int64
}

func newMemStore() *memStore {
	return &memStore{
		items:        map[int64]*domain.StockItem{},
		reservations: map[int64]*domain.Reservation{},
	}
}

func (s *memStore) snapshot() (map[int64]*domain.StockItem, map[int64]*domain.Reservation) {
	items := map[int64]*domain.StockItem{}
	for id, item := range s.items {
		clone := *item
		items[id] = &clone
	}
	reservations := map[int64]*domain.Reservation{}
	for id, r := range s.reservations {
		clone := *r
		reservations[id] = &clone
	}
	return items, reservations
}

func (s *memStore) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	items, reservations := s.snapshot()
	if err := fn(&memTx{store: s}); err != nil {
		s.items, s.reservations = items, reservations
		return err
	}
	return nil
}

func (s *memStore) GetStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	if item, ok := s.items[productID]; ok {
		clone := *item
		return &clone, nil
	}
	return nil, nil
}

func (s *memStore) GetReservationsByOrder(ctx context.Context, orderID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.OrderID == orderID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) seedStock(productID int64, total, reserved int) {
	s.items[productID] = &domain.StockItem{
		ProductID:        productID,
		TotalQuantity:    total,
		ReservedQuantity: reserved,
	}
}

type memTx struct {
	store *memStore
}

func (t *memTx) LockStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	return t.store.GetStockItem(ctx, productID)
}

func (t *memTx) GetStockItem(ctx context.Context, productID int64) (*domain.StockItem, error) {
	return t.store.GetStockItem(ctx, productID)
}

func (t *memTx) InsertStockItem(ctx context.Context, item *domain.StockItem) error {
	clone := *item
	t.store.items[item.ProductID] = &clone
	return nil
}

func (t *memTx) SetTotalQuantity(ctx context.Context, productID int64, total int) error {
	t.store.items[productID].TotalQuantity = total
	return nil
}

func (t *memTx) AddReservedQuantity(ctx context.Context, productID int64, delta int) error {
	t.store.items[productID].ReservedQuantity += delta
	return nil
}

func (t *memTx) SubReservedQuantityClamped(ctx context.Context, productID int64, delta int) error {
	item := t.store.items[productID]
	if item.ReservedQuantity >= delta {
		item.ReservedQuantity -= delta
	} else {
		item.ReservedQuantity = 0
	}
	return nil
}

func (t *memTx) ConsumeStock(ctx context.Context, productID int64, quantity int) error {
	item := t.store.items[productID]
	item.TotalQuantity -= quantity
	item.ReservedQuantity -= quantity
	return nil
}

func (t *memTx) LockActiveReservation(ctx context.Context, orderID, productID int64) (*domain.Reservation, error) {
	for _, r := range t.store.reservations {
		if r.OrderID == orderID && r.ProductID == productID && r.Status == domain.StatusActive {
			clone := *r
			return &clone, nil
		}
	}
	return nil, nil
}

func (t *memTx) LockActiveReservationsByOrder(ctx context.Context, orderID int64) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.store.reservations {
		if r.OrderID == orderID && r.Status == domain.StatusActive {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) LockReservation(ctx context.Context, reservationID int64) (*domain.Reservation, error) {
	if r, ok := t.store.reservations[reservationID]; ok {
		clone := *r
		return &clone, nil
	}
	return nil, nil
}

func (t *memTx) LockExpiredActiveReservations(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for _, r := range t.store.reservations {
		if r.Status == domain.StatusActive && r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) InsertReservation(ctx context.Context, reservation *domain.Reservation) error {
	t.store.nextID++
	reservation.ID = t.store.nextID
	clone := *reservation
	t.store.reservations[reservation.ID] = &clone
	return nil
}

func (t *memTx) FinishReservations(ctx context.Context, ids []int64, status domain.ReservationStatus, reason string) error {
	for _, id := range ids {
		r := t.store.reservations[id]
		r.Status = status
		r.ReleaseReason = reason
	}
	return nil
}

// okDirectory 让所有存在性校验通过。
type okDirectory struct{}

func (okDirectory) ProductExists(ctx context.Context, productID int64) error { return nil }
func (okDirectory) OrderExists(ctx context.Context, orderID int64) error    { return nil }

type missingProduct struct{ okDirectory }

func (missingProduct) ProductExists(ctx context.Context, productID int64) error {
	return apperr.NotFound("Product not found")
}

func newTestEngine(store *memStore) *Engine {
	return NewEngine(store, okDirectory{}, okDirectory{}, nil, nil)
}

func requireStock(t *testing.T, store *memStore, productID int64, total, reserved int) {
	t.Helper()
	item := store.items[productID]
	require.NotNil(t, item)
	require.Equal(t, total, item.TotalQuantity, "totalQuantity")
	require.Equal(t, reserved, item.ReservedQuantity, "reservedQuantity")
	require.GreaterOrEqual(t, item.ReservedQuantity, 0)
	require.LessOrEqual(t, item.ReservedQuantity, item.TotalQuantity)
}

func TestReserveHappyPath(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)

	result, err := engine.Reserve(context.Background(), ReserveCommand{OrderID: 5, ProductID: 9, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, result.Reservation.Status)
	assert.Equal(t, 2, result.Reservation.Quantity)
	assert.Equal(t, 8, result.Stock.AvailableQuantity())
	requireStock(t, store, 9, 10, 2)
}

func TestReserveIdempotentRetry(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.Reserve(ctx, ReserveCommand{OrderID: 5, ProductID: 9, Quantity: 2})
	require.NoError(t, err)
	second, err := engine.Reserve(ctx, ReserveCommand{OrderID: 5, ProductID: 9, Quantity: 2})
	require.NoError(t, err)

	assert.Equal(t, first.Reservation.ID, second.Reservation.ID)
	requireStock(t, store, 9, 10, 2)
}

func TestReserveQuantityConflict(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, ReserveCommand{OrderID: 5, ProductID: 9, Quantity: 2})
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, ReserveCommand{OrderID: 5, ProductID: 9, Quantity: 3})
	require.True(t, apperr.IsKind(err, apperr.KindConflict))
	requireStock(t, store, 9, 10, 2)
}

func TestReserveStockExhaustion(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 5, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, ReserveCommand{OrderID: 1, ProductID: 9, Quantity: 6})
	require.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 5, appErr.Available)

	result, err := engine.Reserve(ctx, ReserveCommand{OrderID: 1, ProductID: 9, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Stock.AvailableQuantity())

	_, err = engine.Reserve(ctx, ReserveCommand{OrderID: 2, ProductID: 9, Quantity: 1})
	require.True(t, apperr.IsKind(err, apperr.KindInsufficientStock))
	requireStock(t, store, 9, 5, 5)
}

func TestReserveUnknownProduct(t *testing.T) {
	store := newMemStore()
	engine := NewEngine(store, missingProduct{}, okDirectory{}, nil, nil)

	_, err := engine.Reserve(context.Background(), ReserveCommand{OrderID: 1, ProductID: 404, Quantity: 1})
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestReserveUnknownStockItem(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	_, err := engine.Reserve(context.Background(), ReserveCommand{OrderID: 1, ProductID: 9, Quantity: 1})
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestConfirmConsumesStock(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, ReserveCommand{OrderID: 7, ProductID: 9, Quantity: 2})
	require.NoError(t, err)

	result, err := engine.Confirm(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ConfirmedCount)
	assert.Equal(t, 2, result.ConfirmedQuantity)
	requireStock(t, store, 9, 8, 0)

	require.Len(t, result.Reservations, 1)
	assert.Equal(t, domain.StatusConfirmed, result.Reservations[0].Status)
	assert.Equal(t, domain.ReasonOrderConfirmed, result.Reservations[0].ReleaseReason)
}

func TestConfirmWithoutActiveReservationsIsNoop(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	result, err := engine.Confirm(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 0, result.ConfirmedCount)
	assert.Empty(t, result.Reservations)
}

func TestReleaseByOrderIdempotent(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, ReserveCommand{OrderID: 7, ProductID: 9, Quantity: 3})
	require.NoError(t, err)

	first, err := engine.ReleaseByOrder(ctx, 7, "x")
	require.NoError(t, err)
	assert.Equal(t, 1, first.ReleasedCount)
	assert.Equal(t, 3, first.ReleasedQuantity)
	requireStock(t, store, 9, 10, 0)

	second, err := engine.ReleaseByOrder(ctx, 7, "x")
	require.NoError(t, err)
	assert.Equal(t, 0, second.ReleasedCount)
	require.Len(t, second.Reservations, 1)
	assert.Equal(t, domain.StatusReleased, second.Reservations[0].Status)
	assert.Equal(t, "x", second.Reservations[0].ReleaseReason)
	requireStock(t, store, 9, 10, 0)
}

func TestReleaseByIDDefaultsReason(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	reserved, err := engine.Reserve(ctx, ReserveCommand{OrderID: 7, ProductID: 9, Quantity: 2})
	require.NoError(t, err)

	result, err := engine.ReleaseByID(ctx, reserved.Reservation.ID, "   ")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, result.Reservation.Status)
	assert.Equal(t, domain.ReasonManualRelease, result.Reservation.ReleaseReason)
	requireStock(t, store, 9, 10, 0)

	// 非 active 的预占原样返回，不二次扣减
	again, err := engine.ReleaseByID(ctx, reserved.Reservation.ID, "whatever")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReleased, again.Reservation.Status)
	assert.Equal(t, domain.ReasonManualRelease, again.Reservation.ReleaseReason)
	requireStock(t, store, 9, 10, 0)
}

func TestReleaseReasonTruncated(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	engine := newTestEngine(store)
	ctx := context.Background()

	reserved, err := engine.Reserve(ctx, ReserveCommand{OrderID: 7, ProductID: 9, Quantity: 1})
	require.NoError(t, err)

	long := strings.Repeat("r", 200)
	result, err := engine.ReleaseByID(ctx, reserved.Reservation.ID, long)
	require.NoError(t, err)
	assert.Len(t, result.Reservation.ReleaseReason, 80)
}

func TestSweepExpiresOnlyLapsedActive(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 0)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	engine := newTestEngine(store).WithClock(func() time.Time { return now })
	ctx := context.Background()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	_, err := engine.Reserve(ctx, ReserveCommand{OrderID: 1, ProductID: 9, Quantity: 2, ExpiresAt: &past})
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, ReserveCommand{OrderID: 2, ProductID: 9, Quantity: 3, ExpiresAt: &future})
	require.NoError(t, err)

	released, err := engine.ReleaseByOrder(ctx, 2, "")
	require.NoError(t, err)
	require.Equal(t, 1, released.ReleasedCount)

	result, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredCount)
	assert.Equal(t, 2, result.ExpiredQuantity)
	requireStock(t, store, 9, 10, 0)

	expired := store.reservations[result.ReservationIDs[0]]
	assert.Equal(t, domain.StatusExpired, expired.Status)
	assert.Equal(t, domain.ReasonOrderTimeout, expired.ReleaseReason)

	// 已清扫过的行不会被再次捡起
	again, err := engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.ExpiredCount)
}

func TestUpsertStockCreatesLazily(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	item, err := engine.UpsertStock(context.Background(), 9, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, item.TotalQuantity)
	assert.Equal(t, 0, item.ReservedQuantity)
}

func TestUpsertStockRejectsBelowReserved(t *testing.T) {
	store := newMemStore()
	store.seedStock(9, 10, 4)
	engine := newTestEngine(store)

	_, err := engine.UpsertStock(context.Background(), 9, 3)
	require.True(t, apperr.IsKind(err, apperr.KindInvalidInput))
	requireStock(t, store, 9, 10, 4)
}

func TestGetStockNotFound(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	_, err := engine.GetStock(context.Background(), 9)
	require.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
