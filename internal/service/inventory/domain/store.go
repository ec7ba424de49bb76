// internal/service/inventory/domain/store.go
package domain

import (
	"context"
	"time"
)

// Store 是库存台账与预占记录的持久化接口，位于领域层，由基础设施层实现。
// 所有写操作必须经由 InTx 在同一个事务内完成。
type Store interface {
	// InTx 在一个事务内执行 fn，fn 返回错误时整个事务回滚。
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// GetStockItem 无锁读取库存，不存在返回 (nil, nil)。
	GetStockItem(ctx context.Context, productID int64) (*StockItem, error)

	// GetReservationsByOrder 返回订单名下的全部预占（不限状态），按 id 升序。
	GetReservationsByOrder(ctx context.Context, orderID int64) ([]Reservation, error)
}

// Tx 暴露"加排他锁读"作为基础原语（SELECT ... FOR UPDATE）。
//
// 锁定顺序约定：reserve 路径必须先锁 StockItem 行，再查/插 Reservation 行，
// 保证并发 reserve 同一商品时不会出现锁序死锁。confirm/release/sweep 先锁
// 预占行、再按 productID 升序锁涉及的 StockItem 行。
type Tx interface {
	// LockStockItem 加排他锁读取库存行，不存在返回 (nil, nil)。
	LockStockItem(ctx context.Context, productID int64) (*StockItem, error)
	// GetStockItem 在事务内无锁重读（用于返回更新后的数值）。
	GetStockItem(ctx context.Context, productID int64) (*StockItem, error)
	InsertStockItem(ctx context.Context, item *StockItem) error
	SetTotalQuantity(ctx context.Context, productID int64, total int) error
	AddReservedQuantity(ctx context.Context, productID int64, delta int) error
	// SubReservedQuantityClamped 扣减 reservedQuantity，下钳到 0。
	// 钳位是针对外部数据修正造成漂移的防御，不是预期路径。
	SubReservedQuantityClamped(ctx context.Context, productID int64, delta int) error
	// ConsumeStock 同时扣减 totalQuantity 与 reservedQuantity（确认即永久消耗库存）。
	ConsumeStock(ctx context.Context, productID int64, quantity int) error

	// LockActiveReservation 锁定 (orderID, productID) 下的 active 预占，不存在返回 (nil, nil)。
	LockActiveReservation(ctx context.Context, orderID, productID int64) (*Reservation, error)
	// LockActiveReservationsByOrder 锁定订单名下全部 active 预占，按 id 升序。
	LockActiveReservationsByOrder(ctx context.Context, orderID int64) ([]Reservation, error)
	// LockReservation 按主键锁定预占，不存在返回 (nil, nil)。
	LockReservation(ctx context.Context, reservationID int64) (*Reservation, error)
	// LockExpiredActiveReservations 锁定所有已过期的 active 预占，按 id 升序。
	LockExpiredActiveReservations(ctx context.Context, now time.Time) ([]Reservation, error)

	// InsertReservation 插入新预占并回填 ID。
	InsertReservation(ctx context.Context, reservation *Reservation) error
	// FinishReservations 把一批预占置为终态并记录原因。
	FinishReservations(ctx context.Context, ids []int64, status ReservationStatus, reason string) error
}
