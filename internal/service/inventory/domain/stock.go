// internal/service/inventory/domain/stock.go
package domain

import (
	"strings"
	"time"
)

// StockItem 是某个商品的权威库存账目。
// availableQuantity 永远是派生值，不落库。
type StockItem struct {
	ProductID        int64
	TotalQuantity    int
	ReservedQuantity int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableQuantity 返回可用数量 total - reserved，下钳到 0。
func (s *StockItem) AvailableQuantity() int {
	available := s.TotalQuantity - s.ReservedQuantity
	if available < 0 {
		return 0
	}
	return available
}

// ReservationStatus 是预占的生命周期状态，只有 active 可变，
// 离开 active 后状态即为终态。
type ReservationStatus string

const (
	StatusActive    ReservationStatus = "active"
	StatusReleased  ReservationStatus = "released"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusExpired   ReservationStatus = "expired"
)

// 释放原因的约定值。
const (
	ReasonManualRelease       = "manual_release"
	ReasonOrderCancelled      = "order_cancelled"
	ReasonOrderConfirmed      = "order_confirmed"
	ReasonOrderTimeout        = "order_timeout"
	ReasonOrderCreateRollback = "order_create_rollback"
)

// Reservation 是一条 (order, product) 维度的库存预占。
// 同一 (orderId, productId) 最多存在一条 active 预占。
type Reservation struct {
	ID            int64
	OrderID       int64
	ProductID     int64
	Quantity      int
	Status        ReservationStatus
	ExpiresAt     *time.Time
	ReleaseReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive 仅 active 状态的预占可被释放、确认或清扫。
func (r *Reservation) IsActive() bool { return r.Status == StatusActive }

// IsExpired 判断预占在给定时刻是否已过持有期。
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// NormalizeReleaseReason 清洗释放原因：去空白、截断到 80 字符、空值回退默认。
func NormalizeReleaseReason(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	if len(trimmed) > 80 {
		return trimmed[:80]
	}
	return trimmed
}
