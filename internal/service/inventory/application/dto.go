// internal/service/inventory/application/dto.go
package application

import (
	"time"

	"atlas/internal/service/inventory/domain"
)

// ReserveCommand 是一次预占请求。
type ReserveCommand struct {
	OrderID   int64
	ProductID int64
	Quantity  int
	ExpiresAt *time.Time
}

// ReserveResult 返回预占记录与更新后的库存。
type ReserveResult struct {
	Reservation domain.Reservation `json:"reservation"`
	Stock       domain.StockItem   `json:"inventory"`
}

// ReleaseResult 是按预占 id 释放的结果。
type ReleaseResult struct {
	Reservation domain.Reservation `json:"reservation"`
	Stock       *domain.StockItem  `json:"inventory,omitempty"`
}

// OrderReleaseResult 是按订单释放的结果。
type OrderReleaseResult struct {
	OrderID          int64                `json:"orderId"`
	ReleasedCount    int                  `json:"releasedCount"`
	ReleasedQuantity int                  `json:"releasedQuantity"`
	Reservations     []domain.Reservation `json:"reservations"`
}

// ConfirmResult 是按订单确认的结果。
type ConfirmResult struct {
	OrderID           int64                `json:"orderId"`
	ConfirmedCount    int                  `json:"confirmedCount"`
	ConfirmedQuantity int                  `json:"confirmedQuantity"`
	Reservations      []domain.Reservation `json:"reservations"`
}

// SweepResult 是一次过期清扫的结果。
type SweepResult struct {
	ExpiredCount    int     `json:"expiredCount"`
	ExpiredQuantity int     `json:"expiredQuantity"`
	ReservationIDs  []int64 `json:"reservationIds"`
}
