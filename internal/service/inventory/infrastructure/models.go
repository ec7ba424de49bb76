// internal/service/inventory/infrastructure/models.go
package infrastructure

import (
	"database/sql"
	"time"

	"atlas/internal/service/inventory/domain"
)

// InventoryItemModel 对应 inventory_items 表。
type InventoryItemModel struct {
	ProductID        int64     `gorm:"column:product_id;primaryKey"`
	TotalQuantity    int       `gorm:"column:total_quantity;not null"`
	ReservedQuantity int       `gorm:"column:reserved_quantity;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (InventoryItemModel) TableName() string { return "inventory_items" }

// InventoryReservationModel 对应 inventory_reservations 表。
type InventoryReservationModel struct {
	ID            int64          `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       int64          `gorm:"column:order_id;not null;index:idx_order_status"`
	ProductID     int64          `gorm:"column:product_id;not null;index"`
	Quantity      int            `gorm:"column:quantity;not null"`
	Status        string         `gorm:"column:status;type:varchar(16);not null;index:idx_order_status;index:idx_status_expires"`
	ExpiresAt     *time.Time     `gorm:"column:expires_at;index:idx_status_expires"`
	ReleaseReason sql.NullString `gorm:"column:release_reason;type:varchar(80)"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (InventoryReservationModel) TableName() string { return "inventory_reservations" }

func toDomainStockItem(model *InventoryItemModel) *domain.StockItem {
	return &domain.StockItem{
		ProductID:        model.ProductID,
		TotalQuantity:    model.TotalQuantity,
		ReservedQuantity: model.ReservedQuantity,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toDomainReservation(model *InventoryReservationModel) *domain.Reservation {
	reservation := &domain.Reservation{
		ID:        model.ID,
		OrderID:   model.OrderID,
		ProductID: model.ProductID,
		Quantity:  model.Quantity,
		Status:    domain.ReservationStatus(model.Status),
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
	if model.ReleaseReason.Valid {
		reservation.ReleaseReason = model.ReleaseReason.String
	}
	return reservation
}

func toDomainReservations(models []InventoryReservationModel) []domain.Reservation {
	reservations := make([]domain.Reservation, 0, len(models))
	for i := range models {
		reservations = append(reservations, *toDomainReservation(&models[i]))
	}
	return reservations
}
