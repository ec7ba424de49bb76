// internal/service/order/infrastructure/models.go
package infrastructure

import (
	"time"

	"atlas/internal/service/order/domain"
)

// OrderModel 对应 orders 表。
type OrderModel struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	UserID      int64   `gorm:"not null;index:idx_user_created,priority:1"`
	Status      string  `gorm:"type:varchar(20);not null;index"`
	TotalAmount float64 `gorm:"type:decimal(12,2);not null"`
	Currency    string  `gorm:"type:char(3);not null"`
	CancelledAt *time.Time
	CreatedAt   time.Time `gorm:"index:idx_user_created,priority:2"`
	UpdatedAt   time.Time

	Items []OrderItemModel `gorm:"foreignKey:OrderID"`
}

func (OrderModel) TableName() string { return "orders" }

// OrderItemModel 对应 order_items 表，是下单时的购物车行快照。
type OrderItemModel struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	OrderID     int64   `gorm:"not null;index"`
	ProductID   int64   `gorm:"not null"`
	ProductName string  `gorm:"type:varchar(255);not null"`
	Quantity    int     `gorm:"not null"`
	UnitPrice   float64 `gorm:"type:decimal(12,2);not null"`
	LineTotal   float64 `gorm:"type:decimal(12,2);not null"`
	Currency    string  `gorm:"type:char(3);not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OrderItemModel) TableName() string { return "order_items" }

// OrderUserModel 对应 order_users 表：用户资料在订单域内的投影。
// 主键来自上游身份系统，不自增。
type OrderUserModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Email     string `gorm:"type:varchar(255)"`
	Name      string `gorm:"type:varchar(255)"`
	Role      string `gorm:"type:varchar(20)"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (OrderUserModel) TableName() string { return "order_users" }

func toDomainOrder(model *OrderModel) *domain.Order {
	order := &domain.Order{
		ID:          model.ID,
		UserID:      model.UserID,
		Status:      domain.Status(model.Status),
		TotalAmount: model.TotalAmount,
		Currency:    model.Currency,
		CancelledAt: model.CancelledAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
	for _, item := range model.Items {
		order.Items = append(order.Items, toDomainOrderItem(&item))
	}
	return order
}

func toDomainOrderItem(model *OrderItemModel) domain.OrderItem {
	return domain.OrderItem{
		ID:          model.ID,
		OrderID:     model.OrderID,
		ProductID:   model.ProductID,
		ProductName: model.ProductName,
		Quantity:    model.Quantity,
		UnitPrice:   model.UnitPrice,
		LineTotal:   model.LineTotal,
		Currency:    model.Currency,
	}
}
