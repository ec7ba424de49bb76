// internal/service/order/domain/order.go
package domain

import (
	"strings"
	"time"
)

// Status 是订单状态机的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// transitions 是状态机的完整迁移表，delivered 与 cancelled 是终态。
var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCancelled},
	StatusPaid:    {StatusShipped, StatusCancelled},
	StatusShipped: {StatusDelivered},
}

// ParseStatus 校验外部传入的状态值。
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusPaid:
		return StatusPaid, true
	case StatusShipped:
		return StatusShipped, true
	case StatusDelivered:
		return StatusDelivered, true
	case StatusCancelled:
		return StatusCancelled, true
	}
	return "", false
}

// CanTransition 判断 from -> to 是否在迁移表内。相同状态不算迁移。
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Order 是订单聚合根。当前模型下一个订单恰好有一条商品行。
type Order struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"userId"`
	Status      Status      `json:"status"`
	TotalAmount float64     `json:"totalAmount"`
	Currency    string      `json:"currency"`
	CancelledAt *time.Time  `json:"cancelledAt,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Items       []OrderItem `json:"items"`
}

// OrderItem 是下单时从购物车捕获的商品行快照。
type OrderItem struct {
	ID          int64   `json:"id"`
	OrderID     int64   `json:"orderId"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	LineTotal   float64 `json:"lineTotal"`
	Currency    string  `json:"currency"`
}

// ItemsCount 返回订单内商品行数。
func (o *Order) ItemsCount() int { return len(o.Items) }

// ApplyStatus 把订单切换到 next，只做状态字段维护，合法性由调用方先校验。
// cancelled 记录取消时间，其它状态清掉它。
func (o *Order) ApplyStatus(next Status, now time.Time) {
	o.Status = next
	o.UpdatedAt = now
	if next == StatusCancelled {
		o.CancelledAt = &now
	} else {
		o.CancelledAt = nil
	}
}

// NormalizeCurrency 把货币代码归一为三位大写，空值回退 USD。
func NormalizeCurrency(value string) string {
	code := strings.ToUpper(strings.TrimSpace(value))
	if len(code) != 3 {
		return "USD"
	}
	return code
}

// User 是 order_users 投影，来源是网关身份头与用户事件流。
type User struct {
	ID        int64
	Email     string
	Name      string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
