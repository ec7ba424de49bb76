// internal/service/order/domain/events.go
package domain

import "time"

// 订单生命周期事件类型，消费方是搜索/投影类下游。
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
)

// OrderEvent 是发往 order-events 主题的事件载荷。
// 投递是尽力而为的：发布失败只记日志，不影响订单主流程。
type OrderEvent struct {
	EventID     string    `json:"eventId"`
	Type        string    `json:"type"`
	OrderID     int64     `json:"orderId"`
	UserID      int64     `json:"userId"`
	Status      Status    `json:"status"`
	TotalAmount float64   `json:"totalAmount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// UserEvent 是 user-events 主题上的用户资料变更事件。
type UserEvent struct {
	Type string `json:"type"`
	User struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}
