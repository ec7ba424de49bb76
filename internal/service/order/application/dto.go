// internal/service/order/application/dto.go
package application

// CreateOrderRequest 是下单入参。Quantity 缺省时取购物车中的数量。
type CreateOrderRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  *int  `json:"quantity,omitempty"`
}
