// internal/service/order/domain/port/cart.go
package port

import "context"

// CartLine 是购物车服务返回的一条商品行。
type CartLine struct {
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Currency    string  `json:"currency"`
}

// Cart 是当前用户的购物车快照。
type Cart struct {
	Items []CartLine `json:"items"`
}

// CartService 是购物车服务的出站端口。下单时透传调用方的身份与凭证。
type CartService interface {
	GetCart(ctx context.Context, userID int64, role, authorization string) (*Cart, error)
}
