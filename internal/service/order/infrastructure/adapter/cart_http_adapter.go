// internal/service/order/infrastructure/adapter/cart_http_adapter.go
package adapter

import (
	"context"
	"net/http"
	"strconv"

	"atlas/internal/pkg/httpclient"
	"atlas/internal/service/order/domain/port"
)

const cartServiceName = "cart-service"

// CartHTTPAdapter 实现 port.CartService，透传调用方身份与凭证。
type CartHTTPAdapter struct {
	client *httpclient.Client
}

func NewCartHTTPAdapter(client *httpclient.Client) *CartHTTPAdapter {
	return &CartHTTPAdapter{client: client}
}

func (a *CartHTTPAdapter) GetCart(ctx context.Context, userID int64, role, authorization string) (*port.Cart, error) {
	headers := http.Header{}
	headers.Set("X-User-Id", strconv.FormatInt(userID, 10))
	headers.Set("X-User-Role", role)
	if authorization != "" {
		headers.Set("Authorization", authorization)
	}

	var cart port.Cart
	if err := a.client.GetJSON(ctx, cartServiceName, "/carts/me", headers, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}
