// internal/service/inventory/infrastructure/adapter/order_http_adapter.go
package adapter

import (
	"context"
	"fmt"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/httpclient"
)

const orderServiceName = "order-service"

// OrderHTTPAdapter 实现 application.OrderDirectory。
type OrderHTTPAdapter struct {
	client *httpclient.Client
}

func NewOrderHTTPAdapter(client *httpclient.Client) *OrderHTTPAdapter {
	return &OrderHTTPAdapter{client: client}
}

func (a *OrderHTTPAdapter) OrderExists(ctx context.Context, orderID int64) error {
	var payload struct {
		Exists bool `json:"exists"`
	}
	path := fmt.Sprintf("/internal/orders/%d/exists", orderID)
	if err := a.client.GetJSON(ctx, orderServiceName, path, nil, &payload); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.NotFound("Order not found")
		}
		return err
	}
	if !payload.Exists {
		return apperr.NotFound("Order not found")
	}
	return nil
}
