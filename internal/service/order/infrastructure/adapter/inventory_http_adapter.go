// internal/service/order/infrastructure/adapter/inventory_http_adapter.go
package adapter

import (
	"context"
	"fmt"
	"time"

	"atlas/internal/pkg/httpclient"
)

const inventoryServiceName = "inventory-service"

// InventoryHTTPAdapter 实现 port.InventoryService，走库存服务的内部契约。
type InventoryHTTPAdapter struct {
	client *httpclient.Client
}

func NewInventoryHTTPAdapter(client *httpclient.Client) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client}
}

func (a *InventoryHTTPAdapter) Reserve(ctx context.Context, orderID, productID int64, quantity int, expiresAt time.Time) error {
	body := map[string]interface{}{
		"orderId":   orderID,
		"productId": productID,
		"quantity":  quantity,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	}
	return a.client.PostJSON(ctx, inventoryServiceName, "/internal/reservations", body, nil)
}

func (a *InventoryHTTPAdapter) ReleaseByOrder(ctx context.Context, orderID int64, reason string) error {
	path := fmt.Sprintf("/internal/orders/%d/release", orderID)
	return a.client.PostJSON(ctx, inventoryServiceName, path, map[string]string{"reason": reason}, nil)
}

func (a *InventoryHTTPAdapter) ConfirmByOrder(ctx context.Context, orderID int64) error {
	path := fmt.Sprintf("/internal/orders/%d/confirm", orderID)
	return a.client.PostJSON(ctx, inventoryServiceName, path, nil, nil)
}
