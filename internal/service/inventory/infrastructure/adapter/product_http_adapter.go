// internal/service/inventory/infrastructure/adapter/product_http_adapter.go
package adapter

import (
	"context"
	"fmt"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/httpclient"
)

const productServiceName = "product-service"

// ProductHTTPAdapter 实现 application.ProductCatalog，
// 通过商品服务的内部接口做存在性校验。
type ProductHTTPAdapter struct {
	client *httpclient.Client
}

func NewProductHTTPAdapter(client *httpclient.Client) *ProductHTTPAdapter {
	return &ProductHTTPAdapter{client: client}
}

func (a *ProductHTTPAdapter) ProductExists(ctx context.Context, productID int64) error {
	var payload struct {
		Exists bool `json:"exists"`
	}
	path := fmt.Sprintf("/internal/products/%d/exists", productID)
	if err := a.client.GetJSON(ctx, productServiceName, path, nil, &payload); err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return apperr.NotFound("Product not found")
		}
		return err
	}
	if !payload.Exists {
		return apperr.NotFound("Product not found")
	}
	return nil
}
