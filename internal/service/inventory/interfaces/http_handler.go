// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/identity"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/inventory/application"
)

// InventoryHandler 封装库存服务的 HTTP 处理器。
type InventoryHandler struct {
	engine *application.Engine
	hub    *StockHub
}

func NewInventoryHandler(engine *application.Engine, hub *StockHub) *InventoryHandler {
	return &InventoryHandler{engine: engine, hub: hub}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.Handler())

	// 内部契约：预占引擎的四个操作
	mux.HandleFunc("POST /internal/reservations", h.reserveStock)
	mux.HandleFunc("POST /internal/reservations/release-expired", h.releaseExpired)
	mux.HandleFunc("POST /internal/reservations/{reservationId}/release", h.releaseReservation)
	mux.HandleFunc("POST /internal/orders/{orderId}/release", h.releaseOrderReservations)
	mux.HandleFunc("POST /internal/orders/{orderId}/confirm", h.confirmOrderReservations)

	// 公共接口
	mux.HandleFunc("GET /inventory/watch", h.hub.ServeWS)
	mux.HandleFunc("GET /inventory/{productId}", h.getStock)
	mux.HandleFunc("PUT /inventory/{productId}/stock", h.upsertStock)
}

type reserveRequest struct {
	OrderID   int64  `json:"orderId"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *InventoryHandler) reserveStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.InvalidInput("invalid request body"))
		return
	}

	cmd := application.ReserveCommand{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	}
	if req.ExpiresAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			writeError(w, r, apperr.InvalidInput("expiresAt must be a valid ISO date-time"))
			return
		}
		cmd.ExpiresAt = &parsed
	}

	result, err := h.engine.Reserve(ctx, cmd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *InventoryHandler) releaseReservation(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	reservationID, ok := pathID(w, r, "reservationId", "Invalid reservationId")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.engine.ReleaseByID(ctx, reservationID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) releaseOrderReservations(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	orderID, ok := pathID(w, r, "orderId", "Invalid orderId")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := h.engine.ReleaseByOrder(ctx, orderID, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) confirmOrderReservations(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	orderID, ok := pathID(w, r, "orderId", "Invalid orderId")
	if !ok {
		return
	}
	result, err := h.engine.Confirm(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) releaseExpired(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	result, err := h.engine.Sweep(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *InventoryHandler) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	productID, ok := pathID(w, r, "productId", "Invalid productId")
	if !ok {
		return
	}
	item, err := h.engine.GetStock(ctx, productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse(item.ProductID, item.TotalQuantity, item.ReservedQuantity))
}

func (h *InventoryHandler) upsertStock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	// 库存总量只允许管理员和供应商调整
	actor, err := identity.FromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := actor.RequireRole(identity.RoleAdmin, identity.RoleSupplier); err != nil {
		writeError(w, r, err)
		return
	}

	productID, ok := pathID(w, r, "productId", "Invalid productId")
	if !ok {
		return
	}
	var req struct {
		TotalQuantity *int `json:"totalQuantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TotalQuantity == nil {
		writeError(w, r, apperr.InvalidInput("totalQuantity must be a non-negative integer"))
		return
	}

	item, err := h.engine.UpsertStock(ctx, productID, *req.TotalQuantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stockResponse(item.ProductID, item.TotalQuantity, item.ReservedQuantity))
}

func stockResponse(productID int64, total, reserved int) map[string]interface{} {
	available := total - reserved
	if available < 0 {
		available = 0
	}
	return map[string]interface{}{
		"productId":         productID,
		"totalQuantity":     total,
		"reservedQuantity":  reserved,
		"availableQuantity": available,
	}
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func pathID(w http.ResponseWriter, r *http.Request, name, message string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, apperr.InvalidInput("%s", message))
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperr.Error
	status := http.StatusInternalServerError
	message := "Internal server error"
	if errors.As(err, &appErr) {
		status = appErr.HTTPStatus()
		message = appErr.Message
	} else {
		logger.Ctx(r.Context()).Error().Err(err).Msg("unhandled error")
	}
	writeJSON(w, status, map[string]string{"message": message})
}
