// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"atlas/internal/pkg/apperr"
	"atlas/internal/pkg/identity"
	"atlas/internal/pkg/logger"
	"atlas/internal/service/order/application"
)

// OrderHandler 封装订单服务的 HTTP 处理器。
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /orders", h.createOrder)
	mux.HandleFunc("GET /orders", h.listMyOrders)
	mux.HandleFunc("GET /orders/{orderId}", h.getOrder)
	mux.HandleFunc("POST /orders/{orderId}/cancel", h.cancelOrder)
	mux.HandleFunc("PATCH /orders/{orderId}/status", h.updateStatus)

	// 内部契约：库存服务预占前的订单存在性回查
	mux.HandleFunc("GET /internal/orders/{orderId}/exists", h.orderExists)
}

func (h *OrderHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	actor, err := identity.FromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req application.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, apperr.InvalidInput("invalid request body"))
		return
	}

	order, err := h.service.CreateOrder(ctx, actor, r.Header.Get("Authorization"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	actor, err := identity.FromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orders, err := h.service.ListMyOrders(ctx, actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	actor, err := identity.FromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(ctx, actor, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	actor, err := identity.FromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	order, err := h.service.CancelOrder(ctx, actor, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	actor, err := identity.FromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		writeError(w, r, apperr.InvalidInput("status is required"))
		return
	}

	order, err := h.service.UpdateStatus(ctx, actor, orderID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) orderExists(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	exists, err := h.service.OrderExists(ctx, orderID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !exists {
		writeError(w, r, apperr.NotFound("Order not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": true})
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, apperr.InvalidInput("Invalid %s", name))
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
