// internal/service/inventory/interfaces/hub.go
package interfaces

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"atlas/internal/pkg/logger"
	"atlas/internal/service/inventory/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 内部运维端点，跨域放开
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stockUpdate 是推送给订阅方的库存快照。
type stockUpdate struct {
	ProductID         int64 `json:"productId"`
	TotalQuantity     int   `json:"totalQuantity"`
	ReservedQuantity  int   `json:"reservedQuantity"`
	AvailableQuantity int   `json:"availableQuantity"`
}

// StockHub 维护所有活跃的 WebSocket 订阅并广播库存变动。
// 实现 application.StockNotifier；广播是尽力而为的，慢客户端直接丢弃消息。
type StockHub struct {
	register   chan *stockClient
	unregister chan *stockClient
	broadcast  chan stockUpdate

	lock    sync.RWMutex
	clients map[*stockClient]bool
}

type stockClient struct {
	conn *websocket.Conn
	send chan stockUpdate
}

func NewStockHub() *StockHub {
	return &StockHub{
		register:   make(chan *stockClient),
		unregister: make(chan *stockClient),
		broadcast:  make(chan stockUpdate, 256),
		clients:    make(map[*stockClient]bool),
	}
}

// Run 随服务生命周期运行广播循环。
func (h *StockHub) Run(ctx context.Context) error {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = true
			h.lock.Unlock()
		case client := <-h.unregister:
			h.lock.Lock()
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
		case update := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- update:
				default: // 慢客户端，丢弃
				}
			}
			h.lock.RUnlock()
		case <-ctx.Done():
			h.lock.Lock()
			for client := range h.clients {
				close(client.send)
				_ = client.conn.Close()
				delete(h.clients, client)
			}
			h.lock.Unlock()
			return nil
		}
	}
}

// NotifyStockChanged 实现 application.StockNotifier。
func (h *StockHub) NotifyStockChanged(item domain.StockItem) {
	update := stockUpdate{
		ProductID:         item.ProductID,
		TotalQuantity:     item.TotalQuantity,
		ReservedQuantity:  item.ReservedQuantity,
		AvailableQuantity: item.AvailableQuantity(),
	}
	select {
	case h.broadcast <- update:
	default: // 广播队列满时丢弃，推送不影响主流程
	}
}

// ServeWS 把 HTTP 请求升级为 WebSocket 订阅。
func (h *StockHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &stockClient{conn: conn, send: make(chan stockUpdate, 16)}
	h.register <- client

	go func() {
		defer func() {
			h.unregister <- client
			_ = conn.Close()
		}()
		for update := range client.send {
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		}
	}()

	// 读循环只用于感知断连
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.unregister <- client
				return
			}
		}
	}()
}
