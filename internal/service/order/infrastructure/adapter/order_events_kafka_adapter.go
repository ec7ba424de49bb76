// internal/service/order/infrastructure/adapter/order_events_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"atlas/internal/pkg/metrics"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/order/domain"
)

// OrderEventsKafkaAdapter 实现 port.EventPublisher，把订单事件发到
// order-events 主题。同一订单的事件用订单号做 key 保序。
type OrderEventsKafkaAdapter struct {
	writer *kafka.Writer
}

func NewOrderEventsKafkaAdapter(writer *kafka.Writer) *OrderEventsKafkaAdapter {
	return &OrderEventsKafkaAdapter{writer: writer}
}

func (a *OrderEventsKafkaAdapter) PublishOrderEvent(ctx context.Context, event domain.OrderEvent) error {
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.OrderEventsPublishedTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "failed to marshal order event")
	}

	key := []byte(strconv.FormatInt(event.OrderID, 10))
	if err := mq.ProduceMessage(ctx, a.writer, key, payload); err != nil {
		metrics.OrderEventsPublishedTotal.WithLabelValues("error").Inc()
		return errors.Wrap(err, "failed to produce order event")
	}
	metrics.OrderEventsPublishedTotal.WithLabelValues("ok").Inc()
	return nil
}
