// internal/service/order/infrastructure/user_events_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/service/order/domain"
)

// UserEventHandler 是用户事件的业务入口，由应用服务实现。
type UserEventHandler interface {
	HandleUserEvent(ctx context.Context, event domain.UserEvent) error
}

// UserEventsConsumer 消费 user-events 主题，维护 order_users 投影。
// 投影是最终一致的：单条消息处理失败只记日志并继续。
type UserEventsConsumer struct {
	reader  *kafka.Reader
	handler UserEventHandler
}

func NewUserEventsConsumer(reader *kafka.Reader, handler UserEventHandler) *UserEventsConsumer {
	return &UserEventsConsumer{reader: reader, handler: handler}
}

// Run 作为 bootstrap 后台任务运行，ctx 取消后退出。
func (c *UserEventsConsumer) Run(ctx context.Context) error {
	log := logger.Logger()
	log.Info().Str("topic", c.reader.Config().Topic).Msg("user events consumer started")
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("user events consumer shutting down")
				return nil
			}
			log.Error().Err(err).Msg("failed to fetch user event, retrying")
			time.Sleep(time.Second)
			continue
		}

		c.processMessage(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("failed to commit user event offset")
		}
	}
}

func (c *UserEventsConsumer) processMessage(parentCtx context.Context, msg kafka.Message) {
	var event domain.UserEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		logger.Logger().Error().Err(err).Msg("failed to unmarshal user event, skipping")
		return
	}

	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parentCtx, &carrier)

	if err := c.handler.HandleUserEvent(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Int64("user_id", event.User.ID).
			Msg("failed to apply user event")
	}
}
