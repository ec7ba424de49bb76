// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 设置全局日志器的服务名与级别，由 bootstrap 在启动时调用。
func Init(serviceName string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	base = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Logger 返回全局日志器。
func Logger() *zerolog.Logger { return &base }

// Ctx 返回一个绑定了当前 trace 上下文的日志器，
// 有活跃 Span 时自动带上 trace_id/span_id，便于日志与链路关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	span := trace.SpanFromContext(ctx)
	if sc := span.SpanContext(); sc.IsValid() {
		l := base.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
		return &l
	}
	return &base
}
