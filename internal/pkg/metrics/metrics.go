// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 预占生命周期的核心指标。补偿失败对客户端不可见，只能靠这里和日志观测。
var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Reservation attempts by outcome.",
	}, []string{"outcome"}) // reserved / idempotent_hit / conflict / insufficient_stock / error

	ReservationsReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_released_total",
		Help: "Reservations released on cancel or rollback.",
	})

	ReservationsConfirmedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservations_confirmed_total",
		Help: "Reservations confirmed (stock permanently consumed).",
	})

	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_sweep_expired_total",
		Help: "Reservations expired by the background sweep.",
	})

	SweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_sweep_runs_total",
		Help: "Sweep ticks by result.",
	}, []string{"result"}) // ok / skipped / error

	CompensationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_compensation_failures_total",
		Help: "Best-effort reservation releases that failed after order rollback.",
	})

	OrderEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_published_total",
		Help: "Order lifecycle events published to Kafka.",
	}, []string{"result"}) // ok / error
)
