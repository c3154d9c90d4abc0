package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 派发循环的运行指标，通过 promhttp 暴露
var (
	deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcontain_notify_deliveries_total",
		Help: "Number of kernel events delivered to callbacks.",
	})

	droppedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcontain_notify_dropped_total",
		Help: "Number of wake-ups dropped because the registration vanished before dispatch.",
	})

	registerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mcontain_notify_register_errors_total",
		Help: "Number of failed notification registrations.",
	})

	activeRegistrations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mcontain_notify_active_registrations",
		Help: "Number of currently registered notifications.",
	})
)
