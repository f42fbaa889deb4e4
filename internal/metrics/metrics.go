// Package metrics содержит счётчики Prometheus сервиса печати.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printpoints_orders_created_total",
		Help: "Total number of print orders successfully created.",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printpoints_order_transitions_total",
		Help: "Total number of applied order status transitions.",
	},
		[]string{"from", "to"},
	)

	PointsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printpoints_points_credited_total",
		Help: "Total number of loyalty points credited on delivery.",
	})

	StaleRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printpoints_stale_retries_total",
		Help: "Total number of transitions re-read after a concurrent change.",
	})

	PartialFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printpoints_partial_failures_total",
		Help: "Total number of resolved tickets whose order could not be resumed.",
	})

	UploadFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printpoints_upload_failures_total",
		Help: "Total number of order submissions aborted by a failed file upload.",
	})

	NotificationFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "printpoints_notification_failures_total",
		Help: "Total number of notifications that could not be delivered.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "printpoints_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	OpenSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "printpoints_print_sessions_open",
		Help: "Current number of open print sessions.",
	})

	BoardOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "printpoints_board_orders",
		Help: "Current number of active orders held by location boards.",
	},
		[]string{"location"},
	)
)
