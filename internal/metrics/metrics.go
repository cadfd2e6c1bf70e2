package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fetch cycle metrics
	FetchCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_fetch_cycles_total",
			Help: "Total number of data-fetch cycles by dataset and outcome",
		},
		[]string{"dataset", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_fetch_duration_seconds",
			Help:    "Data-fetch cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dataset"},
	)

	// Telemetry metrics
	TelemetryTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_telemetry_ticks_total",
			Help: "Total number of poller ticks by result",
		},
		[]string{"result"},
	)

	TelemetryWindowSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_telemetry_window_points",
			Help: "Number of points currently held in the rolling telemetry window",
		},
	)

	PollIntervalSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_poll_interval_seconds",
			Help: "Active telemetry polling interval",
		},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guardian_websocket_clients",
			Help: "Number of connected live-telemetry clients",
		},
	)

	// Report metrics
	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_reports_total",
			Help: "Total number of report generations by kind and result",
		},
		[]string{"kind", "result"},
	)

	ReportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_report_duration_seconds",
			Help:    "Report generation duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	// Alert metrics
	AlertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_alerts_fired_total",
			Help: "Total number of alerts fired by rule",
		},
		[]string{"rule", "severity"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_notifications_total",
			Help: "Total number of notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardian_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardian_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
