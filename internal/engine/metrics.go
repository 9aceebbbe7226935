package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Traffic: записи точек решения по действию (checked, granted, denied,
	// approval_required, approved, rejected, expired, policy_registered,
	// config_loaded) — счетчик инкрементится на каждую запись аудита
	DecisionsTotal *prometheus.CounterVec

	// Latency: полный путь requestPermission, включая ожидание оператора
	RequestDuration *prometheus.HistogramVec

	// Saturation: размер очереди зависших approvals
	PendingApprovals prometheus.Gauge

	// Верификации токенов по результату (ok, consumed, expired, mismatch, bad_signature)
	TokenVerifications *prometheus.CounterVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		DecisionsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "authority_decisions_total",
			Help: "Total number of decision-point audit records by action.",
		}, []string{"action"}),

		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "authority_request_duration_seconds",
			Help:    "Histogram of requestPermission latencies (approval wait included).",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"outcome"}),

		PendingApprovals: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "authority_pending_approvals",
			Help: "Current number of approval requests awaiting a decision.",
		}),

		TokenVerifications: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "authority_token_verifications_total",
			Help: "Total number of token verifications by result.",
		}, []string{"result"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "authority_audit_buffer_utilization",
			Help: "Current number of events in the audit buffer.",
		}),
	}
}
