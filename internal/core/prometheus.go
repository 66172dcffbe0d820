package core

import (
	"context"
	"math/big"
	"time"

	"handoff/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports operation latency and outcomes as
// Prometheus collectors.
type PrometheusMetricsRecorder struct {
	duration *prometheus.HistogramVec
	results  *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the operation collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "handoff",
			Subsystem: "registry",
			Name:      "operation_duration_seconds",
			Help:      "Latency of registry operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "handoff",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Registry operations by outcome.",
		}, []string{"operation", "status"}),
	}
	for _, c := range []prometheus.Collector{rec.duration, rec.results} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
	r.results.WithLabelValues(operation, status).Inc()
}

// RegisterStateGauges exports issued identifiers and treasury balance read
// from svc's committed state.
func RegisterStateGauges(reg prometheus.Registerer, svc *Service) error {
	issued := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "handoff",
		Subsystem: "registry",
		Name:      "resources_issued",
		Help:      "Identifiers issued so far.",
	}, func() float64 { return float64(svc.TotalIssued(context.Background())) })
	balance := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "handoff",
		Subsystem: "treasury",
		Name:      "balance",
		Help:      "Collected creation fees not yet withdrawn.",
	}, func() float64 { return balanceFloat(svc.Balance(context.Background())) })
	for _, c := range []prometheus.Collector{issued, balance} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func balanceFloat(v *domain.Amount) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
