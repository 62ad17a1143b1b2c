// Package metrics exposes reconciliation counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medikasir"

// Recorder owns a private registry. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	eodSubmissions    *prometheus.CounterVec
	salesRecorded     *prometheus.CounterVec
	salesRejected     *prometheus.CounterVec
	movementsRecorded *prometheus.CounterVec
	lowStockAlerts    *prometheus.CounterVec
	previewRefreshes  *prometheus.CounterVec
	sideEffectErrors  *prometheus.CounterVec
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		eodSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eod_submissions_total",
			Help:      "End-of-day submissions by whether the count differed from the expected balance.",
		}, []string{"variance"}),
		salesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_recorded_total",
			Help:      "Sales transactions committed, by payment method.",
		}, []string{"method"}),
		salesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_rejected_total",
			Help:      "Sales transactions rejected, by error kind.",
		}, []string{"kind"}),
		movementsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cash_movements_recorded_total",
			Help:      "Cash movements committed, by direction.",
		}, []string{"direction"}),
		lowStockAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "low_stock_alerts_total",
			Help:      "Low-stock alerts by outcome (sent, deduplicated, failed).",
		}, []string{"outcome"}),
		previewRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "preview_refreshes_total",
			Help:      "Summary preview recomputations by the refresh job, by result.",
		}, []string{"result"}),
		sideEffectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_errors_total",
			Help:      "Swallowed best-effort failures, by stage.",
		}, []string{"stage"}),
	}

	registry.MustRegister(
		r.eodSubmissions,
		r.salesRecorded,
		r.salesRejected,
		r.movementsRecorded,
		r.lowStockAlerts,
		r.previewRefreshes,
		r.sideEffectErrors,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) EodSubmitted(hasVariance bool) {
	if r == nil {
		return
	}
	label := "none"
	if hasVariance {
		label = "present"
	}
	r.eodSubmissions.WithLabelValues(label).Inc()
}

func (r *Recorder) SaleRecorded(method string) {
	if r == nil {
		return
	}
	r.salesRecorded.WithLabelValues(method).Inc()
}

func (r *Recorder) SaleRejected(kind string) {
	if r == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	r.salesRejected.WithLabelValues(kind).Inc()
}

func (r *Recorder) MovementRecorded(direction string) {
	if r == nil {
		return
	}
	r.movementsRecorded.WithLabelValues(direction).Inc()
}

func (r *Recorder) LowStockAlert(outcome string) {
	if r == nil {
		return
	}
	r.lowStockAlerts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) PreviewRefreshed(ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.previewRefreshes.WithLabelValues(result).Inc()
}

func (r *Recorder) SideEffectFailed(stage string) {
	if r == nil {
		return
	}
	r.sideEffectErrors.WithLabelValues(stage).Inc()
}
