package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// Metrics implements relaypay.Metrics using Prometheus.
type Metrics struct {
	invoicesIssuedTotal *prometheus.CounterVec
	statusChecksTotal   *prometheus.CounterVec
	oracleCallDuration  *prometheus.HistogramVec
	oracleCallErrors    *prometheus.CounterVec
	grantGapsTotal      *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		invoicesIssuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_issued_total",
			Help:      "Total number of invoice creation attempts.",
		}, []string{"tier", "cycle", "success"}),

		statusChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_checks_total",
			Help:      "Total number of payment status checks by outcome.",
		}, []string{"status"}),

		oracleCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "oracle_call_duration_seconds",
			Help:      "Latency of external oracle calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"oracle"}),

		oracleCallErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_call_errors_total",
			Help:      "Total number of failed external oracle calls.",
		}, []string{"oracle"}),

		grantGapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grant_gaps_total",
			Help:      "Committed payments whose entitlement grant failed and needs repair.",
		}, []string{"tier"}),
	}
}

// RecordInvoiceIssued implements relaypay.Metrics
func (m *Metrics) RecordInvoiceIssued(tier string, cycle relaypay.BillingCycle, success bool) {
	m.invoicesIssuedTotal.WithLabelValues(tier, string(cycle), strconv.FormatBool(success)).Inc()
}

// RecordStatusCheck implements relaypay.Metrics
func (m *Metrics) RecordStatusCheck(status relaypay.Status) {
	m.statusChecksTotal.WithLabelValues(string(status)).Inc()
}

// RecordOracleCall implements relaypay.Metrics
func (m *Metrics) RecordOracleCall(oracle string, duration time.Duration, err error) {
	m.oracleCallDuration.WithLabelValues(oracle).Observe(duration.Seconds())
	if err != nil {
		m.oracleCallErrors.WithLabelValues(oracle).Inc()
	}
}

// RecordGrantGap implements relaypay.Metrics
func (m *Metrics) RecordGrantGap(tier string) {
	m.grantGapsTotal.WithLabelValues(tier).Inc()
}
