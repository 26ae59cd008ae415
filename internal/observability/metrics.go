package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records authentication outcomes. Services accept it as an optional
// collaborator; Nop is used when metrics are disabled.
type Metrics interface {
	RecordTokenIssued()
	RecordTokenRejected(reason string)
	RecordLedgerIssued(kind string)
	RecordLedgerConsumption(kind, outcome string)
	RecordReconciliation(outcome string)
	RecordSwept(count int64)
}

// Nop discards all metrics
type Nop struct{}

func (Nop) RecordTokenIssued()                     {}
func (Nop) RecordTokenRejected(string)             {}
func (Nop) RecordLedgerIssued(string)              {}
func (Nop) RecordLedgerConsumption(string, string) {}
func (Nop) RecordReconciliation(string)            {}
func (Nop) RecordSwept(int64)                      {}

// OrNop returns m, or Nop when m is nil
func OrNop(m Metrics) Metrics {
	if m == nil {
		return Nop{}
	}
	return m
}

// Collector is the Prometheus implementation of Metrics
type Collector struct {
	tokensIssued    prometheus.Counter
	tokensRejected  *prometheus.CounterVec
	ledgerIssued    *prometheus.CounterVec
	ledgerConsumed  *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	swept           prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securestarter_session_tokens_issued_total",
			Help: "Session tokens issued",
		}),
		tokensRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securestarter_session_tokens_rejected_total",
			Help: "Session tokens rejected by the gatekeeper, by reason",
		}, []string{"reason"}),
		ledgerIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securestarter_ephemeral_tokens_issued_total",
			Help: "Ephemeral tokens issued, by kind",
		}, []string{"kind"}),
		ledgerConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securestarter_ephemeral_token_consumptions_total",
			Help: "Ephemeral token consumption attempts, by kind and outcome",
		}, []string{"kind", "outcome"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "securestarter_identity_reconciliations_total",
			Help: "External identity reconciliations, by outcome",
		}, []string{"outcome"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "securestarter_ephemeral_tokens_swept_total",
			Help: "Expired ephemeral tokens deleted by the sweeper",
		}),
	}

	reg.MustRegister(
		c.tokensIssued,
		c.tokensRejected,
		c.ledgerIssued,
		c.ledgerConsumed,
		c.reconciliations,
		c.swept,
	)

	return c
}

// RecordTokenIssued counts a session token issuance
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordTokenRejected counts a rejected session token
func (c *Collector) RecordTokenRejected(reason string) {
	c.tokensRejected.WithLabelValues(reason).Inc()
}

// RecordLedgerIssued counts an ephemeral token issuance
func (c *Collector) RecordLedgerIssued(kind string) {
	c.ledgerIssued.WithLabelValues(kind).Inc()
}

// RecordLedgerConsumption counts a consumption attempt
func (c *Collector) RecordLedgerConsumption(kind, outcome string) {
	c.ledgerConsumed.WithLabelValues(kind, outcome).Inc()
}

// RecordReconciliation counts a reconciliation outcome
func (c *Collector) RecordReconciliation(outcome string) {
	c.reconciliations.WithLabelValues(outcome).Inc()
}

// RecordSwept adds the number of rows removed by a sweep
func (c *Collector) RecordSwept(count int64) {
	c.swept.Add(float64(count))
}

// Handler returns the Prometheus scrape handler for gatherer
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
