package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// Resolver lookup results.
const (
	ResultHit      = "hit"
	ResultMiss     = "miss"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Payment notification outcomes.
const (
	WebhookApplied      = "applied"
	WebhookDuplicate    = "duplicate"
	WebhookIgnored      = "ignored"
	WebhookBadSignature = "bad_signature"
	WebhookUnknownOrder = "unknown_order"
	WebhookError        = "error"
)

// Metrics holds the server's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TenantsProvisioned   *prometheus.CounterVec
	ProvisioningDuration prometheus.Histogram
	ResolverLookups      *prometheus.CounterVec
	OrderTransitions     *prometheus.CounterVec
	WebhookNotifications *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg. Passing nil uses a
// fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		TenantsProvisioned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenants_provisioned_total",
				Help: "Total number of tenants provisioned by status",
			},
			[]string{"status"},
		),
		ProvisioningDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenant_provisioning_duration_seconds",
				Help:    "Duration of tenant provisioning in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		ResolverLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "domain_resolver_lookups_total",
				Help: "Host resolutions by result",
			},
			[]string{"result"},
		),
		OrderTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Order status transitions",
			},
			[]string{"from", "to"},
		),
		WebhookNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhook_notifications_total",
				Help: "Payment notifications by outcome",
			},
			[]string{"outcome"},
		),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{
		m.TenantsProvisioned,
		m.ProvisioningDuration,
		m.ResolverLookups,
		m.OrderTransitions,
		m.WebhookNotifications,
	} {
		if err := reg.Register(c); err != nil {
			logger.ErrorEvent().Err(err).Msg("Failed to register metric")
		}
	}

	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveProvisioning records a provisioning attempt.
func (m *Metrics) ObserveProvisioning(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.TenantsProvisioned.WithLabelValues(status).Inc()
	m.ProvisioningDuration.Observe(took.Seconds())
}

// ObserveLookup records a resolver result.
func (m *Metrics) ObserveLookup(result string) {
	if m == nil {
		return
	}
	m.ResolverLookups.WithLabelValues(result).Inc()
}

// ObserveTransition records an order status change.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(from, to).Inc()
}

// ObserveWebhook records how a payment notification was handled.
func (m *Metrics) ObserveWebhook(outcome string) {
	if m == nil {
		return
	}
	m.WebhookNotifications.WithLabelValues(outcome).Inc()
}
