package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TenantsRegistered prometheus.Counter
	TenantsApproved   prometheus.Counter
	TenantsRejected   prometheus.Counter
	ProvisionDuration prometheus.Histogram
	ResolveDuration   prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		TenantsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_tenants_registered_total",
			Help: "Total number of tenant registrations accepted",
		}),
		TenantsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_tenants_approved_total",
			Help: "Total number of tenants approved and provisioned",
		}),
		TenantsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_tenants_rejected_total",
			Help: "Total number of tenant registrations rejected",
		}),
		ProvisionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kopra_tenant_provision_duration_seconds",
			Help:    "Duration of schema provisioning runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kopra_tenant_resolve_duration_seconds",
			Help:    "Duration of subdomain resolution (request critical path)",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

func (m *Metrics) IncrementRegistered() { m.TenantsRegistered.Inc() }
func (m *Metrics) IncrementApproved()   { m.TenantsApproved.Inc() }
func (m *Metrics) IncrementRejected()   { m.TenantsRejected.Inc() }

func (m *Metrics) ObserveProvision(start time.Time) {
	m.ProvisionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
