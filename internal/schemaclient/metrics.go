package schemaclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ActiveClients     prometheus.Gauge
	Hits              prometheus.Counter
	Constructed       prometheus.Counter
	ConstructFailures prometheus.Counter
	Evicted           *prometheus.CounterVec
	Saturation        prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ActiveClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kopra_schema_clients",
			Help: "Number of schema-scoped clients currently cached",
		}),
		Hits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_schema_client_hits_total",
			Help: "Acquisitions served from the cache",
		}),
		Constructed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_schema_clients_constructed_total",
			Help: "Schema clients built after a cache miss",
		}),
		ConstructFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_schema_client_construct_failures_total",
			Help: "Schema client constructions that failed",
		}),
		Evicted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kopra_schema_clients_evicted_total",
			Help: "Schema clients evicted from the cache",
		}, []string{"reason"}),
		Saturation: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kopra_schema_client_saturation_total",
			Help: "Acquisitions refused or delayed because the cache was full",
		}),
	}
}
