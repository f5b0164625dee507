package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "livelog"

// Collector is a prometheus.Collector for the HTTP boundary.
type Collector struct {
	requests      *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	rowsServed    *prometheus.CounterVec
	rowsIngested  prometheus.Counter
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status code.",
			}, []string{"route", "code"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "page_fetch_seconds",
				Help:      "Time taken to fetch one page.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			}, []string{"direction"},
		),
		rowsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_served_total",
				Help:      "Rows returned in page responses.",
			}, []string{"direction"},
		),
		rowsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rows_ingested_total",
				Help:      "Rows appended through the ingest endpoint.",
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.requests.Describe(ch)
	c.fetchDuration.Describe(ch)
	c.rowsServed.Describe(ch)
	c.rowsIngested.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.requests.Collect(ch)
	c.fetchDuration.Collect(ch)
	c.rowsServed.Collect(ch)
	c.rowsIngested.Collect(ch)
}
