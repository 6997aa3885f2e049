// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes the daemon's mapping-round, detector, and
// firewall counters as Prometheus series.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ravelid.dev/ravelid/internal/logging"
)

// Collector holds every Prometheus series the daemon publishes: mapping
// round progress, the per-flag detector gauges, filter table occupancy,
// and the datapath drop counter.
type Collector struct {
	logger *logging.Logger

	RoundsCompleted prometheus.Counter
	NodesKnown      prometheus.Gauge

	RankErrorNodes     prometheus.Gauge
	RelativeErrorNodes prometheus.Gauge
	MissingInfoNodes   prometheus.Gauge

	FiltersGlobalUsed prometheus.Gauge
	FiltersSmallUsed  prometheus.Gauge

	PacketsDropped *prometheus.CounterVec
}

// NewCollector builds a Collector with all series named under the
// "ravelid" namespace; Register adds them to the default registry.
func NewCollector(logger *logging.Logger) *Collector {
	return &Collector{
		logger: logger,

		RoundsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ravelid",
			Name:      "mapping_rounds_completed_total",
			Help:      "Total number of mapping rounds completed.",
		}),
		NodesKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ravelid",
			Name:      "nodes_known",
			Help:      "Number of node slots currently allocated in the network graph.",
		}),

		RankErrorNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ravelid",
			Name:      "detector_rank_error_nodes",
			Help:      "Number of nodes currently flagged with a saved rank-consistency error.",
		}),
		RelativeErrorNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ravelid",
			Name:      "detector_relative_error_nodes",
			Help:      "Number of nodes currently flagged with a saved child-parent relation error.",
		}),
		MissingInfoNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ravelid",
			Name:      "detector_missing_info_nodes",
			Help:      "Number of nodes with missing or stale mapping data this round.",
		}),

		FiltersGlobalUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ravelid",
			Name:      "firewall_global_filters_used",
			Help:      "Number of occupied slots in the global filter ring.",
		}),
		FiltersSmallUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ravelid",
			Name:      "firewall_small_filters_used",
			Help:      "Number of occupied slots in the small (per-destination) filter table.",
		}),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ravelid",
			Name:      "datapath_packets_dropped_total",
			Help:      "Total packets dropped by the datapath filter, labeled by the filter kind that matched.",
		}, []string{"kind"}), // "global" or "small"
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.RoundsCompleted.Describe(ch)
	c.NodesKnown.Describe(ch)
	c.RankErrorNodes.Describe(ch)
	c.RelativeErrorNodes.Describe(ch)
	c.MissingInfoNodes.Describe(ch)
	c.FiltersGlobalUsed.Describe(ch)
	c.FiltersSmallUsed.Describe(ch)
	c.PacketsDropped.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.RoundsCompleted.Collect(ch)
	c.NodesKnown.Collect(ch)
	c.RankErrorNodes.Collect(ch)
	c.RelativeErrorNodes.Collect(ch)
	c.MissingInfoNodes.Collect(ch)
	c.FiltersGlobalUsed.Collect(ch)
	c.FiltersSmallUsed.Collect(ch)
	c.PacketsDropped.Collect(ch)
}

// Register registers the collector with the default Prometheus registry.
func (c *Collector) Register() error {
	return prometheus.Register(c)
}

// RoundSummary is the per-round tally the mapping engine reports after each
// detector pass; ReportRound folds it into the published gauges.
type RoundSummary struct {
	NodesKnown         int
	RankErrorNodes     int
	RelativeErrorNodes int
	MissingInfoNodes   int
}

// ReportRound updates the mapping/detector gauges from a completed round
// and increments the round counter. The filter-occupancy gauges are owned
// by the firewall listener, which updates them per install instead.
func (c *Collector) ReportRound(s RoundSummary) {
	c.RoundsCompleted.Inc()
	c.NodesKnown.Set(float64(s.NodesKnown))
	c.RankErrorNodes.Set(float64(s.RankErrorNodes))
	c.RelativeErrorNodes.Set(float64(s.RelativeErrorNodes))
	c.MissingInfoNodes.Set(float64(s.MissingInfoNodes))
}

// RecordDrop increments the datapath drop counter for the filter kind that
// rejected the packet.
func (c *Collector) RecordDrop(kind string) {
	c.PacketsDropped.WithLabelValues(kind).Inc()
}

// Handler returns the HTTP handler the metrics listener serves at
// /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
