// Package metrics exports kernel state as Prometheus gauges, mirroring
// runZeroInc-sockstats/pkg/exporter's Collector + promhttp.Handler shape:
// a custom prometheus.Collector whose Collect method samples live state on
// every scrape rather than pushing updates eagerly.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source is the subset of kernel.Kernel's Info this package depends on,
// kept as an interface so metrics doesn't need to import kernel directly
// and risk an import cycle if kernel ever wants to report its own metrics
// endpoint state.
type Source interface {
	UptimeTicks() uint64
	ProcsTotal() int
	ProcsReady() int
	ProcsBlocked() int
	HeapAllocatedBytes() uint32
	PagesUsed() int
	PagesFree() int
	TCPSocketsEstablished() int
}

// Collector samples a Source on every scrape and reports it as the gauge
// set named in SPEC_FULL.md §2: nanosec_uptime_seconds,
// nanosec_heap_allocated_bytes, nanosec_proc_ready,
// nanosec_tcp_sockets_established, and a few more of the same shape.
type Collector struct {
	source Source
	hz     float64

	uptime      *prometheus.Desc
	procsTotal  *prometheus.Desc
	procsReady  *prometheus.Desc
	procsBlock  *prometheus.Desc
	heapBytes   *prometheus.Desc
	pagesUsed   *prometheus.Desc
	pagesFree   *prometheus.Desc
	tcpEstabl   *prometheus.Desc
}

// NewCollector creates a Collector over source. hz is the timer frequency
// used to convert a tick count into nanosec_uptime_seconds.
func NewCollector(source Source, hz float64) *Collector {
	return &Collector{
		source: source,
		hz:     hz,
		uptime: prometheus.NewDesc("nanosec_uptime_seconds",
			"Kernel uptime in seconds since boot.", nil, nil),
		procsTotal: prometheus.NewDesc("nanosec_proc_total",
			"Total number of TCB table entries in use.", nil, nil),
		procsReady: prometheus.NewDesc("nanosec_proc_ready",
			"Number of processes in the ready or running state.", nil, nil),
		procsBlock: prometheus.NewDesc("nanosec_proc_blocked",
			"Number of processes blocked on I/O.", nil, nil),
		heapBytes: prometheus.NewDesc("nanosec_heap_allocated_bytes",
			"Bytes currently allocated from the kernel heap.", nil, nil),
		pagesUsed: prometheus.NewDesc("nanosec_pages_used",
			"Physical pages currently allocated.", nil, nil),
		pagesFree: prometheus.NewDesc("nanosec_pages_free",
			"Physical pages currently free.", nil, nil),
		tcpEstabl: prometheus.NewDesc("nanosec_tcp_sockets_established",
			"TCP sockets currently in the ESTABLISHED state.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.uptime
	descs <- c.procsTotal
	descs <- c.procsReady
	descs <- c.procsBlock
	descs <- c.heapBytes
	descs <- c.pagesUsed
	descs <- c.pagesFree
	descs <- c.tcpEstabl
}

// Collect implements prometheus.Collector, sampling the live Source.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	uptimeSeconds := float64(c.source.UptimeTicks())
	if c.hz > 0 {
		uptimeSeconds /= c.hz
	}
	metrics <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, uptimeSeconds)
	metrics <- prometheus.MustNewConstMetric(c.procsTotal, prometheus.GaugeValue, float64(c.source.ProcsTotal()))
	metrics <- prometheus.MustNewConstMetric(c.procsReady, prometheus.GaugeValue, float64(c.source.ProcsReady()))
	metrics <- prometheus.MustNewConstMetric(c.procsBlock, prometheus.GaugeValue, float64(c.source.ProcsBlocked()))
	metrics <- prometheus.MustNewConstMetric(c.heapBytes, prometheus.GaugeValue, float64(c.source.HeapAllocatedBytes()))
	metrics <- prometheus.MustNewConstMetric(c.pagesUsed, prometheus.GaugeValue, float64(c.source.PagesUsed()))
	metrics <- prometheus.MustNewConstMetric(c.pagesFree, prometheus.GaugeValue, float64(c.source.PagesFree()))
	metrics <- prometheus.MustNewConstMetric(c.tcpEstabl, prometheus.GaugeValue, float64(c.source.TCPSocketsEstablished()))
}

// Handler builds an HTTP server exposing c at /metrics, matching
// exporter_example1's promhttp.Handler wiring.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
