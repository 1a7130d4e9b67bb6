package seel

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks per-process protocol counters for a GNODE or SNODE.
// All fields are safe for concurrent use even though the protocol
// engine itself is single-threaded, since a metrics endpoint typically
// reads them from a separate HTTP goroutine.
type Metrics struct {
	BeaconsSent          atomic.Uint64
	BeaconsReceived      atomic.Uint64
	DataSent             atomic.Uint64
	DataAcked            atomic.Uint64
	DataDropped          atomic.Uint64
	IDChecksIssued       atomic.Uint64
	IDChecksAccepted     atomic.Uint64
	IDChecksCollided     atomic.Uint64
	CRCFailures          atomic.Uint64
	DuplicatesSuppressed atomic.Uint64

	// EstimateMs and OffsetMs mirror the watchdog-drift estimator's
	// current state (spec section 4.7.4); they are gauges, not
	// counters, so the most recent Set call wins.
	EstimateMs atomic.Uint64
	OffsetMs   atomic.Int64
}

// NewMetrics returns a zeroed Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Snapshot is a point-in-time copy of every counter, convenient for
// logging or assertions in tests.
type Snapshot struct {
	BeaconsSent          uint64
	BeaconsReceived      uint64
	DataSent             uint64
	DataAcked            uint64
	DataDropped          uint64
	IDChecksIssued       uint64
	IDChecksAccepted     uint64
	IDChecksCollided     uint64
	CRCFailures          uint64
	DuplicatesSuppressed uint64
	EstimateMs           uint64
	OffsetMs             int64
}

// Snapshot captures every counter's current value.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BeaconsSent:          m.BeaconsSent.Load(),
		BeaconsReceived:      m.BeaconsReceived.Load(),
		DataSent:             m.DataSent.Load(),
		DataAcked:            m.DataAcked.Load(),
		DataDropped:          m.DataDropped.Load(),
		IDChecksIssued:       m.IDChecksIssued.Load(),
		IDChecksAccepted:     m.IDChecksAccepted.Load(),
		IDChecksCollided:     m.IDChecksCollided.Load(),
		CRCFailures:          m.CRCFailures.Load(),
		DuplicatesSuppressed: m.DuplicatesSuppressed.Load(),
		EstimateMs:           m.EstimateMs.Load(),
		OffsetMs:             m.OffsetMs.Load(),
	}
}

// Reset zeroes every counter. Useful between test scenarios.
func (m *Metrics) Reset() {
	m.BeaconsSent.Store(0)
	m.BeaconsReceived.Store(0)
	m.DataSent.Store(0)
	m.DataAcked.Store(0)
	m.DataDropped.Store(0)
	m.IDChecksIssued.Store(0)
	m.IDChecksAccepted.Store(0)
	m.IDChecksCollided.Store(0)
	m.CRCFailures.Store(0)
	m.DuplicatesSuppressed.Store(0)
	m.EstimateMs.Store(0)
	m.OffsetMs.Store(0)
}

// Observer is the pluggable event sink NodeBase, GNODE and SNODE
// report protocol events to. When none is supplied, NodeBase falls
// back to NoOpObserver; a MetricsObserver wrapping a Metrics instance
// or a recording observer can be passed instead.
type Observer interface {
	ObserveBeaconSent()
	ObserveBeaconReceived()
	ObserveDataSent()
	ObserveDataAcked()
	ObserveDataDropped()
	ObserveIDCheckIssued()
	ObserveIDCheckAccepted()
	ObserveIDCheckCollided()
	ObserveCRCFailure()
	ObserveDuplicate()
	ObserveEstimator(estimateMs uint32, offsetMs int32)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveBeaconSent()     {}
func (NoOpObserver) ObserveBeaconReceived() {}
func (NoOpObserver) ObserveDataSent()       {}
func (NoOpObserver) ObserveDataAcked()      {}
func (NoOpObserver) ObserveDataDropped()    {}
func (NoOpObserver) ObserveIDCheckIssued()  {}
func (NoOpObserver) ObserveIDCheckAccepted() {}
func (NoOpObserver) ObserveIDCheckCollided() {}
func (NoOpObserver) ObserveCRCFailure()      {}
func (NoOpObserver) ObserveDuplicate()       {}
func (NoOpObserver) ObserveEstimator(estimateMs uint32, offsetMs int32) {}

// MetricsObserver records every event into a Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer recording into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveBeaconSent()      { o.metrics.BeaconsSent.Add(1) }
func (o *MetricsObserver) ObserveBeaconReceived()  { o.metrics.BeaconsReceived.Add(1) }
func (o *MetricsObserver) ObserveDataSent()        { o.metrics.DataSent.Add(1) }
func (o *MetricsObserver) ObserveDataAcked()       { o.metrics.DataAcked.Add(1) }
func (o *MetricsObserver) ObserveDataDropped()     { o.metrics.DataDropped.Add(1) }
func (o *MetricsObserver) ObserveIDCheckIssued()   { o.metrics.IDChecksIssued.Add(1) }
func (o *MetricsObserver) ObserveIDCheckAccepted() { o.metrics.IDChecksAccepted.Add(1) }
func (o *MetricsObserver) ObserveIDCheckCollided() { o.metrics.IDChecksCollided.Add(1) }
func (o *MetricsObserver) ObserveCRCFailure()      { o.metrics.CRCFailures.Add(1) }
func (o *MetricsObserver) ObserveDuplicate()       { o.metrics.DuplicatesSuppressed.Add(1) }
func (o *MetricsObserver) ObserveEstimator(estimateMs uint32, offsetMs int32) {
	o.metrics.EstimateMs.Store(uint64(estimateMs))
	o.metrics.OffsetMs.Store(int64(offsetMs))
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)

// PrometheusCollector adapts Metrics to prometheus.Collector so a
// process can register it directly with a prometheus.Registry and
// serve it over /metrics.
type PrometheusCollector struct {
	metrics *Metrics

	beaconsSent          *prometheus.Desc
	beaconsReceived      *prometheus.Desc
	dataSent             *prometheus.Desc
	dataAcked            *prometheus.Desc
	dataDropped          *prometheus.Desc
	idChecksIssued       *prometheus.Desc
	idChecksAccepted     *prometheus.Desc
	idChecksCollided     *prometheus.Desc
	crcFailures          *prometheus.Desc
	duplicatesSuppressed *prometheus.Desc
	estimateMs           *prometheus.Desc
	offsetMs             *prometheus.Desc
}

// NewPrometheusCollector returns a prometheus.Collector exporting m
// under the "seel_" namespace.
func NewPrometheusCollector(m *Metrics) *PrometheusCollector {
	return &PrometheusCollector{
		metrics:              m,
		beaconsSent:          prometheus.NewDesc("seel_beacons_sent_total", "Beacons transmitted.", nil, nil),
		beaconsReceived:      prometheus.NewDesc("seel_beacons_received_total", "Beacons received.", nil, nil),
		dataSent:             prometheus.NewDesc("seel_data_sent_total", "DATA frames transmitted.", nil, nil),
		dataAcked:            prometheus.NewDesc("seel_data_acked_total", "DATA frames acknowledged.", nil, nil),
		dataDropped:          prometheus.NewDesc("seel_data_dropped_total", "DATA frames dropped on a full queue.", nil, nil),
		idChecksIssued:       prometheus.NewDesc("seel_id_checks_issued_total", "ID_CHECK requests sent.", nil, nil),
		idChecksAccepted:     prometheus.NewDesc("seel_id_checks_accepted_total", "ID_CHECK requests accepted by the GNODE.", nil, nil),
		idChecksCollided:     prometheus.NewDesc("seel_id_checks_collided_total", "ID_CHECK requests that collided with another node's id.", nil, nil),
		crcFailures:          prometheus.NewDesc("seel_crc_failures_total", "Frames discarded for a CRC failure.", nil, nil),
		duplicatesSuppressed: prometheus.NewDesc("seel_duplicates_suppressed_total", "Frames discarded as duplicates.", nil, nil),
		estimateMs:           prometheus.NewDesc("seel_drift_estimate_ms", "Current watchdog-drift per-tick estimate, in milliseconds.", nil, nil),
		offsetMs:             prometheus.NewDesc("seel_drift_offset_ms", "Current watchdog-drift correction offset, in milliseconds.", nil, nil),
	}
}

func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.beaconsSent
	ch <- c.beaconsReceived
	ch <- c.dataSent
	ch <- c.dataAcked
	ch <- c.dataDropped
	ch <- c.idChecksIssued
	ch <- c.idChecksAccepted
	ch <- c.idChecksCollided
	ch <- c.crcFailures
	ch <- c.duplicatesSuppressed
	ch <- c.estimateMs
	ch <- c.offsetMs
}

func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.metrics.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.beaconsSent, prometheus.CounterValue, float64(s.BeaconsSent))
	ch <- prometheus.MustNewConstMetric(c.beaconsReceived, prometheus.CounterValue, float64(s.BeaconsReceived))
	ch <- prometheus.MustNewConstMetric(c.dataSent, prometheus.CounterValue, float64(s.DataSent))
	ch <- prometheus.MustNewConstMetric(c.dataAcked, prometheus.CounterValue, float64(s.DataAcked))
	ch <- prometheus.MustNewConstMetric(c.dataDropped, prometheus.CounterValue, float64(s.DataDropped))
	ch <- prometheus.MustNewConstMetric(c.idChecksIssued, prometheus.CounterValue, float64(s.IDChecksIssued))
	ch <- prometheus.MustNewConstMetric(c.idChecksAccepted, prometheus.CounterValue, float64(s.IDChecksAccepted))
	ch <- prometheus.MustNewConstMetric(c.idChecksCollided, prometheus.CounterValue, float64(s.IDChecksCollided))
	ch <- prometheus.MustNewConstMetric(c.crcFailures, prometheus.CounterValue, float64(s.CRCFailures))
	ch <- prometheus.MustNewConstMetric(c.duplicatesSuppressed, prometheus.CounterValue, float64(s.DuplicatesSuppressed))
	ch <- prometheus.MustNewConstMetric(c.estimateMs, prometheus.GaugeValue, float64(s.EstimateMs))
	ch <- prometheus.MustNewConstMetric(c.offsetMs, prometheus.GaugeValue, float64(s.OffsetMs))
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)
