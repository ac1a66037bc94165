package prometheus

import (
	"github.com/datarhei/rtsp/session"

	"github.com/prometheus/client_golang/prometheus"
)

type sessionCollector struct {
	name      string
	collector session.Collector

	totalDesc     *prometheus.Desc
	activeDesc    *prometheus.Desc
	rxDesc        *prometheus.Desc
	txDesc        *prometheus.Desc
	rxBitrateDesc *prometheus.Desc
	txBitrateDesc *prometheus.Desc
}

// NewSessionCollector exports the numbers of the session collector.
func NewSessionCollector(name string, c session.Collector) prometheus.Collector {
	return &sessionCollector{
		name:      name,
		collector: c,
		totalDesc: prometheus.NewDesc(
			"session_total",
			"Total number of sessions",
			[]string{"server"}, nil),
		activeDesc: prometheus.NewDesc(
			"session_active",
			"Current number of active sessions",
			[]string{"server"}, nil),
		rxDesc: prometheus.NewDesc(
			"session_rx_bytes",
			"Total received bytes",
			[]string{"server"}, nil),
		txDesc: prometheus.NewDesc(
			"session_tx_bytes",
			"Total sent bytes",
			[]string{"server"}, nil),
		rxBitrateDesc: prometheus.NewDesc(
			"session_rx_bitrate",
			"Current receive bitrate in bit/s",
			[]string{"server"}, nil),
		txBitrateDesc: prometheus.NewDesc(
			"session_tx_bitrate",
			"Current send bitrate in bit/s",
			[]string{"server"}, nil),
	}
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalDesc
	ch <- c.activeDesc
	ch <- c.rxDesc
	ch <- c.txDesc
	ch <- c.rxBitrateDesc
	ch <- c.txBitrateDesc
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	summary := c.collector.Summary()

	ch <- prometheus.MustNewConstMetric(c.totalDesc, prometheus.CounterValue, float64(summary.TotalSessions), c.name)
	ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(len(summary.Active)), c.name)
	ch <- prometheus.MustNewConstMetric(c.rxDesc, prometheus.CounterValue, float64(summary.TotalRxBytes), c.name)
	ch <- prometheus.MustNewConstMetric(c.txDesc, prometheus.CounterValue, float64(summary.TotalTxBytes), c.name)
	ch <- prometheus.MustNewConstMetric(c.rxBitrateDesc, prometheus.GaugeValue, summary.RxBitrate, c.name)
	ch <- prometheus.MustNewConstMetric(c.txBitrateDesc, prometheus.GaugeValue, summary.TxBitrate, c.name)
}
