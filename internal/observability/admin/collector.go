package admin

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fleetnotify"

// collector snapshots the engine metrics on every scrape. ResetMetrics shows
// up as a counter reset, which Prometheus tolerates.
type collector struct {
	src Source

	outcomes   *prometheus.Desc
	byType     *prometheus.Desc
	bySeverity *prometheus.Desc
	byChannel  *prometheus.Desc
	unread     *prometheus.Desc
	workers    *prometheus.Desc
}

func newCollector(src Source) *collector {
	return &collector{
		src: src,
		outcomes: prometheus.NewDesc(namespace+"_notifications_total",
			"Notifications by pipeline outcome.", []string{"outcome"}, nil),
		byType: prometheus.NewDesc(namespace+"_delivered_by_type_total",
			"Delivered notifications by type.", []string{"type"}, nil),
		bySeverity: prometheus.NewDesc(namespace+"_delivered_by_severity_total",
			"Delivered notifications by severity.", []string{"severity"}, nil),
		byChannel: prometheus.NewDesc(namespace+"_delivered_by_channel_total",
			"Delivered notifications by channel.", []string{"channel"}, nil),
		unread: prometheus.NewDesc(namespace+"_unread",
			"Unread, undismissed, unexpired history entries.", nil, nil),
		workers: prometheus.NewDesc(namespace+"_processor_goroutines",
			"Active engine goroutines.", nil, nil),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.outcomes
	ch <- c.byType
	ch <- c.bySeverity
	ch <- c.byChannel
	ch <- c.unread
	ch <- c.workers
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.Metrics()
	for outcome, v := range map[string]int64{
		"sent":         m.TotalSent,
		"read":         m.TotalRead,
		"dismissed":    m.TotalDismissed,
		"expired":      m.TotalExpired,
		"throttled":    m.TotalThrottled,
		"deduplicated": m.TotalDeduplicated,
		"grouped":      m.TotalGrouped,
		"failed":       m.TotalFailed,
		"dropped":      m.TotalDropped,
	} {
		ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(v), outcome)
	}
	for k, v := range m.ByType {
		ch <- prometheus.MustNewConstMetric(c.byType, prometheus.CounterValue, float64(v), k)
	}
	for k, v := range m.BySeverity {
		ch <- prometheus.MustNewConstMetric(c.bySeverity, prometheus.CounterValue, float64(v), string(k))
	}
	for k, v := range m.ByChannel {
		ch <- prometheus.MustNewConstMetric(c.byChannel, prometheus.CounterValue, float64(v), string(k))
	}
	ch <- prometheus.MustNewConstMetric(c.unread, prometheus.GaugeValue, float64(c.src.UnreadCount()))
	ch <- prometheus.MustNewConstMetric(c.workers, prometheus.GaugeValue, float64(c.src.Counters().Active))
}
