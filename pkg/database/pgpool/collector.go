package pgpool

import "github.com/prometheus/client_golang/prometheus"

type collector struct {
	pool *Pool

	acquired        *prometheus.Desc
	idle            *prometheus.Desc
	total           *prometheus.Desc
	max             *prometheus.Desc
	acquireCount    *prometheus.Desc
	emptyAcquire    *prometheus.Desc
	canceledAcquire *prometheus.Desc
}

// Collector exposes the pool counters as Prometheus metrics labelled with
// the application name.
func (p *Pool) Collector(application string) prometheus.Collector {
	labels := prometheus.Labels{"application": application}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("pgpool", "", name), help, nil, labels)
	}

	return &collector{
		pool:            p,
		acquired:        desc("acquired_connections", "Connections currently borrowed."),
		idle:            desc("idle_connections", "Connections currently idle."),
		total:           desc("total_connections", "Connections currently open."),
		max:             desc("max_connections", "Maximum pool size."),
		acquireCount:    desc("acquires_total", "Successful borrows."),
		emptyAcquire:    desc("empty_acquires_total", "Borrows that had to wait for a connection."),
		canceledAcquire: desc("canceled_acquires_total", "Borrows canceled by their context."),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.emptyAcquire
	ch <- c.canceledAcquire
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	if c.pool.Closed() {
		return
	}

	s := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount))
	ch <- prometheus.MustNewConstMetric(c.emptyAcquire, prometheus.CounterValue, float64(s.EmptyAcquireCount))
	ch <- prometheus.MustNewConstMetric(c.canceledAcquire, prometheus.CounterValue, float64(s.CanceledAcquireCount))
}
