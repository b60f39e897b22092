package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// exporter mirrors collector observations into Prometheus series.
type exporter struct {
	registry      *prometheus.Registry
	durations     *prometheus.HistogramVec
	downloadBytes prometheus.Counter
}

func newExporter() *exporter {
	e := &exporter{
		registry: prometheus.NewRegistry(),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fbparty",
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline and database operations.",
			Buckets:   []float64{.005, .025, .1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"op", "outcome"}),
		downloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fbparty",
			Name:      "download_bytes_total",
			Help:      "Bytes written by completed media downloads.",
		}),
	}
	e.registry.MustRegister(
		e.durations,
		e.downloadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

func (e *exporter) observe(op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	e.durations.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// Handler serves the Prometheus exposition of the collector's series.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.exporter.registry, promhttp.HandlerOpts{})
}
