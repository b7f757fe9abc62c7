package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry    *prometheus.Registry
	Requests    *prometheus.CounterVec
	Feeds       prometheus.Counter
	Items       *prometheus.CounterVec
	Rows        prometheus.Counter
	RunDuration prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smallfeed_requests_total",
			Help: "Reddit API requests by endpoint and HTTP status code.",
		}, []string{"endpoint", "code"}),
		Feeds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallfeed_feeds_total",
			Help: "Subscribed feeds fetched.",
		}),
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "smallfeed_items_total",
			Help: "Top items returned per subreddit.",
		}, []string{"subreddit"}),
		Rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "smallfeed_rows_total",
			Help: "Rows printed in the report.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "smallfeed_run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
	}
	m.registry.MustRegister(m.Requests, m.Feeds, m.Items, m.Rows, m.RunDuration)
	return m
}

func (m *Metrics) RequestDone(endpoint string, code int) {
	m.Requests.WithLabelValues(endpoint, fmt.Sprint(code)).Inc()
}

func (m *Metrics) FeedFetched(subreddit string, items int) {
	m.Feeds.Inc()
	m.Items.WithLabelValues(subreddit).Add(float64(items))
}

func (m *Metrics) RunFinished(rows int, elapsed time.Duration) {
	m.Rows.Add(float64(rows))
	m.RunDuration.Set(elapsed.Seconds())
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics in the node exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
