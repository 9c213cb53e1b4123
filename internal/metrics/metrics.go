package metrics

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"healthshare/internal/db"
	"healthshare/internal/notify"
)

var (
	sharesByStatusDesc = prometheus.NewDesc(
		"healthshare_shares_total",
		"Total share count by status",
		[]string{"status"},
		nil,
	)
	accessCountDesc = prometheus.NewDesc(
		"healthshare_recorded_accesses_total",
		"Sum of access counters across all shares",
		nil,
		nil,
	)

	accessOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthshare_access_attempts_total",
			Help: "Access attempts by outcome",
		},
		[]string{"outcome"},
	)
)

// ShareCollector is a custom Prometheus collector that reads share counts
// from the database on each scrape, so the exported numbers can never drift
// from the store.
type ShareCollector struct {
	db *db.DB
}

// Describe sends the metric descriptors to the channel.
func (c *ShareCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sharesByStatusDesc
	ch <- accessCountDesc
}

// Collect queries the database for share counts and emits them as gauges.
func (c *ShareCollector) Collect(ch chan<- prometheus.Metric) {
	counts, accesses, err := c.db.GetGlobalShareStats(context.Background())
	if err != nil {
		slog.Error("failed to collect share metrics", "error", err)
		return
	}
	for status, count := range counts {
		ch <- prometheus.MustNewConstMetric(
			sharesByStatusDesc,
			prometheus.GaugeValue,
			float64(count),
			status,
		)
	}
	ch <- prometheus.MustNewConstMetric(
		accessCountDesc,
		prometheus.CounterValue,
		float64(accesses),
	)
}

var initOnce sync.Once

// Init registers the collectors. Must be called once at startup.
func Init(database *db.DB) {
	initOnce.Do(func() {
		prometheus.MustRegister(&ShareCollector{db: database})
		prometheus.MustRegister(accessOutcomes)
	})
}

// ObserveEvents drains a notifier subscription and counts access outcomes.
// Meant to run in its own goroutine; returns when the channel closes.
func ObserveEvents(ch <-chan notify.Event) {
	for ev := range ch {
		switch ev.Type {
		case notify.EventAccessGranted:
			accessOutcomes.WithLabelValues("granted").Inc()
		case notify.EventAccessDenied:
			accessOutcomes.WithLabelValues("denied").Inc()
		}
	}
}
