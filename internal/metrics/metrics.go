package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mirajehossain/shift/internal/migrator"
)

const namespace = "shift"

// Collector observes a Shift and keeps Prometheus metrics in its own registry.
// Batch runs export them with WriteTextfile.
type Collector struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	versions map[string]int64

	Events            *prometheus.CounterVec
	Migrations        *prometheus.CounterVec
	MigrationDuration *prometheus.HistogramVec
	LastVersion       *prometheus.GaugeVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		versions: map[string]int64{},
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Lifecycle events emitted by shift operations",
		}, []string{"keyspace", "event"}),
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Migration attempts by outcome",
		}, []string{"keyspace", "type", "status"}),
		MigrationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Execution time of single migrations",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"keyspace", "type"}),
		LastVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_applied_version",
			Help:      "Highest version successfully applied in this process",
		}, []string{"keyspace"}),
	}
	reg.MustRegister(c.Events, c.Migrations, c.MigrationDuration, c.LastVersion)
	return c
}

// Notify implements migrator.Observer.
func (c *Collector) Notify(e migrator.Event) {
	c.Events.WithLabelValues(e.Keyspace, string(e.Kind)).Inc()

	switch e.Kind {
	case migrator.EventAppliedMigration, migrator.EventFailedMigration:
		status := "success"
		if e.Kind == migrator.EventFailedMigration {
			status = "failed"
		}
		c.Migrations.WithLabelValues(e.Keyspace, string(e.Type), status).Inc()
		c.MigrationDuration.WithLabelValues(e.Keyspace, string(e.Type)).Observe(float64(e.ExecutionTime) / 1000)
		if status == "success" {
			c.setLastVersion(e.Keyspace, e.Version)
		}
	case migrator.EventCleaned:
		c.mu.Lock()
		delete(c.versions, e.Keyspace)
		c.mu.Unlock()
		c.LastVersion.DeleteLabelValues(e.Keyspace)
	}
}

func (c *Collector) setLastVersion(keyspace string, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.versions[keyspace]; ok && prev >= v {
		return
	}
	c.versions[keyspace] = v
	c.LastVersion.WithLabelValues(keyspace).Set(float64(v))
}

// Registry exposes the collector's registry, e.g. for promhttp.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// WriteTextfile writes the current metrics in the text exposition format,
// atomically replacing path.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
