// Package metrics provides Prometheus metrics for the master process.
// Metrics are exported through a node_exporter textfile, never over the network.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smazurov/prefork/internal/events"
	"github.com/smazurov/prefork/internal/logging"
	"github.com/smazurov/prefork/internal/process"
)

var statuses = []process.Status{
	process.StatusStarting,
	process.StatusRunning,
	process.StatusShuttingDown,
	process.StatusReloading,
}

// Collector turns supervisor events into Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry
	textfile string
	logger   logging.Logger
	writeMu  sync.Mutex

	workers         prometheus.Gauge
	target          prometheus.Gauge
	workersStarted  prometheus.Counter
	workerExits     *prometheus.CounterVec
	spawnFailures   prometheus.Counter
	reloads         prometheus.Counter
	reloadDuration  prometheus.Gauge
	reloadTimestamp prometheus.Gauge
	status          *prometheus.GaugeVec
}

// New creates a collector with its own registry. target is the configured
// pool size; textfile, when set, is rewritten after every event.
func New(target int, textfile string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		textfile: textfile,
		logger:   logging.GetLogger("metrics"),

		workers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "prefork",
			Subsystem: "pool",
			Name:      "workers",
			Help:      "Number of registered worker processes",
		}),
		target: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "prefork",
			Subsystem: "pool",
			Name:      "target_workers",
			Help:      "Configured worker pool size",
		}),
		workersStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "prefork",
			Subsystem: "pool",
			Name:      "workers_started_total",
			Help:      "Worker processes spawned",
		}),
		workerExits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prefork",
			Subsystem: "pool",
			Name:      "worker_exits_total",
			Help:      "Worker processes removed from the pool",
		}, []string{"expected"}),
		spawnFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "prefork",
			Subsystem: "pool",
			Name:      "spawn_failures_total",
			Help:      "Failed attempts to create a worker process",
		}),
		reloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "prefork",
			Subsystem: "master",
			Name:      "reloads_total",
			Help:      "Completed reloads",
		}),
		reloadDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "prefork",
			Subsystem: "master",
			Name:      "last_reload_duration_seconds",
			Help:      "Duration of the last completed reload",
		}),
		reloadTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "prefork",
			Subsystem: "master",
			Name:      "last_reload_timestamp_seconds",
			Help:      "Unix time of the last completed reload",
		}),
		status: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "prefork",
			Subsystem: "master",
			Name:      "status",
			Help:      "1 for the current master status, 0 otherwise",
		}, []string{"status"}),
	}

	c.target.Set(float64(target))
	c.setStatus(process.StatusStarting)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to bus. The returned function detaches it.
func (c *Collector) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.WorkerStartedEvent) {
			c.workersStarted.Inc()
			c.workers.Set(float64(e.Workers))
			c.flush()
		}),
		bus.Subscribe(func(e events.WorkerExitedEvent) {
			label := "false"
			if e.Expected {
				label = "true"
			}
			c.workerExits.WithLabelValues(label).Inc()
			c.workers.Dec()
			c.flush()
		}),
		bus.Subscribe(func(events.SpawnFailedEvent) {
			c.spawnFailures.Inc()
			c.flush()
		}),
		bus.Subscribe(func(e events.StatusChangedEvent) {
			c.setStatus(e.New)
			c.flush()
		}),
		bus.Subscribe(func(e events.ReloadCompletedEvent) {
			c.reloads.Inc()
			c.workers.Set(float64(len(e.Workers)))
			c.reloadDuration.Set(e.Duration.Seconds())
			c.reloadTimestamp.Set(float64(e.Timestamp.Unix()))
			c.flush()
		}),
	}

	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func (c *Collector) setStatus(current process.Status) {
	for _, s := range statuses {
		v := 0.0
		if s == current {
			v = 1
		}
		c.status.WithLabelValues(string(s)).Set(v)
	}
}

func (c *Collector) flush() {
	if c.textfile == "" {
		return
	}
	if err := c.WriteTextfile(); err != nil {
		c.logger.Warn("Failed to write metrics textfile", "path", c.textfile, "error", err)
	}
}
