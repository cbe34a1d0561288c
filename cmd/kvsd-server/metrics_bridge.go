package main

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	metrics "github.com/rcrowley/go-metrics"
)

// bridgeGoMetrics periodically mirrors every instrument registered against
// metrics.DefaultRegistry (the engine's and pool's counters, timers, and
// gauges) into a Prometheus gauge, so promhttp.Handler actually exposes
// them instead of only the Go collector defaults.
func bridgeGoMetrics(interval time.Duration) {
	gauges := make(map[string]prometheus.Gauge)
	var mu sync.Mutex

	gaugeFor := func(name string) prometheus.Gauge {
		mu.Lock()
		defer mu.Unlock()
		if g, ok := gauges[name]; ok {
			return g
		}
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kvsd_" + sanitizeMetricName(name),
			Help: "go-metrics bridged instrument " + name,
		})
		prometheus.MustRegister(g)
		gauges[name] = g
		return g
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for range tick.C {
		metrics.DefaultRegistry.Each(func(name string, i interface{}) {
			switch m := i.(type) {
			case metrics.Counter:
				gaugeFor(name).Set(float64(m.Count()))
			case metrics.Gauge:
				gaugeFor(name).Set(float64(m.Value()))
			case metrics.GaugeFloat64:
				gaugeFor(name).Set(m.Value())
			case metrics.Timer:
				gaugeFor(name + ".count").Set(float64(m.Count()))
				gaugeFor(name + ".mean").Set(m.Mean())
			}
		})
	}
}

func sanitizeMetricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
