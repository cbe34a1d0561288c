package engine

import (
	metrics "github.com/rcrowley/go-metrics"
)

// engineMetrics are the per-store go-metrics instruments registered
// against the process-wide DefaultRegistry, later scraped or shipped to
// graphite by whatever the caller wires up (see cmd/kvsd-server's optional
// --graphite-addr reporter and --metrics-addr endpoint).
type engineMetrics struct {
	sets             metrics.Counter
	gets             metrics.Counter
	removes          metrics.Counter
	compactions      metrics.Counter
	compactionTimer  metrics.Timer
	uncompactedBytes metrics.GaugeFloat64
}

func newEngineMetrics(namePrefix string) *engineMetrics {
	return &engineMetrics{
		sets:             metrics.GetOrRegisterCounter(namePrefix+".sets", metrics.DefaultRegistry),
		gets:             metrics.GetOrRegisterCounter(namePrefix+".gets", metrics.DefaultRegistry),
		removes:          metrics.GetOrRegisterCounter(namePrefix+".removes", metrics.DefaultRegistry),
		compactions:      metrics.GetOrRegisterCounter(namePrefix+".compactions", metrics.DefaultRegistry),
		compactionTimer:  metrics.GetOrRegisterTimer(namePrefix+".compaction.duration", metrics.DefaultRegistry),
		uncompactedBytes: metrics.GetOrRegisterGaugeFloat64(namePrefix+".uncompacted_bytes", metrics.DefaultRegistry),
	}
}
