package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Métricas del bus Raft. Viven en este paquete para que bus y http no se importen entre sí.

var (
	RaftApplyLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "geocluster_raft_apply_latency_ms",
		Help:    "Latencia de raft.Apply en milisegundos",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	RaftLeadershipChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geocluster_raft_leadership_changes_total",
		Help: "Cambios de rol a leader",
	})

	RaftLogSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "geocluster_raft_log_size_bytes",
		Help: "Tamaño en bytes del archivo de log/stable (BoltDB)",
	})

	RaftForwardedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocluster_raft_forwarded_total",
		Help: "Publicaciones reenviadas al leader por HTTP, por resultado",
	}, []string{"result"})
)

func raftCollectors() []prometheus.Collector {
	return []prometheus.Collector{RaftApplyLatency, RaftLeadershipChanges, RaftLogSizeBytes, RaftForwardedTotal}
}
