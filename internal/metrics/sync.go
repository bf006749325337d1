// Package metrics agrupa los collectors Prometheus del nodo.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SyncEvents cuenta eventos aplicados por el engine. result: applied|noop|failed.
	SyncEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocluster_sync_events_total",
		Help: "Eventos remotos procesados por el engine",
	}, []string{"type", "result"})

	SyncApplyDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "geocluster_sync_apply_duration_seconds",
		Help:    "Duración de Synchronize por tipo de evento",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// PatchSkippedFields cuenta campos ignorados por el patcher. reason: unknown|rejected.
	PatchSkippedFields = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocluster_patch_skipped_fields_total",
		Help: "Campos remotos sin contraparte local o con valor no convertible",
	}, []string{"kind", "reason"})

	// ProducerEvents cuenta emisiones. result: published|suppressed|failed.
	ProducerEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocluster_producer_events_total",
		Help: "Eventos locales emitidos (o suprimidos por el guard)",
	}, []string{"result"})

	// ConsumerDropped cuenta mensajes descartados antes del engine. reason: own_origin|duplicate|decode|queue_full.
	ConsumerDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geocluster_consumer_dropped_total",
		Help: "Mensajes del bus descartados por el consumer",
	}, []string{"reason"})
)

// Register registra todas las métricas en el registry dado (o el default si nil).
// Tolera AlreadyRegisteredError para poder llamarse más de una vez.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	cs := []prometheus.Collector{SyncEvents, SyncApplyDuration, PatchSkippedFields, ProducerEvents, ConsumerDropped}
	cs = append(cs, raftCollectors()...)
	cs = append(cs, httpCollectors()...)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
