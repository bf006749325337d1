// Package syncer aplica eventos de cambio remotos sobre el catálogo local.
//
// El flujo de Synchronize es:
//
//	RECEIVED → GUARD_DISABLED → {LOCATING, CREATING, REMOVING} → PATCHED? → PERSISTED → GUARD_RESTORED → DONE
//
// FAILED es alcanzable desde cualquier paso y siempre pasa por GUARD_RESTORED
// antes de devolver el error.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/metrics"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

const (
	resultApplied = "applied"
	resultNoop    = "noop"
	resultFailed  = "failed"
)

// Options agrupa las dependencias del engine.
type Options struct {
	Catalog catalog.Catalog
	// Guard es el mismo handle que consulta el producer local.
	Guard *guard.Toggle
	// NodeID es el nodo al que se re-asocian las entidades aplicadas.
	NodeID string
	Logger *zap.Logger
}

// Engine es seguro para uso concurrente: no tiene estado mutable propio.
// Los eventos de entidades distintas pueden aplicarse en paralelo y fuera de orden.
type Engine struct {
	catalog catalog.Catalog
	guard   *guard.Toggle
	nodeID  string
	log     *zap.Logger
}

// New crea un engine.
func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil {
		return nil, errors.New("syncer: catalog is required")
	}
	if opts.Guard == nil {
		return nil, errors.New("syncer: guard is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("sync")
	}
	return &Engine{
		catalog: opts.Catalog,
		guard:   opts.Guard,
		nodeID:  opts.NodeID,
		log:     log.With(logger.Component("sync.engine")),
	}, nil
}

// Synchronize aplica un evento remoto. Devuelve true si el evento quedó aplicado
// (incluye los no-op idempotentes). Ante error, el guard ya fue restaurado cuando
// la función retorna; no hay reintentos acá.
func (e *Engine) Synchronize(ctx context.Context, ev *events.ChangeEvent) (bool, error) {
	log := e.scoped(ctx)
	if ev == nil {
		err := fmt.Errorf("%w: incoming event is nil", ErrInvalidEvent)
		log.Error("unable to synchronize the incoming event", logger.Err(err))
		metrics.SyncEvents.WithLabelValues("", resultFailed).Inc()
		return false, err
	}
	typ := string(ev.Type)
	if verr := ev.Validate(); verr != nil {
		err := fmt.Errorf("%w: %v", ErrInvalidEvent, verr)
		log.Error("unable to synchronize the incoming event", logger.Any("event", ev.String()), logger.Err(err))
		metrics.SyncEvents.WithLabelValues(typ, resultFailed).Inc()
		return false, err
	}

	start := time.Now()
	result, err := e.apply(ctx, ev)
	metrics.SyncApplyDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("unable to synchronize the incoming event", append(eventFields(ev), logger.Err(err))...)
		metrics.SyncEvents.WithLabelValues(typ, resultFailed).Inc()
		return false, err
	}
	metrics.SyncEvents.WithLabelValues(typ, result).Inc()
	log.Debug("event synchronized", append(eventFields(ev), logger.String("result", result))...)
	return true, nil
}

// apply deshabilita el guard durante el dispatch; el defer cubre también panics.
func (e *Engine) apply(ctx context.Context, ev *events.ChangeEvent) (string, error) {
	release := e.guard.Acquire()
	defer release()

	switch ev.Type {
	case events.Modified:
		return e.modify(ctx, ev)
	case events.Created:
		return e.create(ctx, ev)
	case events.Removed:
		return e.remove(ctx, ev)
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, ev.Type)
}

func (e *Engine) modify(ctx context.Context, ev *events.ChangeEvent) (string, error) {
	local, err := Locate(ctx, e.catalog, ev)
	if err != nil {
		return "", err
	}
	if local == nil {
		return "", fmt.Errorf("%w: %s %s (name=%q workspace=%q)",
			ErrEntityNotFound, ev.Source.Kind(), ev.Source.GetID(), ev.Source.GetName(), ev.Source.GetWorkspace())
	}

	res, err := ApplyFields(local, ev.PropertyNames, ev.OldValues, ev.NewValues)
	if err != nil {
		return "", err
	}
	kind := string(local.Kind())
	if !res.Clean() {
		e.reportPartial(ctx, local, res)
	}

	Localize(local, e.nodeID)
	if err := e.catalog.Save(ctx, local); err != nil {
		return "", fmt.Errorf("save %s %s: %w", kind, local.GetID(), err)
	}
	return resultApplied, nil
}

// reportPartial registra los campos que ApplyFields no pudo escribir.
func (e *Engine) reportPartial(ctx context.Context, local catalog.Entity, res PatchResult) {
	kind := string(local.Kind())
	log := e.scoped(ctx).With(logger.EntityKind(kind), logger.EntityID(local.GetID()))
	if len(res.Skipped) > 0 {
		metrics.PatchSkippedFields.WithLabelValues(kind, "unknown").Add(float64(len(res.Skipped)))
		log.Debug("skipping fields without local counterpart", logger.Properties(res.Skipped))
	}
	if len(res.Rejected) > 0 {
		metrics.PatchSkippedFields.WithLabelValues(kind, "rejected").Add(float64(len(res.Rejected)))
		log.Warn("skipping fields with unconvertible values", logger.Properties(res.Rejected))
	}
}

// create no serializa el check-then-add: si dos workers agregan el mismo id a la
// vez, uno gana y el otro recibe catalog.ErrConflict del catálogo.
func (e *Engine) create(ctx context.Context, ev *events.ChangeEvent) (string, error) {
	src := ev.Source
	existing, err := e.catalog.Get(ctx, src.Kind(), src.GetID())
	switch {
	case err == nil && existing != nil && existing.Kind() == src.Kind():
		return resultNoop, nil
	case err != nil && !catalog.IsNotFound(err):
		return "", fmt.Errorf("get %s %s: %w", src.Kind(), src.GetID(), err)
	}

	entity := src.Clone()
	Localize(entity, e.nodeID)
	if err := e.catalog.Add(ctx, entity); err != nil {
		return "", fmt.Errorf("add %s %s: %w", src.Kind(), src.GetID(), err)
	}
	return resultApplied, nil
}

func (e *Engine) remove(ctx context.Context, ev *events.ChangeEvent) (string, error) {
	src := ev.Source
	err := e.catalog.Remove(ctx, src)
	if catalog.IsNotFound(err) {
		return resultNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("remove %s %s: %w", src.Kind(), src.GetID(), err)
	}
	return resultApplied, nil
}

// scoped devuelve el logger del engine, o el del caller si vino en ctx
// (el consumer deja ahí el id y el origin del envelope).
func (e *Engine) scoped(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l.With(logger.Component("sync.engine"))
	}
	return e.log
}

func eventFields(ev *events.ChangeEvent) []zap.Field {
	return []zap.Field{
		logger.EventType(string(ev.Type)),
		logger.EntityKind(string(ev.Source.Kind())),
		logger.EntityID(ev.Source.GetID()),
		logger.EntityName(ev.Source.GetName()),
		logger.Workspace(ev.Source.GetWorkspace()),
		logger.Properties(ev.PropertyNames),
	}
}
