// Package producer publica en el bus las mutaciones locales del catálogo.
package producer

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/metrics"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

const (
	resultPublished  = "published"
	resultSuppressed = "suppressed"
	resultFailed     = "failed"
)

// Options agrupa las dependencias del producer.
type Options struct {
	Bus    bus.Bus
	Codec  *events.Codec
	Guard  *guard.Toggle
	NodeID string
	Logger *zap.Logger
}

// Producer implementa catalog.Listener. Con el guard deshabilitado (el engine
// aplicando un evento remoto, o pausa del operador) no emite nada.
type Producer struct {
	bus    bus.Bus
	codec  *events.Codec
	guard  *guard.Toggle
	nodeID string
	log    *zap.Logger
}

var _ catalog.Listener = (*Producer)(nil)

func New(opts Options) (*Producer, error) {
	if opts.Bus == nil || opts.Guard == nil {
		return nil, errors.New("producer: bus and guard are required")
	}
	if opts.Codec == nil {
		opts.Codec = events.NewCodec("")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("sync")
	}
	return &Producer{
		bus:    opts.Bus,
		codec:  opts.Codec,
		guard:  opts.Guard,
		nodeID: opts.NodeID,
		log:    log.With(logger.Component("sync.producer"), logger.Bus(opts.Bus.Name())),
	}, nil
}

func (p *Producer) EntityAdded(ctx context.Context, e catalog.Entity) {
	p.emit(ctx, events.NewCreated(e))
}

// EntityModified publica sólo los campos que cambiaron; sin diferencias no emite.
func (p *Producer) EntityModified(ctx context.Context, old, updated catalog.Entity) {
	ev := events.NewModified(old, updated)
	if ev == nil {
		return
	}
	p.emit(ctx, ev)
}

func (p *Producer) EntityRemoved(ctx context.Context, e catalog.Entity) {
	p.emit(ctx, events.NewRemoved(e))
}

// Publish codifica y publica un evento sin consultar el guard. Lo usa el CLI emit.
func (p *Producer) Publish(ctx context.Context, ev *events.ChangeEvent) (*events.Envelope, error) {
	env, data, err := p.codec.Encode(p.nodeID, ev)
	if err != nil {
		return nil, err
	}
	if err := p.bus.Publish(ctx, data); err != nil {
		return env, err
	}
	return env, nil
}

func (p *Producer) emit(ctx context.Context, ev *events.ChangeEvent) {
	if ev == nil {
		return
	}
	if !p.guard.Enabled() {
		metrics.ProducerEvents.WithLabelValues(resultSuppressed).Inc()
		p.log.Debug("guard disabled, not publishing", logger.EventType(string(ev.Type)),
			logger.EntityKind(string(ev.Source.Kind())), logger.EntityID(ev.Source.GetID()))
		return
	}

	env, err := p.Publish(ctx, ev)
	if err != nil {
		metrics.ProducerEvents.WithLabelValues(resultFailed).Inc()
		p.log.Error("unable to publish catalog event", logger.EventType(string(ev.Type)),
			logger.EntityKind(string(ev.Source.Kind())), logger.EntityID(ev.Source.GetID()), logger.Err(err))
		return
	}
	metrics.ProducerEvents.WithLabelValues(resultPublished).Inc()
	p.log.Debug("catalog event published", logger.EventID(env.ID), logger.EventType(string(env.Type)),
		logger.EntityKind(string(env.EntityKind)), logger.EntityID(ev.Source.GetID()), logger.Properties(env.PropertyNames))
}
