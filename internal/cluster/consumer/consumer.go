// Package consumer drena el bus y aplica los eventos remotos con el engine.
//
// Cada mensaje se decodifica, se descartan los de origen propio y los duplicados
// (por id de evento, con TTL) y el resto va a Engine.Synchronize desde un pool de
// workers. Eventos de entidades distintas pueden aplicarse fuera de orden.
package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/syncer"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/metrics"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// Synchronizer es lo que el consumer necesita del engine.
type Synchronizer interface {
	Synchronize(ctx context.Context, ev *events.ChangeEvent) (bool, error)
}

// EntityGetter confirma que un CREATED en conflicto dejó la entidad en el catálogo.
type EntityGetter interface {
	Get(ctx context.Context, kind catalog.Kind, id string) (catalog.Entity, error)
}

// ErrAlreadyRunning lo devuelve Run si el consumer ya fue arrancado.
var ErrAlreadyRunning = errors.New("consumer: already running")

// Options configura el consumer. Los ceros toman defaults.
type Options struct {
	Bus    bus.Bus
	Codec  *events.Codec
	Engine Synchronizer
	NodeID string

	// Catalog es opcional. Sin él, todo conflicto de un CREATED cuenta como aplicado.
	Catalog EntityGetter

	Workers        int           // default 4
	QueueSize      int           // default 1024
	DedupTTL       time.Duration // default 10m
	EnqueueTimeout time.Duration // default 5s; pasado ese tiempo con la cola llena el mensaje se descarta

	Logger *zap.Logger
}

// Stats son contadores acumulados desde el arranque.
type Stats struct {
	Received uint64 `json:"received"`
	Applied  uint64 `json:"applied"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

type Consumer struct {
	bus     bus.Bus
	codec   *events.Codec
	engine  Synchronizer
	catalog EntityGetter
	nodeID  string
	workers int
	queue   chan []byte
	timeout time.Duration
	seen    *gocache.Cache
	base    *zap.Logger
	log     *zap.Logger

	running                            atomic.Bool
	received, applied, failed, dropped atomic.Uint64
}

func New(opts Options) (*Consumer, error) {
	if opts.Bus == nil || opts.Engine == nil {
		return nil, errors.New("consumer: bus and engine are required")
	}
	if opts.Codec == nil {
		opts.Codec = events.NewCodec("")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = 10 * time.Minute
	}
	if opts.EnqueueTimeout <= 0 {
		opts.EnqueueTimeout = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("sync")
	}
	return &Consumer{
		bus:     opts.Bus,
		codec:   opts.Codec,
		engine:  opts.Engine,
		catalog: opts.Catalog,
		nodeID:  opts.NodeID,
		workers: opts.Workers,
		queue:   make(chan []byte, opts.QueueSize),
		timeout: opts.EnqueueTimeout,
		seen:    gocache.New(opts.DedupTTL, time.Minute),
		base:    log,
		log:     log.With(logger.Component("sync.consumer"), logger.Bus(opts.Bus.Name())),
	}, nil
}

// Run suscribe al bus y bloquea hasta que ctx termine, el bus se cierre o la
// suscripción falle. Los mensajes ya encolados se drenan si el bus se cierra.
// Un Consumer corre una sola vez: llamadas posteriores devuelven ErrAlreadyRunning.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			c.work(gctx)
			return nil
		})
	}
	g.Go(func() error {
		// Subscribe es el único productor de la cola: al volver, se puede cerrar.
		defer close(c.queue)
		if err := c.bus.Subscribe(gctx, c.enqueue); err != nil && !errors.Is(err, bus.ErrClosed) {
			return err
		}
		return nil
	})
	c.log.Info("consumer started", logger.Int("workers", c.workers), logger.Int("queue_size", cap(c.queue)))
	err := g.Wait()
	c.log.Info("consumer stopped", logger.Err(err))
	return err
}

// Stats devuelve una foto de los contadores.
func (c *Consumer) Stats() Stats {
	return Stats{
		Received: c.received.Load(),
		Applied:  c.applied.Load(),
		Failed:   c.failed.Load(),
		Dropped:  c.dropped.Load(),
	}
}

func (c *Consumer) enqueue(ctx context.Context, payload []byte) {
	c.received.Add(1)
	select {
	case c.queue <- payload:
		return
	default:
	}
	t := time.NewTimer(c.timeout)
	defer t.Stop()
	select {
	case c.queue <- payload:
	case <-ctx.Done():
	case <-t.C:
		c.drop("queue_full")
		c.log.Error("consumer queue full, dropping message", logger.Int("queue_size", cap(c.queue)))
	}
}

func (c *Consumer) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.queue:
			if !ok {
				return
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	env, ev, err := c.codec.Decode(payload)
	if err != nil {
		c.drop("decode")
		c.log.Warn("discarding undecodable message", logger.Err(err))
		return
	}
	if env.Origin == c.nodeID {
		c.drop("own_origin")
		return
	}
	// Add es atómico: sólo el primero con este id pasa.
	if err := c.seen.Add(env.ID, struct{}{}, gocache.DefaultExpiration); err != nil {
		c.drop("duplicate")
		c.log.Debug("duplicate event", logger.EventID(env.ID), logger.Origin(env.Origin))
		return
	}

	// el engine loguea con el id y el origin del envelope.
	ctx = logger.ToContext(ctx, c.base.With(logger.EventID(env.ID), logger.Origin(env.Origin)))
	log := c.log.With(logger.EventID(env.ID), logger.Origin(env.Origin), logger.EventType(string(env.Type)),
		logger.EntityKind(string(env.EntityKind)), logger.EntityID(ev.Source.GetID()))

	_, err = c.engine.Synchronize(ctx, ev)
	switch {
	case err == nil:
		c.applied.Add(1)
	case syncer.IsDuplicate(err) && c.alreadyCreated(ctx, ev):
		// carrera de dos CREATED del mismo id: la entidad ya está.
		c.applied.Add(1)
		log.Warn("concurrent create already applied", logger.Err(err))
	case syncer.IsInvalidEvent(err):
		// el dedup se conserva: reentregar el mismo payload falla igual.
		c.failed.Add(1)
		log.Error("invalid event, not retryable", logger.Err(err))
	default:
		c.failed.Add(1)
		c.seen.Delete(env.ID)
		if syncer.IsEntityNotFound(err) {
			log.Warn("entity not found locally, redelivery allowed", logger.Err(err))
			return
		}
		log.Warn("event not applied, redelivery allowed", logger.Err(err))
	}
}

// alreadyCreated indica si el conflicto vino de un CREATED cuyo id ya existe.
// Un conflicto por nombre con otro id no cuenta.
func (c *Consumer) alreadyCreated(ctx context.Context, ev *events.ChangeEvent) bool {
	if ev.Type != events.Created {
		return false
	}
	if c.catalog == nil {
		return true
	}
	got, err := c.catalog.Get(ctx, ev.Source.Kind(), ev.Source.GetID())
	return err == nil && got != nil && got.Kind() == ev.Source.Kind()
}

func (c *Consumer) drop(reason string) {
	c.dropped.Add(1)
	metrics.ConsumerDropped.WithLabelValues(reason).Inc()
}
