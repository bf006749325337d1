// Package app arma un nodo completo a partir de la configuración: catálogo,
// persister, bus, guard, engine, producer, consumer y servidor HTTP.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/LiuPacific/geoserver/internal/catalog/fsstore"
	"github.com/LiuPacific/geoserver/internal/catalog/memory"
	"github.com/LiuPacific/geoserver/internal/catalog/pgstore"
	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/consumer"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	"github.com/LiuPacific/geoserver/internal/cluster/producer"
	"github.com/LiuPacific/geoserver/internal/cluster/syncer"
	"github.com/LiuPacific/geoserver/internal/config"
	"github.com/LiuPacific/geoserver/internal/http/controllers"
	"github.com/LiuPacific/geoserver/internal/http/router"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// Node es el contenedor de dependencias de un nodo en ejecución.
type Node struct {
	Config   *config.Config
	Catalog  *memory.Catalog
	Guard    *guard.Toggle
	Codec    *events.Codec
	Bus      bus.Bus
	Engine   *syncer.Engine
	Producer *producer.Producer
	Consumer *consumer.Consumer
	Handler  http.Handler

	log     *zap.Logger
	closers []func() error
}

// Build construye el nodo. Ante error libera lo que ya se abrió.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *Node, err error) {
	if log == nil {
		log = logger.L()
	}
	n := &Node{
		Config: cfg,
		Guard:  guard.New(true),
		Codec:  events.NewCodec(cfg.Bus.SigningKey),
		log:    log,
	}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	persister, err := n.openPersister(ctx)
	if err != nil {
		return nil, err
	}
	n.Catalog = memory.New(persister)
	loaded, err := n.Catalog.Load(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("catalog loaded", logger.Count(loaded), logger.String("store", cfg.Catalog.Store.Kind))

	if n.Bus, err = n.openBus(ctx); err != nil {
		return nil, err
	}
	n.closers = append(n.closers, n.Bus.Close)

	n.Engine, err = syncer.New(syncer.Options{
		Catalog: n.Catalog,
		Guard:   n.Guard,
		NodeID:  cfg.Node.ID,
		Logger:  log.Named("syncer"),
	})
	if err != nil {
		return nil, err
	}
	n.Producer, err = producer.New(producer.Options{
		Bus:    n.Bus,
		Codec:  n.Codec,
		Guard:  n.Guard,
		NodeID: cfg.Node.ID,
		Logger: log.Named("producer"),
	})
	if err != nil {
		return nil, err
	}
	n.Catalog.AddListener(n.Producer)

	n.Consumer, err = consumer.New(consumer.Options{
		Bus:            n.Bus,
		Codec:          n.Codec,
		Engine:         n.Engine,
		Catalog:        n.Catalog,
		NodeID:         cfg.Node.ID,
		Workers:        cfg.Consumer.Workers,
		QueueSize:      cfg.Consumer.QueueSize,
		DedupTTL:       cfg.DedupTTL(),
		EnqueueTimeout: cfg.EnqueueTimeout(),
		Logger:         log.Named("consumer"),
	})
	if err != nil {
		return nil, err
	}

	n.Handler = router.New(router.Deps{
		Logger:  log.Named("http"),
		Catalog: controllers.NewCatalogController(n.Catalog),
		Cluster: controllers.NewClusterController(n.Bus, n.Codec, n.Guard),
		Health: controllers.NewHealthController(controllers.HealthDeps{
			NodeID:   cfg.Node.ID,
			BusName:  n.Bus.Name(),
			Bus:      n.Bus,
			Guard:    n.Guard,
			Catalog:  n.Catalog,
			Consumer: n.Consumer,
		}),
	})
	return n, nil
}

func (n *Node) openPersister(ctx context.Context) (memory.Persister, error) {
	sc := n.Config.Catalog.Store
	switch sc.Kind {
	case "memory":
		return nil, nil
	case "fs":
		return fsstore.New(sc.FSRoot)
	case "postgres":
		s, err := pgstore.Open(ctx, pgstore.Config{DSN: sc.DSN, MaxConns: sc.MaxConns})
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, func() error { s.Close(); return nil })
		return s, nil
	}
	return nil, fmt.Errorf("app: unknown catalog store %q", sc.Kind)
}

func (n *Node) openBus(ctx context.Context) (bus.Bus, error) {
	bc := n.Config.Bus
	switch bc.Kind {
	case "local":
		return bus.NewLocal(0), nil
	case "redis":
		return bus.NewRedis(ctx, bus.RedisConfig{
			Addr:     bc.Redis.Addr,
			Password: bc.Redis.Password,
			DB:       bc.Redis.DB,
			Channel:  bc.Redis.Channel,
		})
	case "raft":
		return bus.NewRaft(bus.RaftConfig{
			NodeID:             n.Config.Node.ID,
			Addr:               bc.Raft.Addr,
			Dir:                bc.Raft.Dir,
			Peers:              bc.Raft.Peers,
			BootstrapPreferred: bc.Raft.BootstrapPreferred,
			DisableBootstrap:   bc.Raft.DisableBootstrap,
			LeaderRedirects:    bc.Raft.LeaderRedirects,
			ApplyTimeout:       n.Config.RaftApplyTimeout(),
			TLS: bus.RaftTLS{
				Enable:     bc.Raft.TLS.Enable,
				CertFile:   bc.Raft.TLS.CertFile,
				KeyFile:    bc.Raft.TLS.KeyFile,
				CAFile:     bc.Raft.TLS.CAFile,
				ServerName: bc.Raft.TLS.ServerName,
			},
			Logger: n.log.Named("raft"),
		})
	}
	return nil, fmt.Errorf("app: unknown bus kind %q", bc.Kind)
}

// Run sirve HTTP y consume el bus hasta que ctx se cancele o algo falle.
func (n *Node) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              n.Config.Server.Addr,
		Handler:           n.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Consumer.Run(gctx)
	})
	g.Go(func() error {
		n.log.Info("http listening", logger.String("addr", srv.Addr), logger.Bus(n.Bus.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), n.Config.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close libera bus y stores, en orden inverso de apertura.
func (n *Node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}
