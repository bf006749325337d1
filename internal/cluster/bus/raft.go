package bus

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"go.uber.org/zap"

	"github.com/LiuPacific/geoserver/internal/metrics"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// PublishPath es la ruta HTTP a la que los followers reenvían publicaciones.
const PublishPath = "/v1/cluster/publish"

// ForwardedHeader marca una publicación reenviada; lleva el node id de origen.
const ForwardedHeader = "X-Geocluster-Forwarded-By"

// RaftTLS habilita mTLS en el transporte raft.
type RaftTLS struct {
	Enable     bool
	CertFile   string
	KeyFile    string
	CAFile     string
	ServerName string
}

// RaftConfig configura el bus raft.
type RaftConfig struct {
	NodeID string
	Addr   string // host:port del transporte raft
	Dir    string // datos de raft (bolt + snapshots)
	// Peers es el conjunto estático nodeID→raftAddr. Con más de uno, sólo un nodo hace bootstrap.
	Peers map[string]string
	// BootstrapPreferred fuerza a este nodo como bootstrapper; si no, se elige el menor NodeID.
	BootstrapPreferred bool
	// DisableBootstrap deja al nodo esperando a ser agregado por el leader.
	DisableBootstrap bool
	// LeaderRedirects mapea nodeID→URL base HTTP, para reenviar publicaciones al leader.
	LeaderRedirects map[string]string
	ApplyTimeout    time.Duration
	TLS             RaftTLS
	HTTPClient      *http.Client
	Logger          *zap.Logger
}

// Raft replica cada envelope como una entrada del log. El FSM entrega las entradas
// commiteadas al suscriptor de cada nodo. Publish en un follower se reenvía al
// leader por HTTP.
type Raft struct {
	r      *raft.Raft
	store  *raftboltdb.BoltStore
	fsm    *eventFSM
	nodeID string
	addr   raft.ServerAddress

	redirects    map[string]string
	applyTimeout time.Duration
	client       *http.Client
	log          *zap.Logger

	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var _ Bus = (*Raft)(nil)

// NewRaft abre los stores, arranca raft y hace bootstrap si no hay estado previo.
func NewRaft(cfg RaftConfig) (*Raft, error) {
	if cfg.NodeID == "" || cfg.Addr == "" || cfg.Dir == "" {
		return nil, errors.New("bus: raft requires node id, addr and dir")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Named("bus")
	}
	log = log.With(logger.Bus("raft"), logger.NodeID(cfg.NodeID))

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir raft dir: %w", err)
	}

	// log + stable en la misma Bolt DB.
	boltPath := filepath.Join(cfg.Dir, "raft.db")
	boltStore, err := raftboltdb.NewBoltStore(boltPath)
	if err != nil {
		return nil, fmt.Errorf("bolt store: %w", err)
	}
	snapStore, err := raft.NewFileSnapshotStore(cfg.Dir, 2, os.Stderr)
	if err != nil {
		_ = boltStore.Close()
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	trans, err := newTransport(cfg)
	if err != nil {
		_ = boltStore.Close()
		return nil, err
	}

	// Las entradas ya presentes se entregaron en una corrida anterior; al reiniciar
	// raft las re-aplica y no deben volver a llegar al catálogo.
	replayed, err := boltStore.LastIndex()
	if err != nil {
		_ = boltStore.Close()
		return nil, fmt.Errorf("bolt last index: %w", err)
	}
	fsm := &eventFSM{skipThrough: replayed, log: log}

	rc := raft.DefaultConfig()
	rc.LocalID = raft.ServerID(cfg.NodeID)

	r, err := raft.NewRaft(rc, fsm, boltStore, boltStore, snapStore, trans)
	if err != nil {
		_ = boltStore.Close()
		return nil, fmt.Errorf("new raft: %w", err)
	}

	b := &Raft{
		r:            r,
		store:        boltStore,
		fsm:          fsm,
		nodeID:       cfg.NodeID,
		addr:         trans.LocalAddr(),
		redirects:    cfg.LeaderRedirects,
		applyTimeout: cfg.ApplyTimeout,
		client:       cfg.HTTPClient,
		log:          log,
		stop:         make(chan struct{}),
	}
	if b.applyTimeout <= 0 {
		b.applyTimeout = 5 * time.Second
	}
	if b.client == nil {
		b.client = &http.Client{Timeout: 10 * time.Second}
	}

	hasState, err := raft.HasExistingState(boltStore, boltStore, snapStore)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("check state: %w", err)
	}
	if !hasState {
		if err := b.bootstrap(cfg, rc.LocalID, trans.LocalAddr()); err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	go b.watchLeadership()
	go b.watchLogSize(boltPath)
	return b, nil
}

func newTransport(cfg RaftConfig) (*raft.NetworkTransport, error) {
	if cfg.TLS.Enable {
		bundle, err := loadTLSBundle(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("raft tls: %w", err)
		}
		ln, err := tls.Listen("tcp", cfg.Addr, bundle.server)
		if err != nil {
			return nil, fmt.Errorf("tls listen: %w", err)
		}
		return raft.NewNetworkTransport(&tlsStream{ln: ln, cfg: bundle.client}, 3, 10*time.Second, os.Stderr), nil
	}
	trans, err := raft.NewTCPTransport(cfg.Addr, nil, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("tcp transport: %w", err)
	}
	return trans, nil
}

func (b *Raft) bootstrap(cfg RaftConfig, localID raft.ServerID, localAddr raft.ServerAddress) error {
	if cfg.DisableBootstrap {
		b.log.Info("join-only mode, skipping bootstrap")
		return nil
	}
	if len(cfg.Peers) <= 1 {
		conf := raft.Configuration{Servers: []raft.Server{{ID: localID, Address: localAddr}}}
		if err := b.r.BootstrapCluster(conf).Error(); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		b.log.Info("bootstrapped single-node cluster", logger.String("addr", string(localAddr)))
		return nil
	}

	smallest := cfg.NodeID
	for id := range cfg.Peers {
		if id < smallest {
			smallest = id
		}
	}
	if !cfg.BootstrapPreferred && cfg.NodeID != smallest {
		b.log.Info("waiting to join static cluster", logger.String("bootstrapper", smallest))
		return nil
	}
	servers := make([]raft.Server, 0, len(cfg.Peers))
	for id, addr := range cfg.Peers {
		servers = append(servers, raft.Server{ID: raft.ServerID(id), Address: raft.ServerAddress(addr)})
	}
	if err := b.r.BootstrapCluster(raft.Configuration{Servers: servers}).Error(); err != nil {
		return fmt.Errorf("bootstrap(static): %w", err)
	}
	b.log.Info("bootstrapped static cluster", logger.Count(len(servers)))
	return nil
}

func (b *Raft) watchLeadership() {
	ch := b.r.LeaderCh()
	for {
		select {
		case <-b.stop:
			return
		case v := <-ch:
			if v {
				metrics.RaftLeadershipChanges.Inc()
				b.log.Info("acquired raft leadership")
			}
		}
	}
}

func (b *Raft) watchLogSize(boltPath string) {
	t := time.NewTicker(10 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-t.C:
			if st, err := os.Stat(boltPath); err == nil {
				metrics.RaftLogSizeBytes.Set(float64(st.Size()))
			}
		}
	}
}

func (b *Raft) Name() string { return "raft" }

// Publish aplica en el log si este nodo es leader; si no, reenvía al leader.
func (b *Raft) Publish(ctx context.Context, payload []byte) error {
	if b.IsLeader() {
		_, err := b.apply(ctx, payload)
		return err
	}
	return b.forward(ctx, b.LeaderID(), payload)
}

// ApplyLocal aplica sólo si este nodo es leader. Es lo que usa el endpoint de
// reenvío, para que una publicación no rebote entre followers.
func (b *Raft) ApplyLocal(ctx context.Context, payload []byte) error {
	if !b.IsLeader() {
		return fmt.Errorf("%w: %s is not the leader (leader=%q)", ErrNoLeader, b.nodeID, b.LeaderID())
	}
	_, err := b.apply(ctx, payload)
	return err
}

// apply envía el payload al log y espera commit, timeout o cancelación de ctx.
func (b *Raft) apply(ctx context.Context, data []byte) (uint64, error) {
	start := time.Now()
	fut := b.r.Apply(data, b.applyTimeout)

	done := make(chan struct{})
	var applyErr error
	var index uint64
	go func() {
		applyErr = fut.Error()
		index = fut.Index()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-done:
		metrics.RaftApplyLatency.Observe(float64(time.Since(start).Milliseconds()))
		if errors.Is(applyErr, raft.ErrRaftShutdown) {
			return 0, ErrClosed
		}
		if applyErr != nil {
			return 0, fmt.Errorf("bus: raft apply: %w", applyErr)
		}
		return index, nil
	}
}

func (b *Raft) forward(ctx context.Context, leaderID string, payload []byte) error {
	base := ""
	if leaderID != "" {
		base = strings.TrimRight(b.redirects[leaderID], "/")
	}
	if base == "" {
		metrics.RaftForwardedTotal.WithLabelValues("no_leader").Inc()
		return fmt.Errorf("%w: leader=%q", ErrNoLeader, leaderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+PublishPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("bus: forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(ForwardedHeader, b.nodeID)

	resp, err := b.client.Do(req)
	if err != nil {
		metrics.RaftForwardedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("bus: forward to %s: %w", leaderID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.RaftForwardedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("bus: forward to %s: status %d: %s", leaderID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	metrics.RaftForwardedTotal.WithLabelValues("ok").Inc()
	return nil
}

// Subscribe registra el handler del FSM. Raft admite un único suscriptor por nodo.
func (b *Raft) Subscribe(ctx context.Context, h Handler) error {
	if err := b.fsm.attach(ctx, h); err != nil {
		return err
	}
	defer b.fsm.detach()
	select {
	case <-ctx.Done():
	case <-b.stop:
	}
	return nil
}

func (b *Raft) IsLeader() bool {
	return b.r.State() == raft.Leader
}

// LeaderID devuelve el id del leader actual, o su dirección si el id no se conoce.
func (b *Raft) LeaderID() string {
	addr, id := b.r.LeaderWithID()
	if id != "" {
		return string(id)
	}
	return string(addr)
}

func (b *Raft) NodeID() string   { return b.nodeID }
func (b *Raft) RaftAddr() string { return string(b.addr) }

// Stats expone raft.Raft.Stats() para /healthz.
func (b *Raft) Stats() map[string]string {
	return b.r.Stats()
}

func (b *Raft) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		b.closeErr = b.r.Shutdown().Error()
		if err := b.store.Close(); err != nil && b.closeErr == nil {
			b.closeErr = err
		}
	})
	return b.closeErr
}

// ─── FSM ───

// eventFSM entrega cada entrada commiteada al handler. Las que llegan sin
// suscriptor quedan en pending y se entregan, en orden, al próximo attach.
// mu también serializa las entregas para que el flush no se cruce con Apply.
type eventFSM struct {
	mu          sync.Mutex
	ctx         context.Context
	h           Handler
	pending     [][]byte
	skipThrough uint64
	log         *zap.Logger
}

func (f *eventFSM) attach(ctx context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.h != nil {
		return errors.New("bus: raft already has a subscriber")
	}
	f.ctx, f.h = ctx, h
	if n := len(f.pending); n > 0 {
		f.log.Info("delivering entries committed before subscribe", logger.Count(n))
		for _, data := range f.pending {
			h(ctx, data)
		}
		f.pending = nil
	}
	return nil
}

func (f *eventFSM) detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctx, f.h = nil, nil
}

func (f *eventFSM) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h != nil
}

func (f *eventFSM) Apply(l *raft.Log) interface{} {
	if l == nil || l.Type != raft.LogCommand || len(l.Data) == 0 {
		return nil
	}
	if l.Index <= f.skipThrough {
		return nil
	}
	data := append([]byte(nil), l.Data...)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.h == nil {
		f.pending = append(f.pending, data)
		f.log.Debug("no subscriber yet, holding committed entry",
			logger.Int("index", int(l.Index)), logger.Count(len(f.pending)))
		return nil
	}
	f.h(f.ctx, data)
	return nil
}

// Snapshot no lleva estado: los eventos son transitorios y el catálogo se persiste aparte.
func (f *eventFSM) Snapshot() (raft.FSMSnapshot, error) { return emptySnapshot{}, nil }

func (f *eventFSM) Restore(rc io.ReadCloser) error { return rc.Close() }

type emptySnapshot struct{}

func (emptySnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (emptySnapshot) Release()                             {}

// ─── TLS ───

type tlsBundle struct {
	server *tls.Config
	client *tls.Config
}

func loadTLSBundle(c RaftTLS) (*tlsBundle, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, err
	}
	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.New("invalid CA file")
	}
	return &tlsBundle{
		server: &tls.Config{
			Certificates: []tls.Certificate{cert},
			ClientAuth:   tls.RequireAndVerifyClientCert,
			ClientCAs:    pool,
			MinVersion:   tls.VersionTLS12,
		},
		client: &tls.Config{
			Certificates: []tls.Certificate{cert},
			RootCAs:      pool,
			MinVersion:   tls.VersionTLS12,
			ServerName:   c.ServerName,
		},
	}, nil
}

type tlsStream struct {
	ln  net.Listener
	cfg *tls.Config
}

func (t *tlsStream) Dial(address raft.ServerAddress, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	return tls.DialWithDialer(d, "tcp", string(address), t.cfg)
}
func (t *tlsStream) Accept() (net.Conn, error) { return t.ln.Accept() }
func (t *tlsStream) Close() error              { return t.ln.Close() }
func (t *tlsStream) Addr() net.Addr            { return t.ln.Addr() }
