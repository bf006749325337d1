package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/syncer"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// fakeEngine registra los eventos y devuelve los errores encolados en orden.
type fakeEngine struct {
	mu    sync.Mutex
	seen  []*events.ChangeEvent
	errs  []error
	block chan struct{}
	hook  func(ctx context.Context)
}

func (f *fakeEngine) Synchronize(ctx context.Context, ev *events.ChangeEvent) (bool, error) {
	if f.block != nil {
		<-f.block
	}
	if f.hook != nil {
		f.hook(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, ev)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err == nil, err
	}
	return true, nil
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

type harness struct {
	bus    *bus.Local
	codec  *events.Codec
	engine *fakeEngine
	c      *Consumer
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, engine *fakeEngine, opts Options) *harness {
	t.Helper()
	h := &harness{bus: bus.NewLocal(0), codec: events.NewCodec(""), engine: engine, done: make(chan error, 1)}
	opts.Bus, opts.Codec, opts.Engine = h.bus, h.codec, engine
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NodeID == "" {
		opts.NodeID = "node-b"
	}
	c, err := New(opts)
	require.NoError(t, err)
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- c.Run(ctx) }()
	require.Eventually(t, func() bool { return h.bus.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *harness) publish(t *testing.T, origin string, ev *events.ChangeEvent) []byte {
	t.Helper()
	_, data, err := h.codec.Encode(origin, ev)
	require.NoError(t, err)
	require.NoError(t, h.bus.Publish(context.Background(), data))
	return data
}

func (h *harness) waitStats(t *testing.T, cond func(Stats) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.c.Stats()) }, 2*time.Second, 5*time.Millisecond,
		"stats: %+v", h.c.Stats())
}

func workspace(id string) *events.ChangeEvent {
	return events.NewCreated(&catalog.WorkspaceInfo{ID: id, Name: "ws-" + id})
}

func TestConsumer_AppliesRemoteEvents(t *testing.T) {
	h := start(t, &fakeEngine{}, Options{Workers: 2})
	for i := 0; i < 10; i++ {
		h.publish(t, "node-a", workspace(fmt.Sprint(i)))
	}
	h.waitStats(t, func(s Stats) bool { return s.Applied == 10 })
	assert.Equal(t, 10, h.engine.calls())
}

func TestConsumer_DropsOwnOrigin(t *testing.T) {
	h := start(t, &fakeEngine{}, Options{NodeID: "node-a"})
	h.publish(t, "node-a", workspace("w1"))
	h.waitStats(t, func(s Stats) bool { return s.Dropped == 1 })
	assert.Zero(t, h.engine.calls())
}

func TestConsumer_DropsDuplicateDelivery(t *testing.T) {
	h := start(t, &fakeEngine{}, Options{Workers: 1})
	data := h.publish(t, "node-a", workspace("w1"))
	require.NoError(t, h.bus.Publish(context.Background(), data))

	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 && s.Dropped == 1 })
	assert.Equal(t, 1, h.engine.calls())
}

func TestConsumer_FailureAllowsRedelivery(t *testing.T) {
	engine := &fakeEngine{errs: []error{errors.New("disk full"), nil}}
	h := start(t, engine, Options{Workers: 1})

	data := h.publish(t, "node-a", workspace("w1"))
	h.waitStats(t, func(s Stats) bool { return s.Failed == 1 })

	require.NoError(t, h.bus.Publish(context.Background(), data))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })
	assert.Equal(t, 2, engine.calls())
}

func TestConsumer_ConflictCountsAsApplied(t *testing.T) {
	engine := &fakeEngine{errs: []error{fmt.Errorf("add service svc1: %w", catalog.ErrConflict)}}
	h := start(t, engine, Options{})
	h.publish(t, "node-a", events.NewCreated(&catalog.ServiceInfo{ID: "svc1", Name: "WMS"}))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 && s.Failed == 0 })
}

func TestConsumer_ConflictOnModifiedFails(t *testing.T) {
	engine := &fakeEngine{errs: []error{fmt.Errorf("save service svc1: %w", catalog.ErrConflict), nil}}
	h := start(t, engine, Options{Workers: 1})
	old := &catalog.ServiceInfo{ID: "svc1", Name: "WMS"}
	data := h.publish(t, "node-a", events.NewModified(old, &catalog.ServiceInfo{ID: "svc1", Name: "WFS"}))
	h.waitStats(t, func(s Stats) bool { return s.Failed == 1 })

	// el dedup fue liberado: la reentrega se vuelve a aplicar.
	require.NoError(t, h.bus.Publish(context.Background(), data))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })
	assert.Zero(t, h.c.Stats().Dropped)
}

func TestConsumer_InvalidEventKeepsDedup(t *testing.T) {
	engine := &fakeEngine{errs: []error{fmt.Errorf("%w: unknown type", syncer.ErrInvalidEvent)}}
	h := start(t, engine, Options{Workers: 1})
	data := h.publish(t, "node-a", workspace("w1"))
	h.waitStats(t, func(s Stats) bool { return s.Failed == 1 })

	require.NoError(t, h.bus.Publish(context.Background(), data))
	h.waitStats(t, func(s Stats) bool { return s.Dropped == 1 })
	assert.Equal(t, 1, engine.calls())
	assert.Zero(t, h.c.Stats().Applied)
}

func TestConsumer_EngineLogsWithEnvelope(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	engine := &fakeEngine{hook: func(ctx context.Context) {
		logger.From(ctx).Info("applying")
	}}
	h := start(t, engine, Options{Logger: zap.New(core)})
	env, data, err := h.codec.Encode("node-a", workspace("w1"))
	require.NoError(t, err)
	require.NoError(t, h.bus.Publish(context.Background(), data))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })

	entries := logs.FilterMessage("applying").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, env.ID, fields["event_id"])
	assert.Equal(t, "node-a", fields["origin"])
}

func TestConsumer_RunOnce(t *testing.T) {
	h := start(t, &fakeEngine{}, Options{})
	assert.ErrorIs(t, h.c.Run(context.Background()), ErrAlreadyRunning)

	// la primera ejecución sigue atendiendo.
	h.publish(t, "node-a", workspace("w1"))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })
}

func TestConsumer_DropsUndecodable(t *testing.T) {
	h := start(t, &fakeEngine{}, Options{})
	require.NoError(t, h.bus.Publish(context.Background(), []byte("garbage")))
	h.waitStats(t, func(s Stats) bool { return s.Dropped == 1 && s.Received == 1 })
	assert.Zero(t, h.engine.calls())
}

func TestConsumer_QueueFullDrops(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	h := start(t, engine, Options{Workers: 1, QueueSize: 1, EnqueueTimeout: 20 * time.Millisecond})

	// uno bloqueado en el worker, uno en la cola, el tercero no entra.
	for i := 0; i < 3; i++ {
		h.publish(t, "node-a", workspace(fmt.Sprint(i)))
	}
	h.waitStats(t, func(s Stats) bool { return s.Dropped == 1 })
	close(engine.block)
	h.waitStats(t, func(s Stats) bool { return s.Applied == 2 })
}

func TestConsumer_StopsWhenBusCloses(t *testing.T) {
	h := start(t, &fakeEngine{}, Options{})
	require.NoError(t, h.bus.Close())
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- nil
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop after bus close")
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Engine: &fakeEngine{}})
	assert.Error(t, err)
	_, err = New(Options{Bus: bus.NewLocal(0)})
	assert.Error(t, err)
}
