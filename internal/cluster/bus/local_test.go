package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector junta payloads recibidos por un suscriptor.
type collector struct {
	mu   sync.Mutex
	msgs []string
	got  chan struct{}
}

func newCollector() *collector { return &collector{got: make(chan struct{}, 64)} }

func (c *collector) handle(_ context.Context, p []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, string(p))
	c.mu.Unlock()
	c.got <- struct{}{}
}

func (c *collector) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting message %d/%d", i+1, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func waitSubscribers(t *testing.T, l *Local, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return l.Subscribers() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestLocal_FanOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLocal(0)
	a, b := newCollector(), newCollector()
	go func() { _ = l.Subscribe(ctx, a.handle) }()
	go func() { _ = l.Subscribe(ctx, b.handle) }()
	waitSubscribers(t, l, 2)

	require.NoError(t, l.Publish(ctx, []byte("one")))
	require.NoError(t, l.Publish(ctx, []byte("two")))

	assert.Equal(t, []string{"one", "two"}, a.wait(t, 2))
	assert.Equal(t, []string{"one", "two"}, b.wait(t, 2))
}

func TestLocal_PayloadIsCopied(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLocal(1)
	c := newCollector()
	go func() { _ = l.Subscribe(ctx, c.handle) }()
	waitSubscribers(t, l, 1)

	buf := []byte("abc")
	require.NoError(t, l.Publish(ctx, buf))
	buf[0] = 'x'
	assert.Equal(t, []string{"abc"}, c.wait(t, 1))
}

func TestLocal_UnsubscribeOnCancel(t *testing.T) {
	l := NewLocal(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Subscribe(ctx, func(context.Context, []byte) {}) }()
	waitSubscribers(t, l, 1)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, l.Subscribers())
	assert.NoError(t, l.Publish(context.Background(), []byte("nobody listens")))
}

func TestLocal_Closed(t *testing.T) {
	l := NewLocal(0)
	done := make(chan error, 1)
	go func() { done <- l.Subscribe(context.Background(), func(context.Context, []byte) {}) }()
	waitSubscribers(t, l, 1)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())
	require.NoError(t, <-done)
	assert.ErrorIs(t, l.Publish(context.Background(), []byte("x")), ErrClosed)
	assert.ErrorIs(t, l.Subscribe(context.Background(), nil), ErrClosed)
}
