package bus

import (
	"context"
	"sync"
)

type localSub struct {
	ch   chan []byte
	gone chan struct{}
}

// Local es un hub in-process. Varios nodos pueden compartir la misma instancia:
// cada Subscribe es un suscriptor independiente.
type Local struct {
	mu     sync.RWMutex
	subs   map[int]*localSub
	next   int
	buffer int
	closed bool
	done   chan struct{}
}

var _ Bus = (*Local)(nil)

// NewLocal crea un hub. buffer es la capacidad por suscriptor (<=0 usa 256).
func NewLocal(buffer int) *Local {
	if buffer <= 0 {
		buffer = 256
	}
	return &Local{subs: make(map[int]*localSub), buffer: buffer, done: make(chan struct{})}
}

func (l *Local) Name() string { return "local" }

// Publish copia el payload a cada suscriptor. Bloquea si algún buffer está lleno.
func (l *Local) Publish(ctx context.Context, payload []byte) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*localSub, 0, len(l.subs))
	for _, s := range l.subs {
		subs = append(subs, s)
	}
	l.mu.RUnlock()

	for _, s := range subs {
		msg := append([]byte(nil), payload...)
		select {
		case s.ch <- msg:
		case <-s.gone:
		case <-l.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context, h Handler) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	id := l.next
	l.next++
	s := &localSub{ch: make(chan []byte, l.buffer), gone: make(chan struct{})}
	l.subs[id] = s
	l.mu.Unlock()

	defer func() {
		close(s.gone)
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.done:
			return nil
		case msg := <-s.ch:
			h(ctx, msg)
		}
	}
}

// Subscribers devuelve la cantidad de suscriptores activos.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}
