// Package bus transporta envelopes de eventos entre nodos.
//
// Hay tres implementaciones: Local (in-process, tests y demos), Redis (pub/sub) y
// Raft (log replicado). Todas entregan también al nodo que publicó; el consumer
// descarta los eventos de origen propio.
package bus

import (
	"context"
	"errors"
)

// Handler recibe un payload tal como fue publicado. Debe ser rápido: los buses
// entregan en serie.
type Handler func(ctx context.Context, payload []byte)

// Bus es el contrato común.
type Bus interface {
	// Publish entrega payload a todos los suscriptores del cluster.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe bloquea entregando mensajes a h hasta que ctx termine o el bus se cierre.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
	Name() string
}

var (
	// ErrClosed se devuelve al operar sobre un bus cerrado.
	ErrClosed = errors.New("bus: closed")

	// ErrNoLeader indica que el bus raft no conoce leader ni redirect para reenviar.
	ErrNoLeader = errors.New("bus: no leader available")
)
