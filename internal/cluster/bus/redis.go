package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configura el bus sobre pub/sub de Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// Redis publica cada envelope en un canal. Pub/sub no persiste: un nodo caído
// pierde los eventos emitidos mientras tanto.
type Redis struct {
	client  *redis.Client
	channel string
}

var _ Bus = (*Redis)(nil)

// NewRedis conecta y verifica con PING.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.Channel == "" {
		cfg.Channel = "geocluster:catalog"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("bus: redis ping failed: %w", err)
	}
	return &Redis{client: rdb, channel: cfg.Channel}, nil
}

func (r *Redis) Name() string { return "redis" }

// Channel devuelve el canal configurado.
func (r *Redis) Channel() string { return r.channel }

func (r *Redis) Publish(ctx context.Context, payload []byte) error {
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("bus: redis publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, h Handler) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	// Receive confirma la suscripción antes de empezar a entregar.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("bus: redis subscribe %s: %w", r.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			h(ctx, []byte(msg.Payload))
		}
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
