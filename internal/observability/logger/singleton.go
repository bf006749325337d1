package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	globalOnce sync.Once
	global     *zap.Logger
)

// Init construye el logger global del proceso. Sólo cuenta la primera llamada;
// serve la hace antes de armar el nodo.
func Init(cfg Config) {
	globalOnce.Do(func() { global = build(cfg) })
}

// L devuelve el logger global. Sin Init previo queda en modo dev, nivel info.
func L() *zap.Logger {
	Init(Config{Env: "dev", Level: "info"})
	return global
}

// Named es L().Named(name).
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync vacía los buffers del logger global, si fue construido.
func Sync() error {
	if global == nil {
		return nil
	}
	return global.Sync()
}
