// Package logger provee un logger Zap singleton con scoping por contexto.
//
// # Design Decisions
//
//   - Singleton: una sola instancia global inicializada con Init(). Los
//     componentes del cluster reciben además un *zap.Logger explícito en sus
//     Options para que los tests puedan inyectar zap.NewNop().
//   - Context Scoping: cada evento aplicado puede tener su propio logger "scoped"
//     con campos del evento (event_id, origin, entity_id) sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Levels: debug, info, warn, error (configurable via GEOCLUSTER_LOG_LEVEL).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{
//	    Env:    cfg.App.Env,   // "dev" o "prod"
//	    Level:  cfg.Log.Level, // "debug", "info", "warn", "error"
//	    NodeID: cfg.Node.ID,
//	})
//	defer logger.Sync()
//
// En el consumer (con contexto):
//
//	log := logger.From(ctx)
//	log.Info("event applied", logger.EventID(env.ID), logger.Origin(env.Origin))
//
// Sin contexto (fallback a singleton):
//
//	logger.L().Info("node started")
package logger
