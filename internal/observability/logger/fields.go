package logger

import (
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS ESTÁNDAR - EVENTOS
// =================================================================================

// EventID crea un campo para el ID del envelope.
func EventID(v string) zap.Field {
	return zap.String("event_id", v)
}

// EventType crea un campo para el tipo de cambio (CREATED, MODIFIED, REMOVED).
func EventType(v string) zap.Field {
	return zap.String("event_type", v)
}

// Origin crea un campo para el nodo que emitió el evento.
func Origin(v string) zap.Field {
	return zap.String("origin", v)
}

// Properties crea un campo para las propiedades cambiadas.
func Properties(v []string) zap.Field {
	return zap.Strings("properties", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - CATÁLOGO
// =================================================================================

// EntityKind crea un campo para el tipo de entidad.
func EntityKind(v string) zap.Field {
	return zap.String("entity_kind", v)
}

// EntityID crea un campo para el ID de la entidad.
func EntityID(v string) zap.Field {
	return zap.String("entity_id", v)
}

// EntityName crea un campo para el nombre de la entidad.
func EntityName(v string) zap.Field {
	return zap.String("entity_name", v)
}

// Workspace crea un campo para el workspace ("" = global).
func Workspace(v string) zap.Field {
	return zap.String("workspace", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// NodeID crea un campo para el nodo local.
func NodeID(v string) zap.Field {
	return zap.String("node_id", v)
}

// Bus crea un campo para el transporte (local, redis, raft).
func Bus(v string) zap.Field {
	return zap.String("bus", v)
}

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (handler, engine, store).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// Duration crea un campo para una duración.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - HTTP
// =================================================================================

// Method crea un campo para el método HTTP.
func Method(v string) zap.Field {
	return zap.String("method", v)
}

// Path crea un campo para el path del request.
func Path(v string) zap.Field {
	return zap.String("path", v)
}

// Status crea un campo para el status code HTTP.
func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// =================================================================================
// CAMPOS ESTÁNDAR - DATOS
// =================================================================================

// Count crea un campo para un conteo.
func Count(v int) zap.Field {
	return zap.Int("count", v)
}

// Any crea un campo genérico para cualquier tipo.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}
