package catalog

import "context"

// Catalog es el contrato del almacén autoritativo local.
// Las implementaciones deben ser seguras para uso concurrente.
type Catalog interface {
	// Lookup busca por (workspace, name). workspace vacío => búsqueda global.
	// Retorna ErrNotFound si no existe.
	Lookup(ctx context.Context, kind Kind, workspace, name string) (Entity, error)

	// Get busca por id. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, kind Kind, id string) (Entity, error)

	// List lista las entidades de un tipo.
	List(ctx context.Context, kind Kind) ([]Entity, error)

	// Add agrega una entidad nueva. Retorna ErrConflict si el id o el nombre ya existen.
	Add(ctx context.Context, e Entity) error

	// Save persiste una entidad existente (por id). Retorna ErrNotFound si no existe.
	Save(ctx context.Context, e Entity) error

	// Remove elimina una entidad. Idempotente: remover una ausente no es error.
	Remove(ctx context.Context, e Entity) error
}

// Listener recibe notificaciones de mutaciones locales ya confirmadas.
// Lo usa el producer para emitir eventos al bus.
type Listener interface {
	EntityAdded(ctx context.Context, e Entity)
	EntityModified(ctx context.Context, old, updated Entity)
	EntityRemoved(ctx context.Context, e Entity)
}
