package syncer

import (
	"context"
	"fmt"

	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

// Locate resuelve la entidad local que corresponde al source del evento.
//
// Las entidades se buscan por (workspace, name), pero el nombre pudo cambiar en el
// nodo remoto: si "name" está entre las propiedades cambiadas se busca por el
// valor viejo. Lo mismo con "workspace" para entidades movidas de workspace.
// Retorna (nil, nil) si no hay match; el caller decide si eso es un error.
func Locate(ctx context.Context, cat catalog.Catalog, ev *events.ChangeEvent) (catalog.Entity, error) {
	if cat == nil || ev == nil {
		return nil, fmt.Errorf("%w: nil catalog or event", ErrInvalidArgument)
	}
	src := ev.Source
	if src == nil {
		return nil, fmt.Errorf("%w: event without source", ErrInvalidArgument)
	}

	name := src.GetName()
	if old, ok := oldValue(ev, "name"); ok {
		name = old
	}
	workspace := src.GetWorkspace()
	if old, ok := oldValue(ev, "workspace"); ok {
		workspace = old
	}

	local, err := cat.Lookup(ctx, src.Kind(), workspace, name)
	if catalog.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s %q in workspace %q: %w", src.Kind(), name, workspace, err)
	}
	return local, nil
}

// oldValue devuelve el valor previo (como string) de una propiedad cambiada.
func oldValue(ev *events.ChangeEvent, prop string) (string, bool) {
	i := ev.IndexOf(prop)
	if i < 0 || i >= len(ev.OldValues) {
		return "", false
	}
	switch v := ev.OldValues[i].(type) {
	case nil:
		return "", true
	case string:
		return v, true
	default:
		return fmt.Sprint(v), true
	}
}
