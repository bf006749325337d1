// Package events define el evento de cambio que viaja entre nodos y su envelope
// de transporte.
package events

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

// Type es el tipo de cambio.
type Type string

const (
	Created  Type = "CREATED"
	Modified Type = "MODIFIED"
	Removed  Type = "REMOVED"
)

// Valid indica si t es un tipo conocido.
func (t Type) Valid() bool {
	switch t {
	case Created, Modified, Removed:
		return true
	}
	return false
}

// ErrMalformed indica un evento que no respeta sus invariantes.
var ErrMalformed = errors.New("events: malformed event")

// ChangeEvent describe un create/modify/remove sobre una entidad.
//
// PropertyNames, OldValues y NewValues son paralelos. Para Created/Removed pueden
// estar vacíos (operación sobre la entidad completa). Source es el snapshot
// remoto; el receptor no debe retenerlo más allá de la aplicación del evento.
type ChangeEvent struct {
	Type          Type
	Source        catalog.Entity
	PropertyNames []string
	OldValues     []any
	NewValues     []any
}

// Validate chequea tipo, source y el largo de las listas paralelas.
func (e *ChangeEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrMalformed)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, e.Type)
	}
	if e.Source == nil {
		return fmt.Errorf("%w: %s without source", ErrMalformed, e.Type)
	}
	if len(e.PropertyNames) != len(e.OldValues) || len(e.PropertyNames) != len(e.NewValues) {
		return fmt.Errorf("%w: %d names, %d old values, %d new values",
			ErrMalformed, len(e.PropertyNames), len(e.OldValues), len(e.NewValues))
	}
	return nil
}

// IndexOf devuelve la posición de una propiedad en PropertyNames, o -1.
func (e *ChangeEvent) IndexOf(name string) int {
	for i, n := range e.PropertyNames {
		if n == name {
			return i
		}
	}
	return -1
}

// String resume el evento para logs.
func (e *ChangeEvent) String() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source == nil {
		return fmt.Sprintf("%s <no source>", e.Type)
	}
	return fmt.Sprintf("%s %s id=%s name=%s workspace=%q props=%v",
		e.Type, e.Source.Kind(), e.Source.GetID(), e.Source.GetName(), e.Source.GetWorkspace(), e.PropertyNames)
}

// NewCreated construye un evento CREATED sobre una copia de e.
func NewCreated(e catalog.Entity) *ChangeEvent {
	return &ChangeEvent{Type: Created, Source: e.Clone()}
}

// NewRemoved construye un evento REMOVED sobre una copia de e.
func NewRemoved(e catalog.Entity) *ChangeEvent {
	return &ChangeEvent{Type: Removed, Source: e.Clone()}
}

// NewModified construye un evento MODIFIED con el diff campo a campo entre old y
// updated, recorriendo la tabla de campos del kind en orden alfabético.
// Devuelve nil si no hay diferencias.
func NewModified(old, updated catalog.Entity) *ChangeEvent {
	ev := &ChangeEvent{Type: Modified, Source: updated.Clone()}
	for _, name := range catalog.FieldNames(updated.Kind()) {
		f, _ := catalog.LookupField(updated.Kind(), name)
		ov, nv := f.Get(old), f.Get(updated)
		if equalValues(ov, nv) {
			continue
		}
		ev.PropertyNames = append(ev.PropertyNames, name)
		ev.OldValues = append(ev.OldValues, ov)
		ev.NewValues = append(ev.NewValues, nv)
	}
	if len(ev.PropertyNames) == 0 {
		return nil
	}
	return ev
}

// equalValues trata nil y vacío como iguales para slices y mapas.
func equalValues(a, b any) bool {
	if isEmpty(a) && isEmpty(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []string:
		return len(x) == 0
	case map[string]string:
		return len(x) == 0
	}
	return false
}
