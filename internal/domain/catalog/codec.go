package catalog

import (
	"encoding/json"
	"fmt"
)

// Marshal serializa una entidad a JSON (sin el kind; el kind viaja aparte).
func Marshal(e Entity) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrInvalidInput)
	}
	return json.Marshal(e)
}

// Unmarshal construye una entidad del tipo indicado a partir de JSON.
func Unmarshal(kind Kind, data []byte) (Entity, error) {
	e := New(kind)
	if e == nil {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, kind)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", kind, err)
	}
	return e, nil
}

// Validate chequea los invariantes mínimos de identidad.
func Validate(e Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidInput)
	}
	if !e.Kind().Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, e.Kind())
	}
	if e.GetID() == "" {
		return fmt.Errorf("%w: %s without id", ErrInvalidInput, e.Kind())
	}
	if e.GetName() == "" {
		return fmt.Errorf("%w: %s %s without name", ErrInvalidInput, e.Kind(), e.GetID())
	}
	return nil
}
