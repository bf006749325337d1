package syncer

import (
	"errors"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

var (
	// ErrInvalidEvent indica un evento nil o malformado. No se reintenta.
	ErrInvalidEvent = errors.New("sync: invalid event")

	// ErrInvalidArgument indica argumentos nil pasados al locator/patcher.
	ErrInvalidArgument = errors.New("sync: invalid argument")

	// ErrEntityNotFound indica un MODIFIED sobre una entidad ausente localmente.
	// La decisión de redelivery/dead-letter es del caller.
	ErrEntityNotFound = errors.New("sync: entity not found")
)

// IsInvalidEvent verifica si el error es ErrInvalidEvent.
func IsInvalidEvent(err error) bool {
	return errors.Is(err, ErrInvalidEvent)
}

// IsEntityNotFound verifica si el error es ErrEntityNotFound.
func IsEntityNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound)
}

// IsDuplicate verifica si el error es un create duplicado reportado por el catálogo.
// Es la carrera aceptada entre dos CREATED concurrentes del mismo id.
func IsDuplicate(err error) bool {
	return catalog.IsConflict(err)
}
