package catalog

import "errors"

var (
	// ErrNotFound indica que la entidad no existe en el catálogo local.
	ErrNotFound = errors.New("catalog: not found")

	// ErrConflict indica un duplicado (mismo id, o mismo nombre en el mismo workspace).
	ErrConflict = errors.New("catalog: conflict")

	// ErrInvalidInput indica datos de entrada inválidos (kind desconocido, id vacío, etc).
	ErrInvalidInput = errors.New("catalog: invalid input")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict verifica si el error es ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsInvalidInput verifica si el error es ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
