package syncer

import (
	"fmt"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

// PatchResult detalla qué hizo ApplyFields con cada propiedad.
type PatchResult struct {
	// Applied son los campos escritos en el target.
	Applied []string
	// Skipped son nombres sin contraparte local (versión de schema distinta).
	Skipped []string
	// Rejected son campos conocidos cuyo valor no se pudo convertir.
	Rejected []string
}

// Clean indica que se aplicaron todos los campos.
func (r PatchResult) Clean() bool {
	return len(r.Skipped) == 0 && len(r.Rejected) == 0
}

// ApplyFields escribe newValues[i] en la propiedad names[i] de target, usando la
// tabla de campos del kind. Los campos sin setter y los valores no convertibles se
// saltean sin abortar el resto: nodos con schemas levemente distintos deben poder
// convivir. oldValues no se consulta acá (lo usa Locate para detectar renames).
func ApplyFields(target catalog.Entity, names []string, oldValues, newValues []any) (PatchResult, error) {
	var res PatchResult
	if target == nil {
		return res, fmt.Errorf("%w: nil target", ErrInvalidArgument)
	}
	if len(names) != len(newValues) {
		return res, fmt.Errorf("%w: %d names vs %d new values", ErrInvalidEvent, len(names), len(newValues))
	}

	for i, name := range names {
		f, ok := catalog.LookupField(target.Kind(), name)
		if !ok {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		if err := f.Set(target, newValues[i]); err != nil {
			res.Rejected = append(res.Rejected, name)
			continue
		}
		res.Applied = append(res.Applied, name)
	}
	return res, nil
}

// Localize re-asocia la entidad al nodo local antes de persistirla.
func Localize(target catalog.Entity, node string) {
	if target != nil {
		target.Bind(node)
	}
}
