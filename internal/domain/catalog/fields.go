package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ErrFieldType indica que el valor no es convertible al tipo del campo.
var ErrFieldType = errors.New("catalog: field type mismatch")

// Field es el acceso tipado a una propiedad con nombre de una entidad.
// Reemplaza el acceso reflectivo: cada tipo declara explícitamente qué campos
// pueden leerse (diff del producer) y escribirse (patch del consumer).
type Field struct {
	Get func(Entity) any
	Set func(Entity, any) error
}

// Los nombres coinciden con los tags JSON, que es lo que viaja en los eventos.
// "id" no figura a propósito: la identidad no se parchea.
var fieldTables = map[Kind]map[string]Field{
	KindWorkspace: {
		"name":     stringField(func(w *WorkspaceInfo) *string { return &w.Name }),
		"isolated": boolField(func(w *WorkspaceInfo) *bool { return &w.Isolated }),
		"metadata": mapField(func(w *WorkspaceInfo) *map[string]string { return &w.Metadata }),
	},
	KindService: {
		"name":           stringField(func(s *ServiceInfo) *string { return &s.Name }),
		"workspace":      stringField(func(s *ServiceInfo) *string { return &s.Workspace }),
		"title":          stringField(func(s *ServiceInfo) *string { return &s.Title }),
		"abstract":       stringField(func(s *ServiceInfo) *string { return &s.Abstract }),
		"enabled":        boolField(func(s *ServiceInfo) *bool { return &s.Enabled }),
		"maintainer":     stringField(func(s *ServiceInfo) *string { return &s.Maintainer }),
		"onlineResource": stringField(func(s *ServiceInfo) *string { return &s.OnlineResource }),
		"keywords":       sliceField(func(s *ServiceInfo) *[]string { return &s.Keywords }),
		"versions":       sliceField(func(s *ServiceInfo) *[]string { return &s.Versions }),
		"metadata":       mapField(func(s *ServiceInfo) *map[string]string { return &s.Metadata }),
	},
	KindLayer: {
		"name":         stringField(func(l *LayerInfo) *string { return &l.Name }),
		"workspace":    stringField(func(l *LayerInfo) *string { return &l.Workspace }),
		"title":        stringField(func(l *LayerInfo) *string { return &l.Title }),
		"abstract":     stringField(func(l *LayerInfo) *string { return &l.Abstract }),
		"enabled":      boolField(func(l *LayerInfo) *bool { return &l.Enabled }),
		"queryable":    boolField(func(l *LayerInfo) *bool { return &l.Queryable }),
		"defaultStyle": stringField(func(l *LayerInfo) *string { return &l.DefaultStyle }),
		"styles":       sliceField(func(l *LayerInfo) *[]string { return &l.Styles }),
		"keywords":     sliceField(func(l *LayerInfo) *[]string { return &l.Keywords }),
		"maxFeatures":  intField(func(l *LayerInfo) *int { return &l.MaxFeatures }),
	},
}

// Fields devuelve la tabla de campos del tipo. El mapa es compartido: no modificar.
func Fields(kind Kind) map[string]Field {
	return fieldTables[kind]
}

// LookupField busca un campo por nombre.
func LookupField(kind Kind, name string) (Field, bool) {
	f, ok := fieldTables[kind][name]
	return f, ok
}

// FieldNames devuelve los nombres de campo del tipo en orden alfabético.
func FieldNames(kind Kind) []string {
	t := fieldTables[kind]
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ─── builders ───

func stringField[T Entity](ptr func(T) *string) Field {
	return Field{
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			return *ptr(t)
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("%w: entity %T", ErrFieldType, e)
			}
			s, err := toString(v)
			if err != nil {
				return err
			}
			*ptr(t) = s
			return nil
		},
	}
}

func boolField[T Entity](ptr func(T) *bool) Field {
	return Field{
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			return *ptr(t)
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("%w: entity %T", ErrFieldType, e)
			}
			b, err := toBool(v)
			if err != nil {
				return err
			}
			*ptr(t) = b
			return nil
		},
	}
}

func intField[T Entity](ptr func(T) *int) Field {
	return Field{
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			return *ptr(t)
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("%w: entity %T", ErrFieldType, e)
			}
			n, err := toInt(v)
			if err != nil {
				return err
			}
			*ptr(t) = n
			return nil
		},
	}
}

func sliceField[T Entity](ptr func(T) *[]string) Field {
	return Field{
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			return cloneSlice(*ptr(t))
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("%w: entity %T", ErrFieldType, e)
			}
			s, err := toStrings(v)
			if err != nil {
				return err
			}
			*ptr(t) = s
			return nil
		},
	}
}

func mapField[T Entity](ptr func(T) *map[string]string) Field {
	return Field{
		Get: func(e Entity) any {
			t, ok := e.(T)
			if !ok {
				return nil
			}
			return cloneMap(*ptr(t))
		},
		Set: func(e Entity, v any) error {
			t, ok := e.(T)
			if !ok {
				return fmt.Errorf("%w: entity %T", ErrFieldType, e)
			}
			m, err := toStringMap(v)
			if err != nil {
				return err
			}
			*ptr(t) = m
			return nil
		},
	}
}

// ─── conversores ───
// Aceptan tanto valores Go nativos como lo que produce encoding/json al
// decodificar en interface{} (float64, []any, map[string]any).

func toString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	}
	return "", fmt.Errorf("%w: want string, got %T", ErrFieldType, v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("%w: want bool, got %q", ErrFieldType, x)
		}
		return b, nil
	}
	return false, fmt.Errorf("%w: want bool, got %T", ErrFieldType, v)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case int:
		return x, nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("%w: want integer, got %v", ErrFieldType, x)
		}
		return int(x), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("%w: want integer, got %q", ErrFieldType, x.String())
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%w: want integer, got %T", ErrFieldType, v)
}

func toStrings(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return cloneSlice(x), nil
	case []any:
		out := make([]string, 0, len(x))
		for _, it := range x {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("%w: want []string, found %T element", ErrFieldType, it)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: want []string, got %T", ErrFieldType, v)
}

func toStringMap(v any) (map[string]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		return cloneMap(x), nil
	case map[string]any:
		out := make(map[string]string, len(x))
		for k, it := range x {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("%w: want map[string]string, key %q is %T", ErrFieldType, k, it)
			}
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: want map[string]string, got %T", ErrFieldType, v)
}
