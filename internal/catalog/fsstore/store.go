// Package fsstore persiste el catálogo como un documento YAML por entidad,
// en <root>/<kind>/<id>.yaml. Es el Persister por defecto de memory.Catalog.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

// document es el formato en disco. El kind va como discriminador para poder
// decodificar la entidad sin depender del directorio.
type document struct {
	Kind   catalog.Kind `yaml:"kind"`
	Entity yaml.Node    `yaml:"entity"`
}

// Store es seguro para uso concurrente.
type Store struct {
	root string
	mu   sync.Mutex
}

// New crea el directorio raíz si no existe.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("fsstore: root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: mkdir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root devuelve el directorio raíz.
func (s *Store) Root() string { return s.root }

func (s *Store) path(kind catalog.Kind, id string) string {
	return filepath.Join(s.root, string(kind), url.PathEscape(id)+".yaml")
}

// Put escribe (o reemplaza) el documento de la entidad.
func (s *Store) Put(ctx context.Context, e catalog.Entity) error {
	if err := catalog.Validate(e); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var doc document
	doc.Kind = e.Kind()
	if err := doc.Entity.Encode(e); err != nil {
		return fmt.Errorf("fsstore: encode %s %s: %w", e.Kind(), e.GetID(), err)
	}
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("fsstore: marshal %s %s: %w", e.Kind(), e.GetID(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.path(e.Kind(), e.GetID()), data, 0o644); err != nil {
		return fmt.Errorf("fsstore: write %s %s: %w", e.Kind(), e.GetID(), err)
	}
	return nil
}

// Delete borra el documento. Un documento inexistente no es error.
func (s *Store) Delete(ctx context.Context, e catalog.Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", catalog.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path(e.Kind(), e.GetID()))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsstore: delete %s %s: %w", e.Kind(), e.GetID(), err)
	}
	return nil
}

// LoadAll lee todos los documentos. Workspaces primero, después services y layers;
// dentro de cada kind, por nombre de archivo.
func (s *Store) LoadAll(ctx context.Context) ([]catalog.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []catalog.Entity
	for _, kind := range catalog.Kinds() {
		dir := filepath.Join(s.root, string(kind))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fsstore: read %s: %w", dir, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".yaml" {
				continue
			}
			e, err := readDocument(filepath.Join(dir, name), kind)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	return out, nil
}

func readDocument(path string, want catalog.Kind) (catalog.Entity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fsstore: read %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("fsstore: parse %s: %w", path, err)
	}
	if doc.Kind != want {
		return nil, fmt.Errorf("fsstore: %s: kind %q stored under %q", path, doc.Kind, want)
	}
	e := catalog.New(doc.Kind)
	if e == nil {
		return nil, fmt.Errorf("fsstore: %s: unknown kind %q", path, doc.Kind)
	}
	if err := doc.Entity.Decode(e); err != nil {
		return nil, fmt.Errorf("fsstore: decode %s: %w", path, err)
	}
	if err := catalog.Validate(e); err != nil {
		return nil, fmt.Errorf("fsstore: %s: %w", path, err)
	}
	return e, nil
}
