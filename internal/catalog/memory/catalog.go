// Package memory implementa catalog.Catalog en memoria, con write-through
// opcional a un Persister (fsstore, pgstore).
//
// Guarda y devuelve copias: quien recibe una entidad puede mutarla libremente sin
// afectar el estado del catálogo hasta llamar Save.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

// Persister es el almacenamiento durable detrás del índice en memoria.
type Persister interface {
	Put(ctx context.Context, e catalog.Entity) error
	Delete(ctx context.Context, e catalog.Entity) error
	LoadAll(ctx context.Context) ([]catalog.Entity, error)
}

type nameKey struct {
	kind      catalog.Kind
	workspace string
	name      string
}

func keyOf(e catalog.Entity) nameKey {
	return nameKey{kind: e.Kind(), workspace: e.GetWorkspace(), name: e.GetName()}
}

// Catalog es seguro para uso concurrente.
type Catalog struct {
	mu     sync.RWMutex
	byID   map[catalog.Kind]map[string]catalog.Entity
	byName map[nameKey]string

	persister Persister

	lmu       sync.RWMutex
	listeners []catalog.Listener
}

var _ catalog.Catalog = (*Catalog)(nil)

// New crea un catálogo vacío. persister puede ser nil (sólo memoria).
func New(persister Persister) *Catalog {
	c := &Catalog{
		byID:      make(map[catalog.Kind]map[string]catalog.Entity),
		byName:    make(map[nameKey]string),
		persister: persister,
	}
	for _, k := range catalog.Kinds() {
		c.byID[k] = make(map[string]catalog.Entity)
	}
	return c
}

// AddListener registra un listener de mutaciones. Se invoca sincrónicamente,
// fuera del lock, después de cada mutación confirmada.
func (c *Catalog) AddListener(l catalog.Listener) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Load carga el contenido del persister sin notificar listeners.
// Devuelve la cantidad de entidades cargadas.
func (c *Catalog) Load(ctx context.Context) (int, error) {
	if c.persister == nil {
		return 0, nil
	}
	all, err := c.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range all {
		if err := catalog.Validate(e); err != nil {
			return 0, fmt.Errorf("load catalog: %w", err)
		}
		c.byID[e.Kind()][e.GetID()] = e.Clone()
		c.byName[keyOf(e)] = e.GetID()
	}
	return len(all), nil
}

func (c *Catalog) Lookup(ctx context.Context, kind catalog.Kind, workspace, name string) (catalog.Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byName[nameKey{kind: kind, workspace: workspace, name: name}]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return c.byID[kind][id].Clone(), nil
}

func (c *Catalog) Get(ctx context.Context, kind catalog.Kind, id string) (catalog.Entity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byID[kind][id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return e.Clone(), nil
}

// List devuelve las entidades del tipo ordenadas por (workspace, name).
func (c *Catalog) List(ctx context.Context, kind catalog.Kind) ([]catalog.Entity, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", catalog.ErrInvalidInput, kind)
	}
	c.mu.RLock()
	out := make([]catalog.Entity, 0, len(c.byID[kind]))
	for _, e := range c.byID[kind] {
		out = append(out, e.Clone())
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].GetWorkspace() != out[j].GetWorkspace() {
			return out[i].GetWorkspace() < out[j].GetWorkspace()
		}
		return out[i].GetName() < out[j].GetName()
	})
	return out, nil
}

func (c *Catalog) Add(ctx context.Context, e catalog.Entity) error {
	if err := catalog.Validate(e); err != nil {
		return err
	}
	stored := e.Clone()

	c.mu.Lock()
	if _, exists := c.byID[e.Kind()][e.GetID()]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s id %q already exists", catalog.ErrConflict, e.Kind(), e.GetID())
	}
	if _, taken := c.byName[keyOf(e)]; taken {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s %q already exists in workspace %q", catalog.ErrConflict, e.Kind(), e.GetName(), e.GetWorkspace())
	}
	if c.persister != nil {
		if err := c.persister.Put(ctx, stored); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("persist %s %s: %w", e.Kind(), e.GetID(), err)
		}
	}
	c.byID[e.Kind()][e.GetID()] = stored
	c.byName[keyOf(stored)] = stored.GetID()
	c.mu.Unlock()

	c.notify(func(l catalog.Listener) { l.EntityAdded(ctx, stored.Clone()) })
	return nil
}

func (c *Catalog) Save(ctx context.Context, e catalog.Entity) error {
	if err := catalog.Validate(e); err != nil {
		return err
	}
	stored := e.Clone()

	c.mu.Lock()
	old, exists := c.byID[e.Kind()][e.GetID()]
	if !exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s id %q", catalog.ErrNotFound, e.Kind(), e.GetID())
	}
	newKey := keyOf(stored)
	if owner, taken := c.byName[newKey]; taken && owner != stored.GetID() {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s %q already exists in workspace %q", catalog.ErrConflict, e.Kind(), e.GetName(), e.GetWorkspace())
	}
	if c.persister != nil {
		if err := c.persister.Put(ctx, stored); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("persist %s %s: %w", e.Kind(), e.GetID(), err)
		}
	}
	delete(c.byName, keyOf(old))
	c.byID[e.Kind()][e.GetID()] = stored
	c.byName[newKey] = stored.GetID()
	c.mu.Unlock()

	c.notify(func(l catalog.Listener) { l.EntityModified(ctx, old.Clone(), stored.Clone()) })
	return nil
}

// Remove elimina por id. Una entidad ausente es un no-op.
func (c *Catalog) Remove(ctx context.Context, e catalog.Entity) error {
	if e == nil {
		return fmt.Errorf("%w: nil entity", catalog.ErrInvalidInput)
	}

	c.mu.Lock()
	cur, exists := c.byID[e.Kind()][e.GetID()]
	if !exists {
		c.mu.Unlock()
		return nil
	}
	if c.persister != nil {
		if err := c.persister.Delete(ctx, cur); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("persist delete %s %s: %w", e.Kind(), e.GetID(), err)
		}
	}
	delete(c.byID[e.Kind()], e.GetID())
	delete(c.byName, keyOf(cur))
	c.mu.Unlock()

	c.notify(func(l catalog.Listener) { l.EntityRemoved(ctx, cur.Clone()) })
	return nil
}

// Count devuelve la cantidad de entidades por tipo.
func (c *Catalog) Count() map[catalog.Kind]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[catalog.Kind]int, len(c.byID))
	for k, m := range c.byID {
		out[k] = len(m)
	}
	return out
}

func (c *Catalog) notify(fn func(catalog.Listener)) {
	c.lmu.RLock()
	ls := make([]catalog.Listener, len(c.listeners))
	copy(ls, c.listeners)
	c.lmu.RUnlock()
	for _, l := range ls {
		fn(l)
	}
}
