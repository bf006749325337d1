// Package catalog define el modelo de configuración que se sincroniza entre nodos
// (workspaces, services, layers) y el contrato del catálogo local.
//
// El catálogo es la fuente autoritativa en cada nodo. Este paquete NO implementa
// almacenamiento: ver internal/catalog para la implementación en memoria y los
// persisters (fs, postgres).
package catalog

// Kind identifica el tipo concreto de una entidad.
type Kind string

const (
	KindWorkspace Kind = "workspace"
	KindService   Kind = "service"
	KindLayer     Kind = "layer"
)

// Kinds lista todos los tipos soportados, en orden estable.
func Kinds() []Kind {
	return []Kind{KindWorkspace, KindService, KindLayer}
}

// Valid indica si k es un tipo conocido.
func (k Kind) Valid() bool {
	switch k {
	case KindWorkspace, KindService, KindLayer:
		return true
	}
	return false
}

// Entity es un objeto de configuración con nombre, opcionalmente acotado a un workspace.
//
// Identidad: GetID() es estable ante renames; GetName() es mutable.
// GetWorkspace() == "" significa entidad global.
type Entity interface {
	Kind() Kind
	GetID() string
	GetName() string
	GetWorkspace() string

	// Bind asocia la entidad al nodo local (el snapshot remoto trae el nodo de origen).
	Bind(node string)
	BoundNode() string

	// Clone devuelve una copia profunda.
	Clone() Entity
}

// ─── Workspace ───

// WorkspaceInfo agrupa services y layers. Siempre es global.
type WorkspaceInfo struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Isolated bool              `json:"isolated,omitempty" yaml:"isolated,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	node string
}

func (w *WorkspaceInfo) Kind() Kind           { return KindWorkspace }
func (w *WorkspaceInfo) GetID() string        { return w.ID }
func (w *WorkspaceInfo) GetName() string      { return w.Name }
func (w *WorkspaceInfo) GetWorkspace() string { return "" }
func (w *WorkspaceInfo) Bind(node string)     { w.node = node }
func (w *WorkspaceInfo) BoundNode() string    { return w.node }

func (w *WorkspaceInfo) Clone() Entity {
	c := *w
	c.Metadata = cloneMap(w.Metadata)
	return &c
}

// ─── Service ───

// ServiceInfo describe un servicio OGC (WMS, WFS, ...). Workspace vacío => servicio global.
type ServiceInfo struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Workspace      string            `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Title          string            `json:"title,omitempty" yaml:"title,omitempty"`
	Abstract       string            `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	Maintainer     string            `json:"maintainer,omitempty" yaml:"maintainer,omitempty"`
	OnlineResource string            `json:"onlineResource,omitempty" yaml:"online_resource,omitempty"`
	Keywords       []string          `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Versions       []string          `json:"versions,omitempty" yaml:"versions,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	node string
}

func (s *ServiceInfo) Kind() Kind           { return KindService }
func (s *ServiceInfo) GetID() string        { return s.ID }
func (s *ServiceInfo) GetName() string      { return s.Name }
func (s *ServiceInfo) GetWorkspace() string { return s.Workspace }
func (s *ServiceInfo) Bind(node string)     { s.node = node }
func (s *ServiceInfo) BoundNode() string    { return s.node }

func (s *ServiceInfo) Clone() Entity {
	c := *s
	c.Keywords = cloneSlice(s.Keywords)
	c.Versions = cloneSlice(s.Versions)
	c.Metadata = cloneMap(s.Metadata)
	return &c
}

// ─── Layer ───

// LayerInfo describe una capa publicada.
type LayerInfo struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Workspace    string   `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	Title        string   `json:"title,omitempty" yaml:"title,omitempty"`
	Abstract     string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Enabled      bool     `json:"enabled" yaml:"enabled"`
	Queryable    bool     `json:"queryable" yaml:"queryable"`
	DefaultStyle string   `json:"defaultStyle,omitempty" yaml:"default_style,omitempty"`
	Styles       []string `json:"styles,omitempty" yaml:"styles,omitempty"`
	Keywords     []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	MaxFeatures  int      `json:"maxFeatures,omitempty" yaml:"max_features,omitempty"`

	node string
}

func (l *LayerInfo) Kind() Kind           { return KindLayer }
func (l *LayerInfo) GetID() string        { return l.ID }
func (l *LayerInfo) GetName() string      { return l.Name }
func (l *LayerInfo) GetWorkspace() string { return l.Workspace }
func (l *LayerInfo) Bind(node string)     { l.node = node }
func (l *LayerInfo) BoundNode() string    { return l.node }

func (l *LayerInfo) Clone() Entity {
	c := *l
	c.Styles = cloneSlice(l.Styles)
	c.Keywords = cloneSlice(l.Keywords)
	return &c
}

// New devuelve una entidad vacía del tipo indicado, o nil si el tipo no existe.
func New(kind Kind) Entity {
	switch kind {
	case KindWorkspace:
		return &WorkspaceInfo{}
	case KindService:
		return &ServiceInfo{}
	case KindLayer:
		return &LayerInfo{}
	}
	return nil
}

func cloneSlice(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
