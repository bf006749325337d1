// Package controllers contiene los handlers HTTP del nodo: catálogo, cluster y health.
package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	httperrors "github.com/LiuPacific/geoserver/internal/http/errors"
	"github.com/LiuPacific/geoserver/internal/http/helpers"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// CatalogController expone CRUD sobre el catálogo local. Las mutaciones pasan
// por el catálogo, así que el producer las publica al cluster.
type CatalogController struct {
	cat catalog.Catalog
}

func NewCatalogController(cat catalog.Catalog) *CatalogController {
	return &CatalogController{cat: cat}
}

// List handles GET /v1/catalog/{kind}.
func (c *CatalogController) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	items, err := c.cat.List(r.Context(), kind)
	if err != nil {
		httperrors.WriteError(w, r, mapCatalogError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"kind": kind, "items": items})
}

// Get handles GET /v1/catalog/{kind}/{id}.
func (c *CatalogController) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	e, err := c.cat.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, r, mapCatalogError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, e)
}

// Create handles POST /v1/catalog/{kind}. Sin id en el body se genera uno.
func (c *CatalogController) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	e, ok := decodeEntity(w, r, kind)
	if !ok {
		return
	}
	if e.GetID() == "" {
		setID(e, uuid.NewString())
	}
	if err := c.cat.Add(r.Context(), e); err != nil {
		httperrors.WriteError(w, r, mapCatalogError(err))
		return
	}
	logger.From(r.Context()).Info("catalog entity created",
		logger.Layer("controller"), logger.EntityKind(string(kind)), logger.EntityID(e.GetID()), logger.EntityName(e.GetName()))
	helpers.WriteJSON(w, http.StatusCreated, e)
}

// Update handles PUT /v1/catalog/{kind}/{id}. El id del path manda.
func (c *CatalogController) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	e, ok := decodeEntity(w, r, kind)
	if !ok {
		return
	}
	switch e.GetID() {
	case "":
		setID(e, id)
	case id:
	default:
		httperrors.WriteError(w, r, httperrors.ErrBadRequest.WithDetail("id in body does not match path"))
		return
	}
	if err := c.cat.Save(r.Context(), e); err != nil {
		httperrors.WriteError(w, r, mapCatalogError(err))
		return
	}
	helpers.WriteJSON(w, http.StatusOK, e)
}

// Delete handles DELETE /v1/catalog/{kind}/{id}.
func (c *CatalogController) Delete(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindParam(w, r)
	if !ok {
		return
	}
	e, err := c.cat.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, r, mapCatalogError(err))
		return
	}
	if err := c.cat.Remove(r.Context(), e); err != nil {
		httperrors.WriteError(w, r, mapCatalogError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func kindParam(w http.ResponseWriter, r *http.Request) (catalog.Kind, bool) {
	kind := catalog.Kind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		httperrors.WriteError(w, r, httperrors.ErrInvalidParameter.WithDetail("unknown kind "+string(kind)))
		return "", false
	}
	return kind, true
}

func decodeEntity(w http.ResponseWriter, r *http.Request, kind catalog.Kind) (catalog.Entity, bool) {
	body, err := helpers.ReadBody(w, r, true)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return nil, false
	}
	e, err := catalog.Unmarshal(kind, body)
	if err != nil {
		httperrors.WriteError(w, r, httperrors.ErrInvalidJSON.WithCause(err))
		return nil, false
	}
	return e, true
}

func setID(e catalog.Entity, id string) {
	switch v := e.(type) {
	case *catalog.WorkspaceInfo:
		v.ID = id
	case *catalog.ServiceInfo:
		v.ID = id
	case *catalog.LayerInfo:
		v.ID = id
	}
}

func mapCatalogError(err error) error {
	switch {
	case catalog.IsNotFound(err):
		return httperrors.ErrNotFound.WithCause(err)
	case catalog.IsConflict(err):
		return httperrors.ErrAlreadyExists.WithDetail(err.Error())
	case catalog.IsInvalidInput(err):
		return httperrors.ErrBadRequest.WithDetail(err.Error())
	default:
		return httperrors.ErrInternalServerError.WithCause(err)
	}
}
