// Package router arma el árbol de rutas chi del nodo.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/LiuPacific/geoserver/internal/http/controllers"
	httperrors "github.com/LiuPacific/geoserver/internal/http/errors"
	mw "github.com/LiuPacific/geoserver/internal/http/middlewares"
)

// Deps contiene los controllers y el logger base.
// Catalog y Cluster pueden ser nil (nodo sólo-health).
type Deps struct {
	Logger  *zap.Logger
	Catalog *controllers.CatalogController
	Cluster *controllers.ClusterController
	Health  *controllers.HealthController

	// MetricsHandler sirve /metrics; nil usa promhttp.Handler().
	MetricsHandler http.Handler
}

// New construye el handler raíz.
func New(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(mw.WithRecover(), mw.WithLogger(log), mw.WithMetrics())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, req, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, req, httperrors.ErrMethodNotAllowed)
	})

	if d.Health != nil {
		r.Get("/healthz", d.Health.Health)
	}
	metricsHandler := d.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	if c := d.Catalog; c != nil {
		r.Route("/v1/catalog/{kind}", func(r chi.Router) {
			r.Get("/", c.List)
			r.Post("/", c.Create)
			r.Get("/{id}", c.Get)
			r.Put("/{id}", c.Update)
			r.Delete("/{id}", c.Delete)
		})
	}
	if c := d.Cluster; c != nil {
		r.Post("/v1/cluster/publish", c.Publish)
		r.Post("/v1/cluster/producer/{action}", c.Producer)
	}
	return r
}
