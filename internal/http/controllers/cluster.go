package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	httperrors "github.com/LiuPacific/geoserver/internal/http/errors"
	"github.com/LiuPacific/geoserver/internal/http/helpers"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// localApplier lo implementa el bus raft: aplica sin reenviar.
type localApplier interface {
	ApplyLocal(ctx context.Context, payload []byte) error
}

// ClusterController recibe publicaciones reenviadas y controla el producer.
type ClusterController struct {
	bus   bus.Bus
	codec *events.Codec
	guard *guard.Toggle
}

func NewClusterController(b bus.Bus, codec *events.Codec, g *guard.Toggle) *ClusterController {
	return &ClusterController{bus: b, codec: codec, guard: g}
}

// Publish handles POST /v1/cluster/publish.
// Un request reenviado por otro nodo se aplica sólo si este nodo es leader.
func (c *ClusterController) Publish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromWithFields(ctx, logger.Layer("controller"), logger.Op("ClusterController.Publish"))

	payload, err := helpers.ReadBody(w, r, false)
	if err != nil {
		httperrors.WriteError(w, r, err)
		return
	}
	env, err := c.codec.Unmarshal(payload)
	if err != nil {
		httperrors.WriteError(w, r, httperrors.ErrInvalidEvent.WithDetail(err.Error()))
		return
	}

	forwardedBy := r.Header.Get(bus.ForwardedHeader)
	if la, ok := c.bus.(localApplier); ok && forwardedBy != "" {
		err = la.ApplyLocal(ctx, payload)
	} else {
		err = c.bus.Publish(ctx, payload)
	}
	if err != nil {
		if errors.Is(err, bus.ErrNoLeader) || errors.Is(err, bus.ErrClosed) {
			httperrors.WriteError(w, r, httperrors.ErrServiceUnavailable.WithDetail(err.Error()))
			return
		}
		httperrors.WriteError(w, r, httperrors.ErrInternalServerError.WithCause(err))
		return
	}

	log.Debug("event accepted", logger.EventID(env.ID), logger.Origin(env.Origin), logger.String("forwarded_by", forwardedBy))
	helpers.WriteJSON(w, http.StatusAccepted, map[string]string{"id": env.ID, "status": "accepted"})
}

// Producer handles POST /v1/cluster/producer/{action} (enable | disable).
func (c *ClusterController) Producer(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "enable":
		c.guard.Enable()
	case "disable":
		c.guard.Disable()
	default:
		httperrors.WriteError(w, r, httperrors.ErrInvalidParameter.WithDetail("action must be enable or disable"))
		return
	}
	logger.From(r.Context()).Info("producer toggled", logger.Bool("enabled", c.guard.Enabled()))
	helpers.WriteJSON(w, http.StatusOK, map[string]bool{"producer_enabled": c.guard.Enabled()})
}
