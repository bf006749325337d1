package controllers

import (
	"net/http"

	"github.com/LiuPacific/geoserver/internal/cluster/consumer"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/http/helpers"
)

// Counter cuenta entidades por tipo (memory.Catalog lo implementa).
type Counter interface {
	Count() map[catalog.Kind]int
}

// StatsSource expone contadores del consumer.
type StatsSource interface {
	Stats() consumer.Stats
}

type raftStats interface {
	Stats() map[string]string
	IsLeader() bool
	LeaderID() string
}

// HealthDeps son las fuentes que reporta /healthz. Todas opcionales salvo NodeID.
type HealthDeps struct {
	NodeID   string
	BusName  string
	Bus      any
	Guard    *guard.Toggle
	Catalog  Counter
	Consumer StatsSource
}

type HealthController struct {
	deps HealthDeps
}

func NewHealthController(deps HealthDeps) *HealthController {
	return &HealthController{deps: deps}
}

type healthResponse struct {
	Status          string            `json:"status"`
	NodeID          string            `json:"node_id"`
	Bus             string            `json:"bus,omitempty"`
	ProducerEnabled bool              `json:"producer_enabled"`
	Catalog         map[string]int    `json:"catalog,omitempty"`
	Consumer        *consumer.Stats   `json:"consumer,omitempty"`
	Raft            map[string]string `json:"raft,omitempty"`
}

// Health handles GET /healthz.
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	d := c.deps
	resp := healthResponse{Status: "ok", NodeID: d.NodeID, Bus: d.BusName}
	if d.Guard != nil {
		resp.ProducerEnabled = d.Guard.Enabled()
	}
	if d.Catalog != nil {
		resp.Catalog = make(map[string]int)
		for k, n := range d.Catalog.Count() {
			resp.Catalog[string(k)] = n
		}
	}
	if d.Consumer != nil {
		s := d.Consumer.Stats()
		resp.Consumer = &s
	}
	if rs, ok := d.Bus.(raftStats); ok {
		resp.Raft = rs.Stats()
		resp.Raft["is_leader"] = boolString(rs.IsLeader())
		resp.Raft["leader_id"] = rs.LeaderID()
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
