package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LiuPacific/geoserver/internal/catalog/memory"
	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	"github.com/LiuPacific/geoserver/internal/cluster/producer"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/http/controllers"
)

type fixture struct {
	handler http.Handler
	cat     *memory.Catalog
	bus     *bus.Local
	codec   *events.Codec
	guard   *guard.Toggle
	msgs    chan []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		cat:   memory.New(nil),
		bus:   bus.NewLocal(16),
		codec: events.NewCodec(""),
		guard: guard.New(true),
		msgs:  make(chan []byte, 16),
	}
	p, err := producer.New(producer.Options{Bus: f.bus, Codec: f.codec, Guard: f.guard, NodeID: "node-a", Logger: zap.NewNop()})
	require.NoError(t, err)
	f.cat.AddListener(p)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		_ = f.bus.Subscribe(ctx, func(_ context.Context, payload []byte) { f.msgs <- payload })
	}()
	require.Eventually(t, func() bool { return f.bus.Subscribers() == 1 }, 2*time.Second, 5*time.Millisecond)

	f.handler = New(Deps{
		Logger:  zap.NewNop(),
		Catalog: controllers.NewCatalogController(f.cat),
		Cluster: controllers.NewClusterController(f.bus, f.codec, f.guard),
		Health: controllers.NewHealthController(controllers.HealthDeps{
			NodeID: "node-a", BusName: f.bus.Name(), Bus: f.bus, Guard: f.guard, Catalog: f.cat,
		}),
	})
	return f
}

func (f *fixture) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) nextEvent(t *testing.T) *events.ChangeEvent {
	t.Helper()
	select {
	case payload := <-f.msgs:
		_, ev, err := f.codec.Decode(payload)
		require.NoError(t, err)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestCatalogCRUD_PublishesEvents(t *testing.T) {
	f := newFixture(t)
	const jsonCT = "application/json"

	rec := f.do(http.MethodPost, "/v1/catalog/workspace", jsonCT, `{"name":"topp"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ws catalog.WorkspaceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ws))
	assert.NotEmpty(t, ws.ID, "id is generated when missing")
	assert.Equal(t, events.Created, f.nextEvent(t).Type)

	rec = f.do(http.MethodPost, "/v1/catalog/layer", jsonCT, `{"id":"l1","name":"roads","workspace":"topp"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	f.nextEvent(t)

	rec = f.do(http.MethodPost, "/v1/catalog/layer", jsonCT, `{"id":"l1","name":"other","workspace":"topp"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPut, "/v1/catalog/layer/l1", jsonCT, `{"id":"l2","name":"roads"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPut, "/v1/catalog/layer/l1", jsonCT, `{"name":"streets","workspace":"topp"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ev := f.nextEvent(t)
	assert.Equal(t, events.Modified, ev.Type)
	assert.Equal(t, []string{"name"}, ev.PropertyNames)

	rec = f.do(http.MethodGet, "/v1/catalog/layer/l1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"streets"`)

	rec = f.do(http.MethodGet, "/v1/catalog/layer", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []catalog.LayerInfo `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	rec = f.do(http.MethodDelete, "/v1/catalog/layer/l1", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, events.Removed, f.nextEvent(t).Type)

	rec = f.do(http.MethodDelete, "/v1/catalog/layer/l1", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCatalog_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/catalog/coverage", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_PARAMETER", errorCode(t, rec))

	rec = f.do(http.MethodPost, "/v1/catalog/service", "text/plain", `{"name":"WMS"}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = f.do(http.MethodPost, "/v1/catalog/service", "application/json", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", errorCode(t, rec))

	rec = f.do(http.MethodPost, "/v1/catalog/service", "application/json", `{"id":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "name is required")

	rec = f.do(http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", errorCode(t, rec))
}

func TestClusterPublish(t *testing.T) {
	f := newFixture(t)

	_, payload, err := f.codec.Encode("node-b", events.NewCreated(&catalog.ServiceInfo{ID: "svc1", Name: "WMS"}))
	require.NoError(t, err)

	rec := f.do(http.MethodPost, "/v1/cluster/publish", "application/octet-stream", string(payload))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	ev := f.nextEvent(t)
	assert.Equal(t, "svc1", ev.Source.GetID())

	rec = f.do(http.MethodPost, "/v1/cluster/publish", "application/octet-stream", "garbage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_EVENT", errorCode(t, rec))

	require.NoError(t, f.bus.Close())
	rec = f.do(http.MethodPost, "/v1/cluster/publish", "application/octet-stream", string(payload))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProducerToggle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/cluster/producer/disable", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.guard.Enabled())

	rec = f.do(http.MethodPost, "/v1/catalog/workspace", "application/json", `{"id":"w1","name":"topp"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	select {
	case <-f.msgs:
		t.Fatal("disabled producer must not publish")
	case <-time.After(50 * time.Millisecond):
	}

	rec = f.do(http.MethodPost, "/v1/cluster/producer/enable", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.guard.Enabled())

	rec = f.do(http.MethodPost, "/v1/cluster/producer/toggle", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.cat.Add(context.Background(), &catalog.WorkspaceInfo{ID: "w1", Name: "topp"}))
	f.nextEvent(t)

	rec := f.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "node-a", body["node_id"])
	assert.Equal(t, "local", body["bus"])
	assert.Equal(t, true, body["producer_enabled"])
	assert.Equal(t, map[string]any{"workspace": float64(1), "service": float64(0), "layer": float64(0)}, body["catalog"])
	assert.NotContains(t, body, "raft")

	rec = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
