package events

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

func TestValidate(t *testing.T) {
	var nilEv *ChangeEvent
	assert.ErrorIs(t, nilEv.Validate(), ErrMalformed)

	src := &catalog.ServiceInfo{ID: "svc1", Name: "WMS"}
	assert.NoError(t, (&ChangeEvent{Type: Created, Source: src}).Validate())
	assert.ErrorIs(t, (&ChangeEvent{Type: "RENAMED", Source: src}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&ChangeEvent{Type: Removed}).Validate(), ErrMalformed)
	assert.ErrorIs(t, (&ChangeEvent{
		Type:          Modified,
		Source:        src,
		PropertyNames: []string{"title"},
		OldValues:     []any{"a"},
	}).Validate(), ErrMalformed)
}

func TestNewModified_DiffsOnlyChangedFields(t *testing.T) {
	old := &catalog.ServiceInfo{ID: "svc1", Name: "WMS", Title: "Old", Keywords: []string{}}
	updated := &catalog.ServiceInfo{ID: "svc1", Name: "WMS2", Title: "New"}

	ev := NewModified(old, updated)
	require.NotNil(t, ev)
	assert.Equal(t, Modified, ev.Type)
	assert.Equal(t, []string{"name", "title"}, ev.PropertyNames)
	assert.Equal(t, []any{"WMS", "Old"}, ev.OldValues)
	assert.Equal(t, []any{"WMS2", "New"}, ev.NewValues)
	assert.Equal(t, 0, ev.IndexOf("name"))
	assert.Equal(t, -1, ev.IndexOf("abstract"))
}

func TestNewModified_NoChanges(t *testing.T) {
	e := &catalog.LayerInfo{ID: "l1", Name: "roads"}
	assert.Nil(t, NewModified(e, e.Clone()))
}

func TestCodec_PlainRoundTrip(t *testing.T) {
	c := NewCodec("")
	c.Now = func() time.Time { return time.Unix(1700000000, 0) }
	ev := &ChangeEvent{
		Type:          Modified,
		Source:        &catalog.LayerInfo{ID: "l1", Name: "roads", Workspace: "topp", MaxFeatures: 10},
		PropertyNames: []string{"maxFeatures", "styles"},
		OldValues:     []any{5, []string{"a"}},
		NewValues:     []any{10, []string{"a", "b"}},
	}
	env, data, err := c.Encode("node-a", ev)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, int64(1700000000), env.TsUnix)

	gotEnv, got, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, env.ID, gotEnv.ID)
	assert.Equal(t, "node-a", gotEnv.Origin)
	assert.Equal(t, catalog.KindLayer, got.Source.Kind())
	assert.Equal(t, "topp", got.Source.GetWorkspace())
	assert.Equal(t, []string{"maxFeatures", "styles"}, got.PropertyNames)
	// JSON devuelve tipos genéricos; el patcher los convierte.
	assert.Equal(t, float64(10), got.NewValues[0])
	assert.Equal(t, []any{"a", "b"}, got.NewValues[1])
}

func TestCodec_SignedRejectsTampering(t *testing.T) {
	c := NewCodec("cluster-secret")
	ev := NewCreated(&catalog.WorkspaceInfo{ID: "w1", Name: "topp"})

	_, data, err := c.Encode("node-a", ev)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "."), "signed payload is a compact JWT")

	_, got, err := c.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "topp", got.Source.GetName())

	other := NewCodec("another-secret")
	_, _, err = other.Decode(data)
	assert.ErrorIs(t, err, ErrSignature)

	plain := NewCodec("")
	_, plainData, err := plain.Encode("node-a", ev)
	require.NoError(t, err)
	_, _, err = c.Decode(plainData)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestCodec_RejectsUnknownKind(t *testing.T) {
	c := NewCodec("")
	_, _, err := c.Decode([]byte(`{"id":"e1","origin":"n","type":"CREATED","entityKind":"coverage","source":{}}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, _, err = c.Decode([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformed)
}
