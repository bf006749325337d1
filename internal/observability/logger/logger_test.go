package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	dev := New(Config{Env: "dev", Level: "debug"})
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))

	prod := New(Config{Env: "prod", Level: "warn", NodeID: "node-a"})
	assert.False(t, prod.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, prod.Core().Enabled(zapcore.WarnLevel))
}

func TestFrom_FallsBackToSingleton(t *testing.T) {
	assert.Same(t, L(), From(context.Background()))
	assert.Same(t, L(), From(nil))

	scoped := zap.NewNop()
	ctx := ToContext(context.Background(), scoped)
	assert.Same(t, scoped, From(ctx))
	assert.NotNil(t, FromWithFields(ctx, EventID("e1")))
}

func TestLookup(t *testing.T) {
	_, ok := Lookup(context.Background())
	assert.False(t, ok)

	_, ok = Lookup(ToContext(context.Background(), nil))
	assert.False(t, ok, "nil logger is not a scoped logger")

	scoped := zap.NewNop()
	got, ok := Lookup(ToContext(context.Background(), scoped))
	assert.True(t, ok)
	assert.Same(t, scoped, got)
}
