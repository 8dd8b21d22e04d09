package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/jukubill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextSkipsMissingFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithOrgID(ctx, "7")
	WithContext(ctx, base).Info("posted")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "7", fields["org_id"])
	assert.NotContains(t, fields, "actor")
	assert.NotContains(t, fields, "trace_id")
}

func TestContextFieldsIncludesActor(t *testing.T) {
	ctx := obscontext.WithActor(context.Background(), "staff", "sato")
	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "role", fields[0].Key)
	assert.Equal(t, "actor", fields[1].Key)
	assert.Empty(t, ContextFields(context.Background()))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}
