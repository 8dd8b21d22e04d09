package correlation

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/jukubill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "abc")
	_, cid := EnsureCorrelationID(ctx)
	assert.Equal(t, "abc", cid)

	ctx, generated := EnsureCorrelationID(context.Background())
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, ExtractCorrelationID(ctx))
}

func TestAttributesIncludeTenantAndActor(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "req-1")
	ctx = obscontext.WithOrgID(ctx, "42")
	ctx = obscontext.WithActor(ctx, "accounting", "tanaka")

	set := attribute.NewSet(Attributes(ctx)...)
	v, ok := set.Value(AttrCorrelationID)
	assert.True(t, ok)
	assert.Equal(t, "req-1", v.AsString())
	v, _ = set.Value(AttrOrgID)
	assert.Equal(t, "42", v.AsString())
	v, _ = set.Value(AttrActorRole)
	assert.Equal(t, "accounting", v.AsString())
	v, _ = set.Value(AttrActorID)
	assert.Equal(t, "tanaka", v.AsString())
}

func TestAttributesWithoutTenant(t *testing.T) {
	attrs := Attributes(context.Background())
	assert.Len(t, attrs, 1)
	assert.Equal(t, AttrCorrelationID, attrs[0].Key)
	assert.NotEmpty(t, attrs[0].Value.AsString())
}
