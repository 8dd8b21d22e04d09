// Package correlation ties spans and log lines of one request together.
package correlation

import (
	"context"

	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/jukubill/internal/observability/context"
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrCorrelationID = attribute.Key("correlation_id")
	AttrOrgID         = attribute.Key("jukubill.org_id")
	AttrActorRole     = attribute.Key("jukubill.actor_role")
	AttrActorID       = attribute.Key("jukubill.actor_id")
)

type key struct{}

// ExtractCorrelationID returns the correlation ID carried by ctx, or "".
func ExtractCorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// EnsureCorrelationID returns ctx carrying a correlation ID, minting a ULID
// when none is set.
func EnsureCorrelationID(ctx context.Context) (context.Context, string) {
	if id := ExtractCorrelationID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return ContextWithCorrelationID(ctx, id), id
}

// Attributes returns the span attributes for the request in ctx: the
// correlation ID plus the tenant and operator when known.
func Attributes(ctx context.Context) []attribute.KeyValue {
	_, id := EnsureCorrelationID(ctx)
	attrs := []attribute.KeyValue{AttrCorrelationID.String(id)}
	if org := obscontext.OrgIDFromContext(ctx); org != "" {
		attrs = append(attrs, AttrOrgID.String(org))
	}
	role, actor := obscontext.ActorFromContext(ctx)
	if role != "" {
		attrs = append(attrs, AttrActorRole.String(role))
	}
	if actor != "" {
		attrs = append(attrs, AttrActorID.String(actor))
	}
	return attrs
}
