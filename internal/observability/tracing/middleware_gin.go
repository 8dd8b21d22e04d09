package tracing

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/jukubill/internal/observability/context"
	"github.com/smallbiznis/jukubill/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "jukubill/http"

// GinMiddleware opens a server span per request. The request ID doubles as
// the correlation ID so log lines and spans can be joined.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx = correlation.ContextWithCorrelationID(ctx, obscontext.RequestIDFromContext(ctx))

		method := strings.ToUpper(c.Request.Method)
		ctx, span := otel.Tracer(tracerName).Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		span.SetName(method + " " + route)
		span.SetAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if org := obscontext.OrgIDFromContext(c.Request.Context()); org != "" {
			span.SetAttributes(correlation.AttrOrgID.String(org))
		}

		if status < http.StatusInternalServerError {
			return
		}
		if last := c.Errors.Last(); last != nil {
			// Error text can carry payer names; record the leading class only.
			span.RecordError(errors.New(errorClass(last.Err)))
		}
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

func errorClass(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, ':'); i > 0 {
		return msg[:i]
	}
	return msg
}
