package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/jukubill/internal/observability/context"
	"github.com/smallbiznis/jukubill/pkg/telemetry"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
)

const (
	HeaderOrg   = "X-Org-ID"
	HeaderActor = "X-Actor-ID"
	HeaderRole  = "X-Role"

	contextTenantKey = "tenant"
)

// TenantContext resolves the tenant from the gateway headers. Authentication
// happens upstream; the headers are trusted as given.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID, err := snowflake.ParseString(strings.TrimSpace(c.GetHeader(HeaderOrg)))
		if err != nil || orgID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		tc := tenantctx.New(orgID, c.GetHeader(HeaderActor), c.GetHeader(HeaderRole))
		if tc.Role == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := tenantctx.WithTenant(c.Request.Context(), tc)
		ctx = obscontext.WithOrgID(ctx, orgID.String())
		ctx = obscontext.WithActor(ctx, tc.Role, tc.Actor())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextTenantKey, tc)
		c.Next()
	}
}

func tenantFromContext(c *gin.Context) (tenantctx.TenantContext, bool) {
	if v, ok := c.Get(contextTenantKey); ok {
		if tc, ok := v.(tenantctx.TenantContext); ok {
			return tc, true
		}
	}
	return tenantctx.FromContext(c.Request.Context())
}

// RequestMetrics observes every API request on the prometheus registry.
func RequestMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		var tenant string
		if tc, ok := tenantFromContext(c); ok {
			tenant = tc.OrgID.String()
		}
		m.ObserveAPIRequest(route, strconv.Itoa(c.Writer.Status()), tenant, time.Since(start))
	}
}
