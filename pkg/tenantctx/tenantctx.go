// Package tenantctx carries the tenant and actor a request operates on.
//
// Services never read the tenant from ambient state: every operation takes a
// TenantContext value. The context helpers below exist only for the HTTP layer,
// which resolves the tenant once per request and hands the value down.
package tenantctx

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
)

var ErrMissingTenant = errors.New("missing_tenant")

// Well-known roles. Role names are lower case and match the authorization policies.
const (
	RoleAdmin      = "admin"
	RoleAccounting = "accounting"
	RoleStaff      = "staff"
	RoleSystem     = "system"
)

// TenantContext identifies the organization and actor of one unit of work.
type TenantContext struct {
	OrgID   snowflake.ID
	ActorID string
	Role    string
}

// New builds a TenantContext with a normalized role.
func New(orgID snowflake.ID, actorID, role string) TenantContext {
	return TenantContext{
		OrgID:   orgID,
		ActorID: strings.TrimSpace(actorID),
		Role:    strings.ToLower(strings.TrimSpace(role)),
	}
}

// System returns a context for background or batch work with no human actor.
func System(orgID snowflake.ID) TenantContext {
	return TenantContext{OrgID: orgID, ActorID: RoleSystem, Role: RoleSystem}
}

func (t TenantContext) Validate() error {
	if t.OrgID == 0 {
		return ErrMissingTenant
	}
	return nil
}

// Actor returns the actor id, falling back to the role for anonymous system work.
func (t TenantContext) Actor() string {
	if t.ActorID != "" {
		return t.ActorID
	}
	if t.Role != "" {
		return t.Role
	}
	return RoleSystem
}

type tenantKey struct{}

func WithTenant(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantKey{}, tc)
}

func FromContext(ctx context.Context) (TenantContext, bool) {
	if ctx == nil {
		return TenantContext{}, false
	}
	tc, ok := ctx.Value(tenantKey{}).(TenantContext)
	return tc, ok
}
