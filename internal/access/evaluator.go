// Package access holds the authorization decision engine. Authorize is
// a pure function over the feature registry and the request principal:
// no I/O, no side effects, safe to call from any handler or from the
// propagation engine before it touches tenant data.
package access

import (
	"fmt"

	"propagation-service/internal/feature"
)

// Principal is the acting user for one request, computed from verified
// session state by the auth middleware. It is a read-only snapshot.
type Principal struct {
	UserID       uint
	PlatformRole feature.PlatformRole
	// TenantRoles maps tenant ID to the principal's role in that tenant.
	TenantRoles map[uint]feature.TenantRole
	// TenantTiers maps tenant ID to that tenant's subscription tier.
	TenantTiers map[uint]feature.Tier
}

// RoleFor returns the principal's role for a tenant, if any.
func (p Principal) RoleFor(tenantID uint) (feature.TenantRole, bool) {
	role, ok := p.TenantRoles[tenantID]
	return role, ok
}

// TierFor returns the subscription tier the principal holds for a
// tenant, if any.
func (p Principal) TierFor(tenantID uint) (feature.Tier, bool) {
	tier, ok := p.TenantTiers[tenantID]
	return tier, ok
}

// IsPlatformAdmin reports whether the principal holds the full-bypass
// platform role.
func (p Principal) IsPlatformAdmin() bool {
	return p.PlatformRole == feature.RolePlatformAdmin
}

// Decision is the result of an authorization check. On denial, Reason
// is specific enough to drive an upgrade or permission prompt, and
// RequiredTier/RequiredRole name the missing requirement.
type Decision struct {
	Allowed      bool               `json:"allowed"`
	Reason       string             `json:"reason,omitempty"`
	RequiredTier feature.Tier       `json:"required_tier,omitempty"`
	RequiredRole feature.TenantRole `json:"required_role,omitempty"`
}

// Machine-readable denial reasons.
const (
	ReasonUnknownFeature = "unknown_feature"
	ReasonNoAccess       = "no_access"
)

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Evaluator decides feature access against an immutable registry.
type Evaluator struct {
	registry *feature.Registry
}

// NewEvaluator returns an evaluator over the given registry.
func NewEvaluator(registry *feature.Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Authorize decides whether the principal may use the feature in the
// context of the given tenant. tenantID is zero when the request has
// no tenant context (platform-level calls).
//
// Precedence, highest first: PLATFORM_ADMIN bypasses tier and role
// checks; PLATFORM_SUPPORT is granted read-only features plus features
// marked with the support bypass; PLATFORM_VIEWER is granted read-only
// features only. Otherwise the principal's tier AND role for the
// tenant must both satisfy the descriptor.
//
// Unknown feature IDs fail closed for every principal, including
// PLATFORM_ADMIN: an unregistered ID is a configuration defect, not a
// permission gap an operator should be able to step over.
func (e *Evaluator) Authorize(p Principal, featureID string, tenantID uint) Decision {
	desc, ok := e.registry.Lookup(featureID)
	if !ok {
		return deny(ReasonUnknownFeature)
	}

	switch p.PlatformRole {
	case feature.RolePlatformAdmin:
		return allow()
	case feature.RolePlatformSupport:
		if desc.ReadOnly || desc.SupportBypass {
			return allow()
		}
		return deny("support role cannot perform this operation")
	case feature.RolePlatformViewer:
		if desc.ReadOnly {
			return allow()
		}
		return deny("platform viewer has read-only access")
	}

	role, hasRole := p.RoleFor(tenantID)
	tier, hasTier := p.TierFor(tenantID)
	if tenantID == 0 || (!hasRole && !hasTier) {
		return deny(ReasonNoAccess)
	}

	if !feature.TierMeets(tier, desc.RequiredTier) {
		d := deny(fmt.Sprintf("requires %s tier or higher", desc.RequiredTier))
		d.RequiredTier = desc.RequiredTier
		return d
	}
	if !feature.RoleMeets(role, desc.RequiredRole) {
		d := deny(fmt.Sprintf("requires tenant %s role", feature.RoleLabel(desc.RequiredRole)))
		d.RequiredRole = desc.RequiredRole
		return d
	}
	return allow()
}
