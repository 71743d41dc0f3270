// Package feature is the single source of truth for subscription tiers,
// roles, data categories and feature gates. Every layer that needs a
// feature name imports the constants from here; client-side mirrors are
// generated from the /features endpoint, never hand-maintained.
package feature

// Tier is a subscription level gating which features a tenant may use.
type Tier string

const (
	TierGoogleOnly   Tier = "google_only"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"

	// TierOrganization is the multi-location tier. It is not ordered
	// above enterprise; it unlocks the propagation capability set.
	TierOrganization Tier = "organization"

	TierChainStarter      Tier = "chain_starter"
	TierChainProfessional Tier = "chain_professional"
	TierChainEnterprise   Tier = "chain_enterprise"
)

// tierFamily groups tiers into independent orderings. Requirements are
// only satisfied within a family; the multi-location families both
// satisfy multi-location (propagation) requirements.
type tierFamily int

const (
	familyNone tierFamily = iota
	familyRetail
	familyOrganization
	familyChain
)

var tierRanks = map[Tier]struct {
	family tierFamily
	rank   int
}{
	TierGoogleOnly:        {familyRetail, 1},
	TierStarter:           {familyRetail, 2},
	TierProfessional:      {familyRetail, 3},
	TierEnterprise:        {familyRetail, 4},
	TierOrganization:      {familyOrganization, 1},
	TierChainStarter:      {familyChain, 1},
	TierChainProfessional: {familyChain, 2},
	TierChainEnterprise:   {familyChain, 3},
}

// TierMeets reports whether the held tier satisfies the required tier.
// Retail tiers compare by rank. A requirement of TierOrganization is
// satisfied by the organization tier or any chain tier, since both
// families unlock multi-location capabilities. Families never satisfy
// each other's ordered requirements otherwise.
func TierMeets(have, required Tier) bool {
	if required == "" {
		return true
	}
	h, okH := tierRanks[have]
	r, okR := tierRanks[required]
	if !okH || !okR {
		return false
	}
	if required == TierOrganization {
		return h.family == familyOrganization || h.family == familyChain
	}
	if h.family != r.family {
		return false
	}
	return h.rank >= r.rank
}

// ValidTier reports whether t is a known subscription tier.
func ValidTier(t Tier) bool {
	_, ok := tierRanks[t]
	return ok
}

// TenantRole is a principal's role within a single tenant.
type TenantRole string

const (
	RoleTenantViewer  TenantRole = "TENANT_VIEWER"
	RoleTenantMember  TenantRole = "TENANT_MEMBER"
	RoleTenantManager TenantRole = "TENANT_MANAGER"
	RoleTenantAdmin   TenantRole = "TENANT_ADMIN"
	RoleTenantOwner   TenantRole = "TENANT_OWNER"
)

var roleRanks = map[TenantRole]int{
	RoleTenantViewer:  1,
	RoleTenantMember:  2,
	RoleTenantManager: 3,
	RoleTenantAdmin:   4,
	RoleTenantOwner:   5,
}

// RoleMeets reports whether the held tenant role satisfies the required
// role. TENANT_ADMIN ranks below TENANT_OWNER, so owner-gated features
// (billing, deletion, ownership transfer) stay out of admin reach.
func RoleMeets(have, required TenantRole) bool {
	if required == "" {
		return true
	}
	h, okH := roleRanks[have]
	r, okR := roleRanks[required]
	if !okH || !okR {
		return false
	}
	return h >= r
}

// RoleLabel returns the human-readable name used in denial reasons.
func RoleLabel(r TenantRole) string {
	switch r {
	case RoleTenantViewer:
		return "viewer"
	case RoleTenantMember:
		return "member"
	case RoleTenantManager:
		return "manager"
	case RoleTenantAdmin:
		return "admin"
	case RoleTenantOwner:
		return "owner"
	default:
		return string(r)
	}
}

// PlatformRole is an operator role spanning all tenants.
type PlatformRole string

const (
	RolePlatformAdmin   PlatformRole = "PLATFORM_ADMIN"
	RolePlatformSupport PlatformRole = "PLATFORM_SUPPORT"
	RolePlatformViewer  PlatformRole = "PLATFORM_VIEWER"
)

// DataCategory names a propagatable slice of tenant data.
type DataCategory string

const (
	CategoryProducts        DataCategory = "products"
	CategoryCategories      DataCategory = "categories"
	CategoryBusinessHours   DataCategory = "business_hours"
	CategoryBusinessProfile DataCategory = "business_profile"
	CategoryFeatureFlags    DataCategory = "feature_flags"
	CategoryUserRoles       DataCategory = "user_roles"
	CategoryBrandAssets     DataCategory = "brand_assets"
	CategoryGBPCategorySync DataCategory = "gbp_category_sync"
)

// DataCategories lists every propagatable category.
var DataCategories = []DataCategory{
	CategoryProducts,
	CategoryCategories,
	CategoryBusinessHours,
	CategoryBusinessProfile,
	CategoryFeatureFlags,
	CategoryUserRoles,
	CategoryBrandAssets,
	CategoryGBPCategorySync,
}

// ValidCategory reports whether c is a known data category.
func ValidCategory(c DataCategory) bool {
	for _, known := range DataCategories {
		if c == known {
			return true
		}
	}
	return false
}

// PropagationFeatureID returns the feature gate guarding propagation of
// the given category, e.g. "propagation_products".
func PropagationFeatureID(c DataCategory) string {
	return "propagation_" + string(c)
}
