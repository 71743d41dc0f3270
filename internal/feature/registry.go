package feature

import "fmt"

// Feature ID constants. These are the only spellings of feature names
// anywhere in the system; handlers, the evaluator and generated client
// mirrors all import them from here.
const (
	FeatureInventoryView       = "inventory_view"
	FeatureProductManagement   = "product_management"
	FeatureBarcodeScan         = "barcode_scan"
	FeatureStorefrontPublish   = "storefront_publish"
	FeatureDirectoryListing    = "directory_listing"
	FeatureGBPSync             = "gbp_sync"
	FeatureBusinessHoursEdit   = "business_hours_edit"
	FeatureBusinessProfileEdit = "business_profile_edit"
	FeatureBrandAssetUpload    = "brand_asset_upload"
	FeatureUserRoleManagement  = "user_role_management"
	FeatureTenantSettings      = "tenant_settings"
	FeatureTenantBilling       = "tenant_billing"
	FeatureTenantDeletion      = "tenant_deletion"
	FeaturePropagationRunView  = "propagation_run_view"
	FeaturePropagationRollback = "propagation_rollback"
)

// Descriptor describes one gated capability.
type Descriptor struct {
	ID           string     `json:"id"`
	RequiredTier Tier       `json:"required_tier,omitempty"`
	RequiredRole TenantRole `json:"required_role,omitempty"`
	// ReadOnly marks features that never mutate tenant data; platform
	// viewer and support roles are granted these.
	ReadOnly bool `json:"read_only,omitempty"`
	// SupportBypass marks mutating features PLATFORM_SUPPORT may use.
	SupportBypass bool `json:"support_bypass,omitempty"`
}

// Registry is the immutable feature table. It is built once at startup
// and safe for unsynchronized concurrent reads.
type Registry struct {
	byID    map[string]Descriptor
	ordered []Descriptor
}

// NewRegistry builds a registry, rejecting duplicate feature IDs. A
// duplicate means two layers tried to define the same capability under
// divergent descriptors, which is exactly the drift this table exists
// to prevent.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	r := &Registry{
		byID:    make(map[string]Descriptor, len(descriptors)),
		ordered: make([]Descriptor, 0, len(descriptors)),
	}
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("feature descriptor with empty ID")
		}
		if _, exists := r.byID[d.ID]; exists {
			return nil, fmt.Errorf("duplicate feature ID %q", d.ID)
		}
		if d.RequiredTier != "" && !ValidTier(d.RequiredTier) {
			return nil, fmt.Errorf("feature %q requires unknown tier %q", d.ID, d.RequiredTier)
		}
		r.byID[d.ID] = d
		r.ordered = append(r.ordered, d)
	}
	return r, nil
}

// Lookup returns the descriptor for a feature ID.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// All returns the descriptors in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// canonical is the deployment feature table. Role requirements are
// configuration, not evaluator logic; adjust them here per deployment.
var canonical = []Descriptor{
	{ID: FeatureInventoryView, RequiredTier: TierGoogleOnly, ReadOnly: true},
	{ID: FeatureProductManagement, RequiredTier: TierStarter, RequiredRole: RoleTenantMember},
	{ID: FeatureBarcodeScan, RequiredTier: TierProfessional, RequiredRole: RoleTenantMember},
	{ID: FeatureStorefrontPublish, RequiredTier: TierProfessional, RequiredRole: RoleTenantManager},
	{ID: FeatureDirectoryListing, RequiredTier: TierStarter, ReadOnly: true},
	{ID: FeatureGBPSync, RequiredTier: TierProfessional, RequiredRole: RoleTenantManager, SupportBypass: true},
	{ID: FeatureBusinessHoursEdit, RequiredTier: TierGoogleOnly, RequiredRole: RoleTenantManager, SupportBypass: true},
	{ID: FeatureBusinessProfileEdit, RequiredTier: TierGoogleOnly, RequiredRole: RoleTenantManager, SupportBypass: true},
	{ID: FeatureBrandAssetUpload, RequiredTier: TierProfessional, RequiredRole: RoleTenantManager},
	{ID: FeatureUserRoleManagement, RequiredTier: TierStarter, RequiredRole: RoleTenantAdmin},
	{ID: FeatureTenantSettings, RequiredTier: TierGoogleOnly, RequiredRole: RoleTenantAdmin},

	// Owner-gated: TENANT_ADMIN is explicitly insufficient here.
	{ID: FeatureTenantBilling, RequiredTier: TierGoogleOnly, RequiredRole: RoleTenantOwner},
	{ID: FeatureTenantDeletion, RequiredTier: TierGoogleOnly, RequiredRole: RoleTenantOwner},

	{ID: FeaturePropagationRunView, RequiredTier: TierOrganization, RequiredRole: RoleTenantManager, ReadOnly: true},
	{ID: FeaturePropagationRollback, RequiredTier: TierOrganization, RequiredRole: RoleTenantAdmin},

	{ID: PropagationFeatureID(CategoryProducts), RequiredTier: TierOrganization, RequiredRole: RoleTenantManager},
	{ID: PropagationFeatureID(CategoryCategories), RequiredTier: TierOrganization, RequiredRole: RoleTenantManager},
	{ID: PropagationFeatureID(CategoryBusinessHours), RequiredTier: TierOrganization, RequiredRole: RoleTenantManager},
	{ID: PropagationFeatureID(CategoryBusinessProfile), RequiredTier: TierOrganization, RequiredRole: RoleTenantManager},
	{ID: PropagationFeatureID(CategoryFeatureFlags), RequiredTier: TierOrganization, RequiredRole: RoleTenantAdmin},
	{ID: PropagationFeatureID(CategoryUserRoles), RequiredTier: TierOrganization, RequiredRole: RoleTenantAdmin},
	{ID: PropagationFeatureID(CategoryBrandAssets), RequiredTier: TierOrganization, RequiredRole: RoleTenantManager},
	{ID: PropagationFeatureID(CategoryGBPCategorySync), RequiredTier: TierOrganization, RequiredRole: RoleTenantManager},
}

var defaultRegistry = mustNewRegistry(canonical)

func mustNewRegistry(descriptors []Descriptor) *Registry {
	r, err := NewRegistry(descriptors)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the canonical registry.
func Default() *Registry {
	return defaultRegistry
}
