package feature

import "testing"

func TestNewRegistryRejectsDuplicateIDs(t *testing.T) {
	_, err := NewRegistry([]Descriptor{
		{ID: "barcode_scan", RequiredTier: TierProfessional},
		{ID: "barcode_scan", RequiredTier: TierStarter},
	})
	if err == nil {
		t.Fatal("expected duplicate ID error")
	}
}

func TestNewRegistryRejectsEmptyID(t *testing.T) {
	_, err := NewRegistry([]Descriptor{{ID: ""}})
	if err == nil {
		t.Fatal("expected empty ID error")
	}
}

func TestNewRegistryRejectsUnknownTier(t *testing.T) {
	_, err := NewRegistry([]Descriptor{{ID: "x", RequiredTier: Tier("platinum")}})
	if err == nil {
		t.Fatal("expected unknown tier error")
	}
}

func TestDefaultRegistryCoversEveryDataCategory(t *testing.T) {
	reg := Default()
	for _, cat := range DataCategories {
		id := PropagationFeatureID(cat)
		if _, ok := reg.Lookup(id); !ok {
			t.Errorf("no propagation feature registered for category %q", cat)
		}
	}
}

func TestLookupUnknownFeature(t *testing.T) {
	if _, ok := Default().Lookup("product_scanning"); ok {
		t.Fatal("unregistered feature ID must not resolve")
	}
}

func TestTierMeetsRetailOrdering(t *testing.T) {
	ordered := []Tier{TierGoogleOnly, TierStarter, TierProfessional, TierEnterprise}
	for i, required := range ordered {
		for j, have := range ordered {
			want := j >= i
			if got := TierMeets(have, required); got != want {
				t.Errorf("TierMeets(%s, %s) = %v, want %v", have, required, got, want)
			}
		}
	}
}

func TestTierMeetsChainOrdering(t *testing.T) {
	if !TierMeets(TierChainEnterprise, TierChainStarter) {
		t.Error("chain_enterprise should satisfy chain_starter")
	}
	if TierMeets(TierChainStarter, TierChainProfessional) {
		t.Error("chain_starter should not satisfy chain_professional")
	}
}

func TestTierFamiliesAreDisjoint(t *testing.T) {
	// Organization is not ordered above enterprise; neither family
	// satisfies the other's ordered requirements.
	if TierMeets(TierOrganization, TierEnterprise) {
		t.Error("organization tier should not satisfy enterprise requirement")
	}
	if TierMeets(TierEnterprise, TierOrganization) {
		t.Error("enterprise tier should not satisfy organization requirement")
	}
	if TierMeets(TierChainEnterprise, TierProfessional) {
		t.Error("chain tiers should not satisfy retail requirements")
	}
}

func TestOrganizationRequirementSatisfiedByChainTiers(t *testing.T) {
	for _, have := range []Tier{TierOrganization, TierChainStarter, TierChainProfessional, TierChainEnterprise} {
		if !TierMeets(have, TierOrganization) {
			t.Errorf("%s should satisfy the organization requirement", have)
		}
	}
}

func TestTierMeetsUnknownTier(t *testing.T) {
	if TierMeets(Tier("free"), TierGoogleOnly) {
		t.Error("unknown held tier must not satisfy any requirement")
	}
	if TierMeets(TierEnterprise, Tier("platinum")) {
		t.Error("unknown required tier must fail closed")
	}
}

func TestRoleMeetsOrdering(t *testing.T) {
	ordered := []TenantRole{RoleTenantViewer, RoleTenantMember, RoleTenantManager, RoleTenantAdmin, RoleTenantOwner}
	for i, required := range ordered {
		for j, have := range ordered {
			want := j >= i
			if got := RoleMeets(have, required); got != want {
				t.Errorf("RoleMeets(%s, %s) = %v, want %v", have, required, got, want)
			}
		}
	}
}

func TestAdminDoesNotMeetOwner(t *testing.T) {
	if RoleMeets(RoleTenantAdmin, RoleTenantOwner) {
		t.Fatal("TENANT_ADMIN must rank below TENANT_OWNER")
	}
}
