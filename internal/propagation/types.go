// Package propagation copies a data category from a source tenant to a
// validated set of target tenants, honoring a conflict policy and
// recording an auditable run. Authorization is delegated to the access
// evaluator before any tenant data is touched.
package propagation

import (
	"context"
	"time"

	"propagation-service/internal/feature"
)

// ScopeKind names the blast radius of a propagation request.
type ScopeKind string

const (
	ScopeTenant       ScopeKind = "tenant"
	ScopeOrganization ScopeKind = "organization"
	ScopePlatform     ScopeKind = "platform"
)

// Scope describes exactly which tenants a propagation touches. It is a
// tagged variant: platform reach is only expressible through the
// explicit confirmation flag, never through an absent tenant ID, so an
// "accidentally platform-wide" scope cannot be constructed.
type Scope struct {
	Kind                 ScopeKind            `json:"scope_kind"`
	SourceTenantID       uint                 `json:"source_tenant_id"`
	TargetTenantIDs      []uint               `json:"target_tenant_ids,omitempty"`
	TargetOrganizationID uint                 `json:"target_organization_id,omitempty"`
	ConfirmPlatformWide  bool                 `json:"confirm_platform_wide,omitempty"`
	Category             feature.DataCategory `json:"data_category"`
	DryRun               bool                 `json:"dry_run,omitempty"`
}

// TenantScope builds a peer-sharing scope over an explicit sibling list.
func TenantScope(sourceTenantID uint, targetTenantIDs []uint, category feature.DataCategory, dryRun bool) Scope {
	return Scope{
		Kind:            ScopeTenant,
		SourceTenantID:  sourceTenantID,
		TargetTenantIDs: targetTenantIDs,
		Category:        category,
		DryRun:          dryRun,
	}
}

// OrganizationScope builds a chain-wide scope. A zero source tenant
// resolves to the organization's hero location at planning time.
func OrganizationScope(sourceTenantID, organizationID uint, category feature.DataCategory, dryRun bool) Scope {
	return Scope{
		Kind:                 ScopeOrganization,
		SourceTenantID:       sourceTenantID,
		TargetOrganizationID: organizationID,
		Category:             category,
		DryRun:               dryRun,
	}
}

// PlatformScope builds a platform-wide scope. Plans reject it unless
// confirmed is true.
func PlatformScope(sourceTenantID uint, category feature.DataCategory, confirmed, dryRun bool) Scope {
	return Scope{
		Kind:                ScopePlatform,
		SourceTenantID:      sourceTenantID,
		ConfirmPlatformWide: confirmed,
		Category:            category,
		DryRun:              dryRun,
	}
}

// Record is one entry of a tenant's data category, expressed as a
// generic document so the conflict policies are implemented once and
// parameterized per category.
type Record struct {
	Key         string              `json:"key"`
	Scalars     map[string]string   `json:"scalars,omitempty"`
	Collections map[string][]string `json:"collections,omitempty"`
	// LocalOverrides lists scalar fields the tenant has pinned locally;
	// merge propagation never overwrites them.
	LocalOverrides []string `json:"local_overrides,omitempty"`
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{Key: r.Key}
	if r.Scalars != nil {
		out.Scalars = make(map[string]string, len(r.Scalars))
		for k, v := range r.Scalars {
			out.Scalars[k] = v
		}
	}
	if r.Collections != nil {
		out.Collections = make(map[string][]string, len(r.Collections))
		for k, v := range r.Collections {
			out.Collections[k] = append([]string(nil), v...)
		}
	}
	if r.LocalOverrides != nil {
		out.LocalOverrides = append([]string(nil), r.LocalOverrides...)
	}
	return out
}

// Equal compares record content, ignoring local override markers.
func (r Record) Equal(other Record) bool {
	if r.Key != other.Key || len(r.Scalars) != len(other.Scalars) || len(r.Collections) != len(other.Collections) {
		return false
	}
	for k, v := range r.Scalars {
		if other.Scalars[k] != v {
			return false
		}
	}
	for k, v := range r.Collections {
		ov, ok := other.Collections[k]
		if !ok || len(ov) != len(v) {
			return false
		}
		for i := range v {
			if v[i] != ov[i] {
				return false
			}
		}
	}
	return true
}

func (r Record) overridden(field string) bool {
	for _, f := range r.LocalOverrides {
		if f == field {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle state of a propagation run.
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusRunning    RunStatus = "running"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
	StatusRolledBack RunStatus = "rolled_back"
)

// Summary totals per-item outcomes. Every applied item increments
// exactly one counter, so Created+Updated+Skipped+Deleted reconciles
// with the number of items handled.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
}

func (s *Summary) add(other Summary) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Deleted += other.Deleted
}

// Total returns the number of items the summary accounts for.
func (s Summary) Total() int {
	return s.Created + s.Updated + s.Skipped + s.Deleted
}

// TargetResult is the outcome for one target tenant. A failed target
// reports zero counts; its error string tells the operator what to
// re-run.
type TargetResult struct {
	TenantID uint `json:"tenant_id"`
	Summary
	Failed bool   `json:"failed,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run is the audit record of one propagation execution.
type Run struct {
	ID          string         `json:"id"`
	Scope       Scope          `json:"scope"`
	Policy      ConflictPolicy `json:"conflict_policy"`
	InitiatedBy uint           `json:"initiated_by"`
	Status      RunStatus      `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Cancelled   bool           `json:"cancelled,omitempty"`
	Summary     Summary        `json:"summary"`
	Targets     []TargetResult `json:"targets"`
	Error       string         `json:"error,omitempty"`
}

// Plan is a validated, authorized propagation with resolved targets and
// a computed diff preview. Nothing has been written yet.
type Plan struct {
	ID          string         `json:"id"`
	Scope       Scope          `json:"scope"`
	Policy      ConflictPolicy `json:"conflict_policy"`
	InitiatedBy uint           `json:"initiated_by"`
	Preview     []TargetResult `json:"preview"`
	CreatedAt   time.Time      `json:"created_at"`
}

// PreviewSummary aggregates the per-target diff preview.
func (p *Plan) PreviewSummary() Summary {
	var s Summary
	for _, t := range p.Preview {
		s.add(t.Summary)
	}
	return s
}

// TenantInfo is the slice of tenant state the engine needs.
type TenantInfo struct {
	ID             uint
	OwnerID        uint
	OrganizationID uint
	Tier           feature.Tier
}

// OrganizationInfo carries the organization fields the engine needs.
type OrganizationInfo struct {
	ID           uint
	OwnerID      uint
	HeroTenantID uint
}

// Directory resolves tenants and organization membership.
type Directory interface {
	Tenant(ctx context.Context, id uint) (TenantInfo, error)
	Organization(ctx context.Context, id uint) (OrganizationInfo, error)
	TenantsByOrganization(ctx context.Context, organizationID uint) ([]TenantInfo, error)
	AllTenants(ctx context.Context) ([]TenantInfo, error)
}

// RecordStore reads and writes one tenant's category records.
type RecordStore interface {
	List(ctx context.Context, tenantID uint, category feature.DataCategory) ([]Record, error)
	Put(ctx context.Context, tenantID uint, category feature.DataCategory, record Record) error
	Delete(ctx context.Context, tenantID uint, category feature.DataCategory, key string) error
}

// RunStore persists run records and pre-run snapshots.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	SaveSnapshot(ctx context.Context, runID string, tenantID uint, category feature.DataCategory, records []Record) error
	GetSnapshot(ctx context.Context, runID string, tenantID uint) ([]Record, bool, error)
}
