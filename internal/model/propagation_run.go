package model

import (
	"time"
)

// PropagationRun is the persisted audit record of one propagation
// execution, including its per-target outcome rows.
type PropagationRun struct {
	ID                   string     `json:"id" gorm:"type:uuid;primaryKey"`
	ScopeKind            string     `json:"scope_kind" gorm:"type:varchar(20);not null"`
	SourceTenantID       uint       `json:"source_tenant_id" gorm:"index;not null"`
	TargetOrganizationID uint       `json:"target_organization_id,omitempty"`
	Category             string     `json:"category" gorm:"type:varchar(50);not null"`
	ConflictPolicy       string     `json:"conflict_policy" gorm:"type:varchar(20);not null"`
	DryRun               bool       `json:"dry_run"`
	Status               string     `json:"status" gorm:"type:varchar(20);index;not null"`
	InitiatedBy          uint       `json:"initiated_by" gorm:"index;not null"`
	Cancelled            bool       `json:"cancelled"`
	Error                string     `json:"error,omitempty" gorm:"type:text"`
	CreatedCount         int        `json:"created_count"`
	UpdatedCount         int        `json:"updated_count"`
	SkippedCount         int        `json:"skipped_count"`
	DeletedCount         int        `json:"deleted_count"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`

	// Relations
	Targets []PropagationRunTarget `json:"targets,omitempty" gorm:"foreignKey:RunID;references:ID"`
}

// PropagationRunTarget records the outcome for a single target tenant
// so operators can re-run exactly the locations that failed.
type PropagationRunTarget struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	RunID        string    `json:"run_id" gorm:"type:uuid;index;not null"`
	TenantID     uint      `json:"tenant_id" gorm:"index;not null"`
	CreatedCount int       `json:"created_count"`
	UpdatedCount int       `json:"updated_count"`
	SkippedCount int       `json:"skipped_count"`
	DeletedCount int       `json:"deleted_count"`
	Failed       bool      `json:"failed"`
	Error        string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CategorySnapshot stores the full pre-run record set of one target's
// data category, taken before the first write of an organization or
// platform scope run. Rollback restores it verbatim.
type CategorySnapshot struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RunID     string    `json:"run_id" gorm:"type:uuid;uniqueIndex:idx_snapshot_run_tenant;not null"`
	TenantID  uint      `json:"tenant_id" gorm:"uniqueIndex:idx_snapshot_run_tenant;not null"`
	Category  string    `json:"category" gorm:"type:varchar(50);not null"`
	Payload   string    `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
}
