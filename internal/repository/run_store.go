package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propagation-service/internal/feature"
	"propagation-service/internal/model"
	"propagation-service/internal/propagation"
)

// RunRepo persists propagation run records and pre-run snapshots.
type RunRepo struct {
	db *gorm.DB
}

// NewRunRepo constructs a RunRepo with the provided DB handle.
func NewRunRepo(db *gorm.DB) *RunRepo {
	return &RunRepo{db: db}
}

func runRow(run *propagation.Run) model.PropagationRun {
	row := model.PropagationRun{
		ID:                   run.ID,
		ScopeKind:            string(run.Scope.Kind),
		SourceTenantID:       run.Scope.SourceTenantID,
		TargetOrganizationID: run.Scope.TargetOrganizationID,
		Category:             string(run.Scope.Category),
		ConflictPolicy:       string(run.Policy),
		DryRun:               run.Scope.DryRun,
		Status:               string(run.Status),
		InitiatedBy:          run.InitiatedBy,
		Cancelled:            run.Cancelled,
		Error:                run.Error,
		CreatedCount:         run.Summary.Created,
		UpdatedCount:         run.Summary.Updated,
		SkippedCount:         run.Summary.Skipped,
		DeletedCount:         run.Summary.Deleted,
		StartedAt:            run.StartedAt,
		CompletedAt:          run.CompletedAt,
	}
	return row
}

// SaveRun upserts the run record and replaces its target rows.
func (r *RunRepo) SaveRun(ctx context.Context, run *propagation.Run) error {
	row := runRow(run)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "cancelled", "error",
				"created_count", "updated_count", "skipped_count", "deleted_count",
				"completed_at", "updated_at",
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		if len(run.Targets) == 0 {
			return nil
		}
		if err := tx.Where("run_id = ?", run.ID).Delete(&model.PropagationRunTarget{}).Error; err != nil {
			return err
		}
		targets := make([]model.PropagationRunTarget, 0, len(run.Targets))
		for _, t := range run.Targets {
			targets = append(targets, model.PropagationRunTarget{
				RunID:        run.ID,
				TenantID:     t.TenantID,
				CreatedCount: t.Created,
				UpdatedCount: t.Updated,
				SkippedCount: t.Skipped,
				DeletedCount: t.Deleted,
				Failed:       t.Failed,
				Error:        t.Error,
			})
		}
		return tx.Create(&targets).Error
	})
}

// GetRun loads a run with its per-target results.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*propagation.Run, error) {
	var row model.PropagationRun
	err := r.db.WithContext(ctx).Preload("Targets").First(&row, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, propagation.ErrRunNotFound
		}
		return nil, err
	}

	run := &propagation.Run{
		ID: row.ID,
		Scope: propagation.Scope{
			Kind:                 propagation.ScopeKind(row.ScopeKind),
			SourceTenantID:       row.SourceTenantID,
			TargetOrganizationID: row.TargetOrganizationID,
			Category:             feature.DataCategory(row.Category),
			DryRun:               row.DryRun,
		},
		Policy:      propagation.ConflictPolicy(row.ConflictPolicy),
		InitiatedBy: row.InitiatedBy,
		Status:      propagation.RunStatus(row.Status),
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		Cancelled:   row.Cancelled,
		Summary: propagation.Summary{
			Created: row.CreatedCount,
			Updated: row.UpdatedCount,
			Skipped: row.SkippedCount,
			Deleted: row.DeletedCount,
		},
		Error: row.Error,
	}
	for _, t := range row.Targets {
		run.Scope.TargetTenantIDs = append(run.Scope.TargetTenantIDs, t.TenantID)
		run.Targets = append(run.Targets, propagation.TargetResult{
			TenantID: t.TenantID,
			Summary: propagation.Summary{
				Created: t.CreatedCount,
				Updated: t.UpdatedCount,
				Skipped: t.SkippedCount,
				Deleted: t.DeletedCount,
			},
			Failed: t.Failed,
			Error:  t.Error,
		})
	}
	return run, nil
}

// SaveSnapshot stores the full pre-run record set for one target.
func (r *RunRepo) SaveSnapshot(ctx context.Context, runID string, tenantID uint, category feature.DataCategory, records []propagation.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	row := model.CategorySnapshot{
		RunID:    runID,
		TenantID: tenantID,
		Category: string(category),
		Payload:  string(raw),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload"}),
		}).
		Create(&row).Error
}

// GetSnapshot loads one target's pre-run record set, reporting whether
// a snapshot was taken.
func (r *RunRepo) GetSnapshot(ctx context.Context, runID string, tenantID uint) ([]propagation.Record, bool, error) {
	var row model.CategorySnapshot
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND tenant_id = ?", runID, tenantID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var records []propagation.Record
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &records); err != nil {
			return nil, false, err
		}
	}
	return records, true, nil
}
