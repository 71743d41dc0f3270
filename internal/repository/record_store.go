package repository

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"propagation-service/internal/feature"
	"propagation-service/internal/model"
	"propagation-service/internal/propagation"
)

// recordPayload is the jsonb document stored per tenant record.
type recordPayload struct {
	Scalars        map[string]string   `json:"scalars,omitempty"`
	Collections    map[string][]string `json:"collections,omitempty"`
	LocalOverrides []string            `json:"local_overrides,omitempty"`
}

// RecordRepo stores tenant category records.
type RecordRepo struct {
	db *gorm.DB
}

// NewRecordRepo constructs a RecordRepo with the provided DB handle.
func NewRecordRepo(db *gorm.DB) *RecordRepo {
	return &RecordRepo{db: db}
}

func toRecord(row model.TenantRecord) (propagation.Record, error) {
	var payload recordPayload
	if row.Payload != "" {
		if err := json.Unmarshal([]byte(row.Payload), &payload); err != nil {
			return propagation.Record{}, err
		}
	}
	return propagation.Record{
		Key:            row.RecordKey,
		Scalars:        payload.Scalars,
		Collections:    payload.Collections,
		LocalOverrides: payload.LocalOverrides,
	}, nil
}

func toPayload(rec propagation.Record) (string, error) {
	raw, err := json.Marshal(recordPayload{
		Scalars:        rec.Scalars,
		Collections:    rec.Collections,
		LocalOverrides: rec.LocalOverrides,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// List returns every record of one tenant's data category.
func (r *RecordRepo) List(ctx context.Context, tenantID uint, category feature.DataCategory) ([]propagation.Record, error) {
	var rows []model.TenantRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND category = ?", tenantID, string(category)).
		Order("record_key").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]propagation.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Put creates or replaces one record.
func (r *RecordRepo) Put(ctx context.Context, tenantID uint, category feature.DataCategory, record propagation.Record) error {
	payload, err := toPayload(record)
	if err != nil {
		return err
	}
	row := model.TenantRecord{
		TenantID:  tenantID,
		Category:  string(category),
		RecordKey: record.Key,
		Payload:   payload,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "category"}, {Name: "record_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&row).Error
}

// Delete removes one record; deleting an absent key is not an error.
func (r *RecordRepo) Delete(ctx context.Context, tenantID uint, category feature.DataCategory, key string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND category = ? AND record_key = ?", tenantID, string(category), key).
		Delete(&model.TenantRecord{}).Error
}
