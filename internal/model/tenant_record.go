package model

import "time"

// TenantRecord is one entry of a tenant's data category (a product, a
// category assignment, an hours row, ...). The payload is a jsonb
// document holding the record's scalar fields, collection fields and
// local override markers, so the conflict policies stay generic across
// categories.
type TenantRecord struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"uniqueIndex:idx_tenant_category_key;not null"`
	Category  string    `json:"category" gorm:"type:varchar(50);uniqueIndex:idx_tenant_category_key;not null"`
	RecordKey string    `json:"record_key" gorm:"type:varchar(200);uniqueIndex:idx_tenant_category_key;not null"`
	Payload   string    `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
