package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents one retail location. Tenants may stand alone or
// belong to an organization (a chain of locations under one owner).
type Tenant struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	Name             string         `json:"name" gorm:"type:varchar(100);uniqueIndex"`
	Description      string         `json:"description" gorm:"type:text"`
	OwnerID          uint           `json:"owner_id" gorm:"index;not null"`
	OrganizationID   *uint          `json:"organization_id,omitempty" gorm:"index"`
	SubscriptionTier string         `json:"subscription_tier" gorm:"type:varchar(50);not null;default:'google_only'"`
	Active           bool           `json:"active" gorm:"default:true"`
	Settings         string         `json:"settings" gorm:"type:jsonb"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}
