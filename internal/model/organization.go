package model

import (
	"time"

	"gorm.io/gorm"
)

// Organization groups the tenants of a chain. HeroTenantID designates
// the source-of-truth location that organization-wide propagation
// defaults to when a request omits an explicit source.
type Organization struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Name         string         `json:"name" gorm:"type:varchar(100);uniqueIndex"`
	OwnerID      uint           `json:"owner_id" gorm:"index;not null"`
	HeroTenantID uint           `json:"hero_tenant_id" gorm:"index"`
	Active       bool           `json:"active" gorm:"default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Tenants []Tenant `json:"tenants,omitempty" gorm:"foreignKey:OrganizationID"`
}
