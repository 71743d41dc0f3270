// Package repository contains data access logic separated from the
// engine and HTTP handlers. Each repository wraps the gorm DB handle
// and translates between persistence models and engine types.
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"propagation-service/internal/feature"
	"propagation-service/internal/model"
	"propagation-service/internal/propagation"
)

// ErrTenantNotFound is returned when a tenant lookup misses.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrOrganizationNotFound is returned when an organization lookup misses.
var ErrOrganizationNotFound = errors.New("organization not found")

// DirectoryRepo resolves tenants and organization membership.
type DirectoryRepo struct {
	db *gorm.DB
}

// NewDirectoryRepo constructs a DirectoryRepo with the provided DB handle.
func NewDirectoryRepo(db *gorm.DB) *DirectoryRepo {
	return &DirectoryRepo{db: db}
}

func tenantInfo(t model.Tenant) propagation.TenantInfo {
	info := propagation.TenantInfo{
		ID:      t.ID,
		OwnerID: t.OwnerID,
		Tier:    feature.Tier(t.SubscriptionTier),
	}
	if t.OrganizationID != nil {
		info.OrganizationID = *t.OrganizationID
	}
	return info
}

// Tenant returns one active tenant.
func (r *DirectoryRepo) Tenant(ctx context.Context, id uint) (propagation.TenantInfo, error) {
	var tenant model.Tenant
	err := r.db.WithContext(ctx).Where("active = ?", true).First(&tenant, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return propagation.TenantInfo{}, ErrTenantNotFound
		}
		return propagation.TenantInfo{}, err
	}
	return tenantInfo(tenant), nil
}

// Organization returns one active organization.
func (r *DirectoryRepo) Organization(ctx context.Context, id uint) (propagation.OrganizationInfo, error) {
	var org model.Organization
	err := r.db.WithContext(ctx).Where("active = ?", true).First(&org, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return propagation.OrganizationInfo{}, ErrOrganizationNotFound
		}
		return propagation.OrganizationInfo{}, err
	}
	return propagation.OrganizationInfo{ID: org.ID, OwnerID: org.OwnerID, HeroTenantID: org.HeroTenantID}, nil
}

// TenantsByOrganization returns every active member tenant of an organization.
func (r *DirectoryRepo) TenantsByOrganization(ctx context.Context, organizationID uint) ([]propagation.TenantInfo, error) {
	var tenants []model.Tenant
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND active = ?", organizationID, true).
		Order("id").
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	out := make([]propagation.TenantInfo, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantInfo(t))
	}
	return out, nil
}

// AllTenants returns every active tenant on the platform.
func (r *DirectoryRepo) AllTenants(ctx context.Context) ([]propagation.TenantInfo, error) {
	var tenants []model.Tenant
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id").Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	out := make([]propagation.TenantInfo, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, tenantInfo(t))
	}
	return out, nil
}
