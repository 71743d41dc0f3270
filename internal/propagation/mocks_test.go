package propagation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"propagation-service/internal/feature"
)

// In-memory fakes implementing the engine's store interfaces.

type memDirectory struct {
	tenants map[uint]TenantInfo
	orgs    map[uint]OrganizationInfo
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		tenants: make(map[uint]TenantInfo),
		orgs:    make(map[uint]OrganizationInfo),
	}
}

func (d *memDirectory) addTenant(t TenantInfo) {
	d.tenants[t.ID] = t
}

func (d *memDirectory) Tenant(_ context.Context, id uint) (TenantInfo, error) {
	t, ok := d.tenants[id]
	if !ok {
		return TenantInfo{}, errors.New("tenant not found")
	}
	return t, nil
}

func (d *memDirectory) Organization(_ context.Context, id uint) (OrganizationInfo, error) {
	o, ok := d.orgs[id]
	if !ok {
		return OrganizationInfo{}, errors.New("organization not found")
	}
	return o, nil
}

func (d *memDirectory) TenantsByOrganization(_ context.Context, organizationID uint) ([]TenantInfo, error) {
	var out []TenantInfo
	for _, t := range d.tenants {
		if t.OrganizationID == organizationID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *memDirectory) AllTenants(_ context.Context) ([]TenantInfo, error) {
	var out []TenantInfo
	for _, t := range d.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memRecords struct {
	mu   sync.Mutex
	data map[uint]map[feature.DataCategory]map[string]Record

	// failTenants forces List errors for specific tenants, to simulate
	// locked or broken targets.
	failTenants map[uint]bool
	// putBudget limits how many Puts a tenant accepts before erroring,
	// to force mid-apply failures after some writes committed.
	putBudget map[uint]int
	// putDelay slows writes down, for cancellation tests.
	putDelay time.Duration
}

func newMemRecords() *memRecords {
	return &memRecords{
		data:        make(map[uint]map[feature.DataCategory]map[string]Record),
		failTenants: make(map[uint]bool),
		putBudget:   make(map[uint]int),
	}
}

func (s *memRecords) seed(tenantID uint, category feature.DataCategory, records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[tenantID] == nil {
		s.data[tenantID] = make(map[feature.DataCategory]map[string]Record)
	}
	if s.data[tenantID][category] == nil {
		s.data[tenantID][category] = make(map[string]Record)
	}
	for _, rec := range records {
		s.data[tenantID][category][rec.Key] = rec.Clone()
	}
}

func (s *memRecords) List(_ context.Context, tenantID uint, category feature.DataCategory) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTenants[tenantID] {
		return nil, errors.New("record store unavailable")
	}
	var out []Record
	for _, rec := range s.data[tenantID][category] {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memRecords) Put(ctx context.Context, tenantID uint, category feature.DataCategory, record Record) error {
	if s.putDelay > 0 {
		select {
		case <-time.After(s.putDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTenants[tenantID] {
		return errors.New("record store unavailable")
	}
	if budget, limited := s.putBudget[tenantID]; limited {
		if budget <= 0 {
			return errors.New("record store write refused")
		}
		s.putBudget[tenantID] = budget - 1
	}
	if s.data[tenantID] == nil {
		s.data[tenantID] = make(map[feature.DataCategory]map[string]Record)
	}
	if s.data[tenantID][category] == nil {
		s.data[tenantID][category] = make(map[string]Record)
	}
	s.data[tenantID][category][record.Key] = record.Clone()
	return nil
}

func (s *memRecords) Delete(_ context.Context, tenantID uint, category feature.DataCategory, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTenants[tenantID] {
		return errors.New("record store unavailable")
	}
	delete(s.data[tenantID][category], key)
	return nil
}

// dump returns a deep copy of one tenant's category records, for
// before/after equality checks.
func (s *memRecords) dump(tenantID uint, category feature.DataCategory) []Record {
	out, _ := s.List(context.Background(), tenantID, category)
	return out
}

type memRuns struct {
	mu    sync.Mutex
	runs  map[string]Run
	snaps map[string]map[uint][]Record
}

func newMemRuns() *memRuns {
	return &memRuns{
		runs:  make(map[string]Run),
		snaps: make(map[string]map[uint][]Record),
	}
}

func (s *memRuns) SaveRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	copied.Targets = append([]TargetResult(nil), run.Targets...)
	copied.Scope.TargetTenantIDs = append([]uint(nil), run.Scope.TargetTenantIDs...)
	s.runs[run.ID] = copied
	return nil
}

func (s *memRuns) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := run
	copied.Targets = append([]TargetResult(nil), run.Targets...)
	return &copied, nil
}

func (s *memRuns) SaveSnapshot(_ context.Context, runID string, tenantID uint, _ feature.DataCategory, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snaps[runID] == nil {
		s.snaps[runID] = make(map[uint][]Record)
	}
	copied := make([]Record, len(records))
	for i, rec := range records {
		copied[i] = rec.Clone()
	}
	s.snaps[runID][tenantID] = copied
	return nil
}

func (s *memRuns) GetSnapshot(_ context.Context, runID string, tenantID uint) ([]Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records, ok := s.snaps[runID][tenantID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]Record, len(records))
	for i, rec := range records {
		copied[i] = rec.Clone()
	}
	return copied, true, nil
}

func recordsEqual(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
