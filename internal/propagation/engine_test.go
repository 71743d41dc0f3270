package propagation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"propagation-service/internal/access"
	"propagation-service/internal/feature"
	"propagation-service/pkg/locker"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine  *Engine
	dir     *memDirectory
	records *memRecords
	runs    *memRuns
	locks   *locker.MemoryLocker
	clock   *fakeClock
}

// newTestEnv builds an engine over an organization of three locations
// (tenant 1 is the hero) owned by user 10, plus a standalone tenant 4
// owned by user 20.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := newMemDirectory()
	dir.addTenant(TenantInfo{ID: 1, OwnerID: 10, OrganizationID: 50, Tier: feature.TierOrganization})
	dir.addTenant(TenantInfo{ID: 2, OwnerID: 10, OrganizationID: 50, Tier: feature.TierOrganization})
	dir.addTenant(TenantInfo{ID: 3, OwnerID: 10, OrganizationID: 50, Tier: feature.TierOrganization})
	dir.addTenant(TenantInfo{ID: 4, OwnerID: 20, Tier: feature.TierProfessional})
	dir.orgs[50] = OrganizationInfo{ID: 50, OwnerID: 10, HeroTenantID: 1}

	records := newMemRecords()
	runs := newMemRuns()
	locks := locker.NewMemoryLocker()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	engine := NewEngine(
		access.NewEvaluator(feature.Default()),
		dir, records, runs,
		locks,
		Options{TargetTimeout: 5 * time.Second, WorkerCount: 4, Clock: clock.Now},
		nil,
	)
	return &testEnv{engine: engine, dir: dir, records: records, runs: runs, locks: locks, clock: clock}
}

func orgAdmin() access.Principal {
	return access.Principal{
		UserID:      10,
		TenantRoles: map[uint]feature.TenantRole{1: feature.RoleTenantAdmin},
		TenantTiers: map[uint]feature.Tier{1: feature.TierOrganization},
	}
}

func sourceManager() access.Principal {
	return access.Principal{
		UserID:      11,
		TenantRoles: map[uint]feature.TenantRole{1: feature.RoleTenantManager},
		TenantTiers: map[uint]feature.Tier{1: feature.TierOrganization},
	}
}

func platformAdmin() access.Principal {
	return access.Principal{UserID: 1, PlatformRole: feature.RolePlatformAdmin}
}

func platformSupport() access.Principal {
	return access.Principal{UserID: 2, PlatformRole: feature.RolePlatformSupport}
}

func expectRejection(t *testing.T, err error, kind RejectionKind) *RejectionError {
	t.Helper()
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if rej.Kind != kind {
		t.Fatalf("rejection kind = %s, want %s (reason: %s)", rej.Kind, kind, rej.Reason)
	}
	return rej
}

func TestPlanRejectsMissingPlatformConfirmation(t *testing.T) {
	env := newTestEnv(t)

	// Without the named confirmation flag, platform reach is rejected
	// for every caller, platform administrators included.
	scope := PlatformScope(1, feature.CategoryCategories, false, false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, platformAdmin())
	expectRejection(t, err, RejectionMissingConfirmation)

	scope.DryRun = true
	_, err = env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, platformSupport())
	expectRejection(t, err, RejectionMissingConfirmation)
}

func TestPlanPlatformScopeRequiresPlatformAdmin(t *testing.T) {
	env := newTestEnv(t)

	scope := PlatformScope(1, feature.CategoryCategories, true, false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	expectRejection(t, err, RejectionUnauthorized)

	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, platformAdmin())
	if err != nil {
		t.Fatalf("platform admin with confirmation rejected: %v", err)
	}
	if len(plan.Scope.TargetTenantIDs) != 3 {
		t.Fatalf("platform scope targets = %v, want every tenant except the source", plan.Scope.TargetTenantIDs)
	}
}

func TestPlanRejectsUnknownCategoryAndPolicy(t *testing.T) {
	env := newTestEnv(t)

	scope := TenantScope(1, []uint{2}, feature.DataCategory("menus"), false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, sourceManager())
	expectRejection(t, err, RejectionInvalidScope)

	scope = TenantScope(1, []uint{2}, feature.CategoryProducts, false)
	_, err = env.engine.PlanPropagation(context.Background(), scope, ConflictPolicy("force"), sourceManager())
	expectRejection(t, err, RejectionInvalidScope)
}

func TestPlanRejectsCrossOwnerTargets(t *testing.T) {
	env := newTestEnv(t)

	scope := TenantScope(1, []uint{4}, feature.CategoryProducts, false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, sourceManager())
	rej := expectRejection(t, err, RejectionUnauthorized)
	if rej.Reason == "" {
		t.Fatal("cross-owner rejection must carry a reason")
	}
}

func TestPlanRejectsEmptyTargetList(t *testing.T) {
	env := newTestEnv(t)

	// The source itself is excluded, leaving nothing to propagate to.
	scope := TenantScope(1, []uint{1}, feature.CategoryProducts, false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, sourceManager())
	expectRejection(t, err, RejectionInvalidScope)
}

func TestPlanRejectsInsufficientTier(t *testing.T) {
	env := newTestEnv(t)
	env.dir.addTenant(TenantInfo{ID: 5, OwnerID: 20, Tier: feature.TierProfessional})

	actor := access.Principal{
		UserID:      20,
		TenantRoles: map[uint]feature.TenantRole{4: feature.RoleTenantOwner, 5: feature.RoleTenantOwner},
		TenantTiers: map[uint]feature.Tier{4: feature.TierProfessional, 5: feature.TierProfessional},
	}
	scope := TenantScope(4, []uint{5}, feature.CategoryProducts, false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, actor)
	rej := expectRejection(t, err, RejectionUnauthorized)
	if rej.Reason != "requires organization tier or higher" {
		t.Fatalf("reason = %q", rej.Reason)
	}
}

func TestPlanOrganizationScopeRequiresAdminRole(t *testing.T) {
	env := newTestEnv(t)

	scope := OrganizationScope(1, 50, feature.CategoryBusinessHours, false)
	_, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, sourceManager())
	expectRejection(t, err, RejectionUnauthorized)

	if _, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin()); err != nil {
		t.Fatalf("org admin rejected: %v", err)
	}
}

func TestPlanDefaultsOrganizationSourceToHero(t *testing.T) {
	env := newTestEnv(t)

	scope := OrganizationScope(0, 50, feature.CategoryBusinessHours, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if plan.Scope.SourceTenantID != 1 {
		t.Fatalf("source = %d, want hero tenant 1", plan.Scope.SourceTenantID)
	}
	if len(plan.Scope.TargetTenantIDs) != 2 {
		t.Fatalf("targets = %v, want the two non-hero members", plan.Scope.TargetTenantIDs)
	}
}

func TestSupportMayPlanDryRunOnly(t *testing.T) {
	env := newTestEnv(t)

	dry := OrganizationScope(1, 50, feature.CategoryProducts, true)
	if _, err := env.engine.PlanPropagation(context.Background(), dry, PolicyOverwrite, platformSupport()); err != nil {
		t.Fatalf("support dry-run preview rejected: %v", err)
	}

	live := OrganizationScope(1, 50, feature.CategoryProducts, false)
	_, err := env.engine.PlanPropagation(context.Background(), live, PolicyOverwrite, platformSupport())
	expectRejection(t, err, RejectionUnauthorized)
}

func TestDryRunProducesSummaryWithoutWrites(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts,
		rec("p1", map[string]string{"name": "Widget"}),
		rec("p2", map[string]string{"name": "Gadget"}))
	env.records.seed(2, feature.CategoryProducts,
		rec("p1", map[string]string{"name": "Old Widget"}))

	before2 := env.records.dump(2, feature.CategoryProducts)
	before3 := env.records.dump(3, feature.CategoryProducts)

	scope := OrganizationScope(1, 50, feature.CategoryProducts, true)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", run.Status)
	}
	if run.Summary.Total() == 0 {
		t.Fatal("dry run must still report a summary")
	}
	if !recordsEqual(before2, env.records.dump(2, feature.CategoryProducts)) ||
		!recordsEqual(before3, env.records.dump(3, feature.CategoryProducts)) {
		t.Fatal("dry run must leave target data unchanged")
	}
}

func TestExecuteOverwriteUpdatesEveryTarget(t *testing.T) {
	env := newTestEnv(t)
	source := rec("hours", map[string]string{"mon": "9-17", "sat": "10-14"})
	env.records.seed(1, feature.CategoryBusinessHours, source)
	env.records.seed(2, feature.CategoryBusinessHours, rec("hours", map[string]string{"mon": "8-16"}))
	env.records.seed(3, feature.CategoryBusinessHours, rec("hours", map[string]string{"mon": "10-18"}))

	scope := OrganizationScope(1, 50, feature.CategoryBusinessHours, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("status = %s", run.Status)
	}
	if run.Summary.Updated != 2 || run.Summary.Created != 0 {
		t.Fatalf("summary = %+v, want updated:2", run.Summary)
	}
	for _, tenantID := range []uint{2, 3} {
		got := env.records.dump(tenantID, feature.CategoryBusinessHours)
		if len(got) != 1 || !got[0].Equal(source) {
			t.Fatalf("tenant %d records = %+v, want source copy", tenantID, got)
		}
	}
}

func TestSummaryReconciles(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts,
		rec("p1", map[string]string{"name": "Widget"}),
		rec("p2", map[string]string{"name": "Gadget"}),
		rec("p3", map[string]string{"name": "Gizmo"}))
	env.records.seed(2, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))
	env.records.seed(3, feature.CategoryProducts, rec("stale", map[string]string{"name": "Stale"}))

	scope := OrganizationScope(1, 50, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	// Every per-item outcome lands in exactly one counter, so the run
	// summary equals the sum over targets, and each target's total
	// equals the number of items handled for it.
	var fromTargets Summary
	for _, target := range run.Targets {
		fromTargets.add(target.Summary)
	}
	if fromTargets != run.Summary {
		t.Fatalf("run summary %+v != target sum %+v", run.Summary, fromTargets)
	}
	// Tenant 2: 3 source items (1 update + 2 creates). Tenant 3: 3
	// creates + 1 delete of the stale record.
	if run.Summary.Total() != 7 {
		t.Fatalf("summary total = %d, want 7 (%+v)", run.Summary.Total(), run.Summary)
	}
}

func TestPartialFailureTolerance(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))

	scope := OrganizationScope(1, 50, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	env.records.mu.Lock()
	env.records.failTenants[3] = true
	env.records.mu.Unlock()

	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed despite one failed target", run.Status)
	}
	failed := 0
	for _, target := range run.Targets {
		if target.Failed {
			failed++
			if target.Error == "" {
				t.Error("failed target must carry an error")
			}
			if target.Summary.Total() != 0 {
				t.Error("failed target must report zero counts")
			}
		}
	}
	if failed != 1 {
		t.Fatalf("failed targets = %d, want 1", failed)
	}
}

func TestLockedTargetTimesOutAndRunCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))
	env.engine.opts.TargetTimeout = 50 * time.Millisecond

	// Another operation holds tenant 2's category lock for the whole
	// run, so that target times out waiting while tenant 3 proceeds.
	release, err := env.locks.Acquire(context.Background(), 2, string(feature.CategoryProducts))
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	scope := OrganizationScope(1, 50, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed despite the timed-out target", run.Status)
	}
	for _, target := range run.Targets {
		switch target.TenantID {
		case 2:
			if !target.Failed || target.Error == "" {
				t.Errorf("locked target = %+v, want failed with a timeout error", target)
			}
		case 3:
			if target.Failed || target.Created != 1 {
				t.Errorf("unlocked target = %+v, want one created record", target)
			}
		}
	}
}

func TestTotalFailure(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))

	scope := OrganizationScope(1, 50, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	env.records.mu.Lock()
	env.records.failTenants[2] = true
	env.records.failTenants[3] = true
	env.records.mu.Unlock()

	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if run.Status != StatusFailed {
		t.Fatalf("status = %s, want failed when zero targets succeed", run.Status)
	}
}

func TestCancellationAbandonsUnstartedTargets(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))
	env.records.putDelay = 100 * time.Millisecond

	// Serialize targets so cancellation lands between them.
	env.engine.opts.WorkerCount = 1

	scope := OrganizationScope(1, 50, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = env.engine.Cancel(plan.ID)
	}()

	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if !run.Cancelled {
		t.Fatal("run must carry the cancelled marker")
	}
	if run.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", run.Status)
	}
	succeeded, abandoned := 0, 0
	for _, target := range run.Targets {
		if !target.Failed {
			succeeded++
		} else if target.Error == "cancelled before start" {
			abandoned++
		}
	}
	if succeeded == 0 {
		t.Error("the in-flight target must complete, not be interrupted mid-write")
	}
	if abandoned == 0 {
		t.Error("targets not yet started must be abandoned")
	}
}

func TestCancelUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	if err := env.engine.Cancel("no-such-run"); !errors.Is(err, ErrRunNotRunning) {
		t.Fatalf("err = %v, want ErrRunNotRunning", err)
	}
}

func TestGetRunNotFound(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.GetRun(context.Background(), "missing", platformAdmin()); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestGetRunGatedByViewFeature(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))
	run := executeOrgRun(t, env, PolicyOverwrite)

	// A principal with no standing on the source tenant cannot read
	// the run; platform support can, since run view is read-only.
	stranger := access.Principal{UserID: 99}
	_, err := env.engine.GetRun(context.Background(), run.ID, stranger)
	expectRejection(t, err, RejectionUnauthorized)

	got, err := env.engine.GetRun(context.Background(), run.ID, platformSupport())
	if err != nil {
		t.Fatalf("support denied run view: %v", err)
	}
	if got.ID != run.ID || got.Status != StatusCompleted {
		t.Fatalf("run = %+v", got)
	}

	if _, err := env.engine.GetRun(context.Background(), run.ID, orgAdmin()); err != nil {
		t.Fatalf("source tenant admin denied run view: %v", err)
	}
}

func executeOrgRun(t *testing.T, env *testEnv, policy ConflictPolicy) *Run {
	t.Helper()
	scope := OrganizationScope(1, 50, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, policy, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s", run.Status)
	}
	return run
}

func TestRollbackRestoresExactPriorState(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts,
		rec("p1", map[string]string{"name": "Widget"}),
		rec("p2", map[string]string{"name": "Gadget"}))
	env.records.seed(2, feature.CategoryProducts,
		rec("p1", map[string]string{"name": "Local Widget"}),
		rec("local", map[string]string{"name": "Local Only"}))

	before2 := env.records.dump(2, feature.CategoryProducts)
	before3 := env.records.dump(3, feature.CategoryProducts)

	run := executeOrgRun(t, env, PolicyOverwrite)
	if recordsEqual(before2, env.records.dump(2, feature.CategoryProducts)) {
		t.Fatal("overwrite run should have changed tenant 2")
	}

	rolledBack, err := env.engine.RollbackPropagation(context.Background(), run.ID, orgAdmin())
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if rolledBack.Status != StatusRolledBack {
		t.Fatalf("status = %s, want rolled_back", rolledBack.Status)
	}
	if !recordsEqual(before2, env.records.dump(2, feature.CategoryProducts)) {
		t.Fatal("tenant 2 not restored to pre-run state")
	}
	if !recordsEqual(before3, env.records.dump(3, feature.CategoryProducts)) {
		t.Fatal("tenant 3 not restored to pre-run state")
	}
}

func TestRollbackRestoresPartiallyFailedTarget(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts,
		rec("p1", map[string]string{"name": "Chain Widget"}),
		rec("p2", map[string]string{"name": "Gadget"}))
	env.records.seed(2, feature.CategoryProducts, rec("p1", map[string]string{"name": "Local Widget"}))

	before2 := env.records.dump(2, feature.CategoryProducts)

	// Tenant 2 accepts exactly one write then refuses: p1 is already
	// overwritten when the target fails mid-apply.
	env.records.mu.Lock()
	env.records.putBudget[2] = 1
	env.records.mu.Unlock()

	run := executeOrgRun(t, env, PolicyOverwrite)

	sawFailed := false
	for _, target := range run.Targets {
		if target.TenantID == 2 {
			sawFailed = target.Failed
		}
	}
	if !sawFailed {
		t.Fatal("tenant 2 should have failed mid-apply")
	}
	got := env.records.dump(2, feature.CategoryProducts)
	if recordsEqual(before2, got) {
		t.Fatal("tenant 2 should hold partially propagated data before rollback")
	}

	env.records.mu.Lock()
	delete(env.records.putBudget, 2)
	env.records.mu.Unlock()

	rolledBack, err := env.engine.RollbackPropagation(context.Background(), run.ID, orgAdmin())
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if rolledBack.Status != StatusRolledBack {
		t.Fatalf("status = %s, want rolled_back", rolledBack.Status)
	}
	if !recordsEqual(before2, env.records.dump(2, feature.CategoryProducts)) {
		t.Fatal("failed target's partial writes must be restored to the pre-run snapshot")
	}
	if len(env.records.dump(3, feature.CategoryProducts)) != 0 {
		t.Fatal("tenant 3 not restored to its empty pre-run state")
	}
}

func TestRollbackOutsideRetentionWindow(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))

	run := executeOrgRun(t, env, PolicyOverwrite)
	env.clock.Advance(31 * 24 * time.Hour)

	_, err := env.engine.RollbackPropagation(context.Background(), run.ID, orgAdmin())
	var unavailable *RollbackUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want RollbackUnavailableError", err)
	}
}

func TestRollbackUnavailableForTenantScope(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))

	scope := TenantScope(1, []uint{2}, feature.CategoryProducts, false)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	_, err = env.engine.RollbackPropagation(context.Background(), run.ID, orgAdmin())
	var unavailable *RollbackUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want RollbackUnavailableError for tenant scope", err)
	}
}

func TestRollbackUnavailableForDryRun(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Widget"}))

	scope := OrganizationScope(1, 50, feature.CategoryProducts, true)
	plan, err := env.engine.PlanPropagation(context.Background(), scope, PolicyOverwrite, orgAdmin())
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	run, err := env.engine.ExecutePropagation(context.Background(), plan)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	_, err = env.engine.RollbackPropagation(context.Background(), run.ID, orgAdmin())
	var unavailable *RollbackUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want RollbackUnavailableError for dry run", err)
	}
}

func TestMergeHonorsLocalOverrideAcrossRun(t *testing.T) {
	env := newTestEnv(t)
	env.records.seed(1, feature.CategoryProducts, rec("p1", map[string]string{"name": "Chain Name"}))
	env.records.seed(2, feature.CategoryProducts, Record{
		Key:            "p1",
		Scalars:        map[string]string{"name": "Local Name"},
		LocalOverrides: []string{"name"},
	})

	run := executeOrgRun(t, env, PolicyMerge)

	// Tenant 2 pinned the field, so its item is skipped; tenant 3 had
	// no record, so it gets a create.
	if run.Summary.Skipped != 1 || run.Summary.Created != 1 {
		t.Fatalf("summary = %+v, want skipped:1 created:1", run.Summary)
	}
	got := env.records.dump(2, feature.CategoryProducts)
	if len(got) != 1 || got[0].Scalars["name"] != "Local Name" {
		t.Fatalf("tenant 2 record = %+v, local override must survive", got)
	}
}
