package propagation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propagation-service/internal/access"
	"propagation-service/internal/feature"
	"propagation-service/pkg/locker"
)

// Options holds engine tunables. Zero values fall back to defaults.
type Options struct {
	TargetTimeout     time.Duration
	WorkerCount       int
	RollbackRetention time.Duration
	Clock             func() time.Time
}

// Engine plans, executes and rolls back propagation runs.
type Engine struct {
	evaluator *access.Evaluator
	directory Directory
	records   RecordStore
	runs      RunStore
	locks     locker.Locker
	opts      Options
	log       *zap.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewEngine wires the engine with its collaborators.
func NewEngine(evaluator *access.Evaluator, directory Directory, records RecordStore, runs RunStore, locks locker.Locker, opts Options, log *zap.Logger) *Engine {
	if opts.TargetTimeout <= 0 {
		opts.TargetTimeout = 30 * time.Second
	}
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = 8
	}
	if opts.RollbackRetention <= 0 {
		opts.RollbackRetention = 30 * 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		evaluator: evaluator,
		directory: directory,
		records:   records,
		runs:      runs,
		locks:     locks,
		opts:      opts,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// PlanPropagation validates and authorizes a scope, resolves the target
// tenant list, and computes a per-target diff preview without writing.
//
// Platform scope requires the explicit confirmation flag and a platform
// administrator. Organization scope requires tenant admin or higher on
// the source (hero) location, or a platform bypass. Tenant scope is
// peer sharing between locations of the same owner and requires tenant
// manager or higher on the source; cross-owner targets are always
// rejected. PLATFORM_SUPPORT may plan dry runs at any scope, since a
// preview mutates nothing.
func (e *Engine) PlanPropagation(ctx context.Context, scope Scope, policy ConflictPolicy, actor access.Principal) (*Plan, error) {
	if !ValidPolicy(policy) {
		return nil, rejectf(RejectionInvalidScope, "unknown conflict policy %q", policy)
	}
	if !feature.ValidCategory(scope.Category) {
		return nil, rejectf(RejectionInvalidScope, "unknown data category %q", scope.Category)
	}
	switch scope.Kind {
	case ScopeTenant, ScopeOrganization, ScopePlatform:
	default:
		return nil, rejectf(RejectionInvalidScope, "unknown scope kind %q", scope.Kind)
	}

	// The confirmation invariant holds for every caller, bypasses
	// included: platform reach must never be implied.
	if scope.Kind == ScopePlatform && !scope.ConfirmPlatformWide {
		return nil, rejectf(RejectionMissingConfirmation, "platform-wide propagation requires confirm_platform_wide")
	}

	if scope.Kind == ScopeOrganization {
		if scope.TargetOrganizationID == 0 {
			return nil, rejectf(RejectionInvalidScope, "organization scope requires a target organization")
		}
		if scope.SourceTenantID == 0 {
			org, err := e.directory.Organization(ctx, scope.TargetOrganizationID)
			if err != nil {
				return nil, rejectf(RejectionInvalidScope, "organization %d not found", scope.TargetOrganizationID)
			}
			scope.SourceTenantID = org.HeroTenantID
		}
	}
	if scope.SourceTenantID == 0 {
		return nil, rejectf(RejectionInvalidScope, "source tenant is required")
	}

	source, err := e.directory.Tenant(ctx, scope.SourceTenantID)
	if err != nil {
		return nil, rejectf(RejectionInvalidScope, "source tenant %d not found", scope.SourceTenantID)
	}

	if err := e.authorizeScope(scope, source, actor); err != nil {
		return nil, err
	}

	targets, err := e.resolveTargets(ctx, scope, source)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, rejectf(RejectionInvalidScope, "no target tenants resolved")
	}

	scope.TargetTenantIDs = make([]uint, len(targets))
	for i, t := range targets {
		scope.TargetTenantIDs[i] = t.ID
	}

	sourceRecords, err := e.records.List(ctx, source.ID, scope.Category)
	if err != nil {
		return nil, err
	}
	rules := RulesFor(scope.Category)
	preview := make([]TargetResult, 0, len(targets))
	for _, target := range targets {
		targetRecords, err := e.records.List(ctx, target.ID, scope.Category)
		if err != nil {
			return nil, err
		}
		actions := resolveActions(sourceRecords, targetRecords, policy, rules)
		preview = append(preview, TargetResult{TenantID: target.ID, Summary: countActions(actions)})
	}

	plan := &Plan{
		ID:          uuid.New().String(),
		Scope:       scope,
		Policy:      policy,
		InitiatedBy: actor.UserID,
		Preview:     preview,
		CreatedAt:   e.opts.Clock(),
	}
	e.log.Info("propagation planned",
		zap.String("plan_id", plan.ID),
		zap.String("scope_kind", string(scope.Kind)),
		zap.String("category", string(scope.Category)),
		zap.Int("targets", len(targets)),
		zap.Bool("dry_run", scope.DryRun))
	return plan, nil
}

func (e *Engine) authorizeScope(scope Scope, source TenantInfo, actor access.Principal) error {
	// Dry-run previews mutate nothing, so the support role's view
	// bypass covers them at any scope.
	if scope.DryRun && actor.PlatformRole == feature.RolePlatformSupport {
		return nil
	}

	featureID := feature.PropagationFeatureID(scope.Category)
	decision := e.evaluator.Authorize(actor, featureID, source.ID)
	if !decision.Allowed {
		return rejectf(RejectionUnauthorized, "%s", decision.Reason)
	}

	switch scope.Kind {
	case ScopePlatform:
		if !actor.IsPlatformAdmin() {
			return rejectf(RejectionUnauthorized, "platform-wide propagation requires platform administrator")
		}
	case ScopeOrganization:
		if source.OrganizationID != scope.TargetOrganizationID {
			return rejectf(RejectionInvalidScope, "source tenant %d is not a member of organization %d", source.ID, scope.TargetOrganizationID)
		}
		if !actor.IsPlatformAdmin() {
			role, _ := actor.RoleFor(source.ID)
			if !feature.RoleMeets(role, feature.RoleTenantAdmin) {
				return rejectf(RejectionUnauthorized, "organization propagation requires tenant admin role or higher on the source location")
			}
		}
	case ScopeTenant:
		if !actor.IsPlatformAdmin() {
			role, _ := actor.RoleFor(source.ID)
			if !feature.RoleMeets(role, feature.RoleTenantManager) {
				return rejectf(RejectionUnauthorized, "peer propagation requires tenant manager role or higher on the source location")
			}
		}
	}
	return nil
}

func (e *Engine) resolveTargets(ctx context.Context, scope Scope, source TenantInfo) ([]TenantInfo, error) {
	switch scope.Kind {
	case ScopeTenant:
		targets := make([]TenantInfo, 0, len(scope.TargetTenantIDs))
		for _, id := range scope.TargetTenantIDs {
			if id == source.ID {
				continue
			}
			target, err := e.directory.Tenant(ctx, id)
			if err != nil {
				return nil, rejectf(RejectionInvalidScope, "target tenant %d not found", id)
			}
			if target.OwnerID != source.OwnerID {
				return nil, rejectf(RejectionUnauthorized, "cross-owner propagation to tenant %d is not allowed", id)
			}
			targets = append(targets, target)
		}
		return targets, nil
	case ScopeOrganization:
		members, err := e.directory.TenantsByOrganization(ctx, scope.TargetOrganizationID)
		if err != nil {
			return nil, err
		}
		return excludeTenant(members, source.ID), nil
	case ScopePlatform:
		all, err := e.directory.AllTenants(ctx)
		if err != nil {
			return nil, err
		}
		return excludeTenant(all, source.ID), nil
	}
	return nil, rejectf(RejectionInvalidScope, "unknown scope kind %q", scope.Kind)
}

func excludeTenant(tenants []TenantInfo, id uint) []TenantInfo {
	out := make([]TenantInfo, 0, len(tenants))
	for _, t := range tenants {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// ExecutePropagation applies a plan. Dry-run plans complete immediately
// with the preview as summary and zero writes. Otherwise targets are
// processed concurrently, each under a (tenant, category) lock with its
// own timeout; a target failure never aborts the remaining targets.
// The run completes when at least one target succeeded, fails when none
// did, and carries the cancelled marker when it was cancelled mid-run.
func (e *Engine) ExecutePropagation(ctx context.Context, plan *Plan) (*Run, error) {
	runID := plan.ID
	if runID == "" {
		runID = uuid.New().String()
	}
	run := &Run{
		ID:          runID,
		Scope:       plan.Scope,
		Policy:      plan.Policy,
		InitiatedBy: plan.InitiatedBy,
		Status:      StatusPending,
		StartedAt:   e.opts.Clock(),
	}
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	if plan.Scope.DryRun {
		run.Targets = append([]TargetResult(nil), plan.Preview...)
		run.Summary = plan.PreviewSummary()
		run.Status = StatusCompleted
		completed := e.opts.Clock()
		run.CompletedAt = &completed
		if err := e.runs.SaveRun(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.registerCancel(run.ID, cancel)
	defer e.unregisterCancel(run.ID)

	run.Status = StatusRunning
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	sourceRecords, err := e.records.List(runCtx, plan.Scope.SourceTenantID, plan.Scope.Category)
	if err != nil {
		return e.finishRun(ctx, run, nil, false, "loading source records: "+err.Error())
	}

	targets := plan.Scope.TargetTenantIDs
	results := make([]TargetResult, len(targets))
	sem := make(chan struct{}, e.opts.WorkerCount)
	var wg sync.WaitGroup
	for i, tenantID := range targets {
		wg.Add(1)
		go func(i int, tenantID uint) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-runCtx.Done():
				results[i] = TargetResult{TenantID: tenantID, Failed: true, Error: "cancelled before start"}
				return
			}
			if runCtx.Err() != nil {
				results[i] = TargetResult{TenantID: tenantID, Failed: true, Error: "cancelled before start"}
				return
			}
			// Once a target starts it runs to completion even if the
			// run is cancelled, to avoid partial-record corruption.
			tctx, tcancel := context.WithTimeout(context.WithoutCancel(runCtx), e.opts.TargetTimeout)
			defer tcancel()
			results[i] = e.applyTarget(tctx, run, tenantID, sourceRecords)
		}(i, tenantID)
	}
	wg.Wait() // the summary is only computed after every target is terminal

	cancelled := runCtx.Err() != nil
	return e.finishRun(ctx, run, results, cancelled, "")
}

func (e *Engine) finishRun(ctx context.Context, run *Run, results []TargetResult, cancelled bool, runErr string) (*Run, error) {
	run.Targets = results
	succeeded := 0
	for _, r := range results {
		if !r.Failed {
			succeeded++
			run.Summary.add(r.Summary)
		}
	}
	switch {
	case cancelled:
		run.Status = StatusFailed
		run.Cancelled = true
		run.Error = "cancelled"
	case runErr != "":
		run.Status = StatusFailed
		run.Error = runErr
	case succeeded > 0:
		run.Status = StatusCompleted
	default:
		run.Status = StatusFailed
		run.Error = "all targets failed"
	}
	completed := e.opts.Clock()
	run.CompletedAt = &completed

	// Persist with a context detached from cancellation so a cancelled
	// run still records its outcome.
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer saveCancel()
	if err := e.runs.SaveRun(saveCtx, run); err != nil {
		return nil, err
	}
	e.log.Info("propagation finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("targets", len(results)),
		zap.Int("succeeded", succeeded),
		zap.Bool("cancelled", run.Cancelled))
	return run, nil
}

func (e *Engine) applyTarget(ctx context.Context, run *Run, tenantID uint, sourceRecords []Record) TargetResult {
	res := TargetResult{TenantID: tenantID}

	release, err := e.locks.Acquire(ctx, tenantID, string(run.Scope.Category))
	if err != nil {
		res.Failed = true
		res.Error = err.Error()
		return res
	}
	defer release()

	targetRecords, err := e.records.List(ctx, tenantID, run.Scope.Category)
	if err != nil {
		res.Failed = true
		res.Error = "loading target records: " + err.Error()
		return res
	}

	// Organization and platform runs snapshot the pre-run state before
	// the first write so the run can be rolled back.
	if run.Scope.Kind != ScopeTenant {
		if err := e.runs.SaveSnapshot(ctx, run.ID, tenantID, run.Scope.Category, targetRecords); err != nil {
			res.Failed = true
			res.Error = "saving snapshot: " + err.Error()
			return res
		}
	}

	actions := resolveActions(sourceRecords, targetRecords, run.Policy, RulesFor(run.Scope.Category))
	var sum Summary
	for _, a := range actions {
		var err error
		switch a.kind {
		case actionCreate:
			err = e.records.Put(ctx, tenantID, run.Scope.Category, a.record)
			sum.Created++
		case actionUpdate:
			err = e.records.Put(ctx, tenantID, run.Scope.Category, a.record)
			sum.Updated++
		case actionSkip:
			sum.Skipped++
		case actionDelete:
			err = e.records.Delete(ctx, tenantID, run.Scope.Category, a.key)
			sum.Deleted++
		}
		if err != nil {
			res.Failed = true
			res.Error = "applying " + a.key + ": " + err.Error()
			return res
		}
	}
	res.Summary = sum
	return res
}

// Cancel stops a running propagation. Targets not yet started are
// abandoned; targets mid-write complete. Already-committed targets are
// not reverted (use rollback for that).
func (e *Engine) Cancel(runID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if !ok {
		return ErrRunNotRunning
	}
	cancel()
	return nil
}

func (e *Engine) registerCancel(runID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancels[runID] = cancel
	e.mu.Unlock()
}

func (e *Engine) unregisterCancel(runID string) {
	e.mu.Lock()
	delete(e.cancels, runID)
	e.mu.Unlock()
}

// GetRun returns a persisted run record. Viewing is gated like any
// other feature: platform read-only roles pass, tenant principals need
// the run-view feature on the run's source tenant.
func (e *Engine) GetRun(ctx context.Context, runID string, actor access.Principal) (*Run, error) {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	decision := e.evaluator.Authorize(actor, feature.FeaturePropagationRunView, run.Scope.SourceTenantID)
	if !decision.Allowed {
		return nil, rejectf(RejectionUnauthorized, "%s", decision.Reason)
	}
	return run, nil
}

// RollbackPropagation restores every record the run touched to its
// pre-run snapshot. Only completed, non-dry organization or platform
// runs within the retention window can be rolled back.
func (e *Engine) RollbackPropagation(ctx context.Context, runID string, actor access.Principal) (*Run, error) {
	run, err := e.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if !actor.IsPlatformAdmin() {
		decision := e.evaluator.Authorize(actor, feature.FeaturePropagationRollback, run.Scope.SourceTenantID)
		if !decision.Allowed {
			return nil, rejectf(RejectionUnauthorized, "%s", decision.Reason)
		}
	}

	if run.Status != StatusCompleted {
		return nil, &RollbackUnavailableError{Reason: "only completed runs can be rolled back"}
	}
	if run.Scope.DryRun {
		return nil, &RollbackUnavailableError{Reason: "dry runs leave nothing to roll back"}
	}
	if run.Scope.Kind == ScopeTenant {
		return nil, &RollbackUnavailableError{Reason: "rollback is only available for organization and platform scope runs"}
	}
	if run.CompletedAt == nil || e.opts.Clock().Sub(*run.CompletedAt) > e.opts.RollbackRetention {
		return nil, &RollbackUnavailableError{Reason: "rollback retention window has expired"}
	}

	// Failed targets are restored too: applyTarget commits writes one
	// by one, so a mid-loop failure leaves partially propagated data
	// behind. Only a target that failed before its snapshot was taken
	// (lock or read failure) has nothing to restore.
	for _, target := range run.Targets {
		restored, err := e.restoreTarget(ctx, run, target.TenantID)
		if err != nil {
			return nil, err
		}
		if !restored {
			if target.Failed {
				continue
			}
			return nil, &RollbackUnavailableError{Reason: "no snapshot recorded for tenant"}
		}
	}

	run.Status = StatusRolledBack
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}
	e.log.Info("propagation rolled back", zap.String("run_id", run.ID), zap.Int("targets", len(run.Targets)))
	return run, nil
}

func (e *Engine) restoreTarget(ctx context.Context, run *Run, tenantID uint) (bool, error) {
	snapshot, ok, err := e.runs.GetSnapshot(ctx, run.ID, tenantID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	release, err := e.locks.Acquire(ctx, tenantID, string(run.Scope.Category))
	if err != nil {
		return false, err
	}
	defer release()

	current, err := e.records.List(ctx, tenantID, run.Scope.Category)
	if err != nil {
		return false, err
	}
	snapshotKeys := make(map[string]struct{}, len(snapshot))
	for _, rec := range snapshot {
		snapshotKeys[rec.Key] = struct{}{}
	}
	for _, rec := range current {
		if _, ok := snapshotKeys[rec.Key]; !ok {
			if err := e.records.Delete(ctx, tenantID, run.Scope.Category, rec.Key); err != nil {
				return false, err
			}
		}
	}
	for _, rec := range snapshot {
		if err := e.records.Put(ctx, tenantID, run.Scope.Category, rec); err != nil {
			return false, err
		}
	}
	return true, nil
}
