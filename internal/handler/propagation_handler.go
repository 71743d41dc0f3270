package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"propagation-service/internal/feature"
	"propagation-service/internal/middleware"
	"propagation-service/internal/propagation"
	"propagation-service/pkg/logger"
	"propagation-service/prometheus"
)

// PropagationHandler exposes plan, execute, rollback and cancel for
// propagation runs.
type PropagationHandler struct {
	engine      *propagation.Engine
	serviceName string
}

// NewPropagationHandler constructs a PropagationHandler.
func NewPropagationHandler(engine *propagation.Engine, serviceName string) *PropagationHandler {
	return &PropagationHandler{engine: engine, serviceName: serviceName}
}

// propagationRequest is the wire form of a propagation request. Note
// that platform reach has its own named confirmation field; it is never
// implied by an absent tenant or organization ID.
type propagationRequest struct {
	ScopeKind            string `json:"scope_kind"`
	SourceTenantID       uint   `json:"source_tenant_id"`
	TargetTenantIDs      []uint `json:"target_tenant_ids"`
	TargetOrganizationID uint   `json:"target_organization_id"`
	ConfirmPlatformWide  bool   `json:"confirm_platform_wide"`
	DataCategory         string `json:"data_category"`
	ConflictPolicy       string `json:"conflict_policy"`
	DryRun               bool   `json:"dry_run"`
}

func (r propagationRequest) scope() propagation.Scope {
	return propagation.Scope{
		Kind:                 propagation.ScopeKind(r.ScopeKind),
		SourceTenantID:       r.SourceTenantID,
		TargetTenantIDs:      r.TargetTenantIDs,
		TargetOrganizationID: r.TargetOrganizationID,
		ConfirmPlatformWide:  r.ConfirmPlatformWide,
		Category:             feature.DataCategory(r.DataCategory),
		DryRun:               r.DryRun,
	}
}

func (h *PropagationHandler) rejectionStatus(rej *propagation.RejectionError) int {
	prometheus.PropagationRejectionCounter.WithLabelValues(h.serviceName, string(rej.Kind)).Inc()
	if rej.Kind == propagation.RejectionUnauthorized {
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// Plan handles POST /propagations/plan: validate, authorize, resolve
// targets and return the diff preview without applying anything.
func (h *PropagationHandler) Plan(c echo.Context) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFromEcho(c)
	if !ok {
		log.Error("Failed to get principal from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req propagationRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse propagation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	plan, err := h.engine.PlanPropagation(c.Request().Context(), req.scope(), propagation.ConflictPolicy(req.ConflictPolicy), principal)
	if err != nil {
		if rej, ok := propagation.AsRejection(err); ok {
			log.Warn("Propagation plan rejected",
				zap.String("kind", string(rej.Kind)),
				zap.String("reason", rej.Reason))
			return c.JSON(h.rejectionStatus(rej), echo.Map{"error": rej.Reason, "kind": string(rej.Kind)})
		}
		log.Error("Failed to plan propagation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "propagation planning failed"})
	}

	return c.JSON(http.StatusOK, plan)
}

// Execute handles POST /propagations: plan and apply in one request,
// returning the run record.
func (h *PropagationHandler) Execute(c echo.Context) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFromEcho(c)
	if !ok {
		log.Error("Failed to get principal from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req propagationRequest
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse propagation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	plan, err := h.engine.PlanPropagation(c.Request().Context(), req.scope(), propagation.ConflictPolicy(req.ConflictPolicy), principal)
	if err != nil {
		if rej, ok := propagation.AsRejection(err); ok {
			log.Warn("Propagation rejected",
				zap.String("kind", string(rej.Kind)),
				zap.String("reason", rej.Reason))
			return c.JSON(h.rejectionStatus(rej), echo.Map{"error": rej.Reason, "kind": string(rej.Kind)})
		}
		log.Error("Failed to plan propagation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "propagation planning failed"})
	}

	run, err := h.engine.ExecutePropagation(c.Request().Context(), plan)
	if err != nil {
		log.Error("Failed to execute propagation", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "propagation execution failed"})
	}

	prometheus.PropagationRunCounter.WithLabelValues(h.serviceName, string(run.Scope.Kind), string(run.Status)).Inc()
	for _, target := range run.Targets {
		result := "succeeded"
		if target.Failed {
			result = "failed"
		}
		prometheus.PropagationTargetCounter.WithLabelValues(h.serviceName, result).Inc()
	}

	log.Info("Propagation executed",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("targets", len(run.Targets)))
	return c.JSON(http.StatusCreated, run)
}

// GetRun handles GET /propagations/:id.
func (h *PropagationHandler) GetRun(c echo.Context) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	run, err := h.engine.GetRun(c.Request().Context(), c.Param("id"), principal)
	if err != nil {
		if errors.Is(err, propagation.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "propagation run not found"})
		}
		if rej, ok := propagation.AsRejection(err); ok {
			return c.JSON(h.rejectionStatus(rej), echo.Map{"error": rej.Reason, "kind": string(rej.Kind)})
		}
		log.Error("Failed to load propagation run", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load propagation run"})
	}
	return c.JSON(http.StatusOK, run)
}

// Rollback handles POST /propagations/:id/rollback.
func (h *PropagationHandler) Rollback(c echo.Context) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	run, err := h.engine.RollbackPropagation(c.Request().Context(), c.Param("id"), principal)
	if err != nil {
		if errors.Is(err, propagation.ErrRunNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "propagation run not found"})
		}
		if rej, ok := propagation.AsRejection(err); ok {
			return c.JSON(h.rejectionStatus(rej), echo.Map{"error": rej.Reason, "kind": string(rej.Kind)})
		}
		var unavailable *propagation.RollbackUnavailableError
		if errors.As(err, &unavailable) {
			return c.JSON(http.StatusConflict, echo.Map{"error": unavailable.Reason})
		}
		log.Error("Failed to roll back propagation run", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "rollback failed"})
	}

	prometheus.PropagationRunCounter.WithLabelValues(h.serviceName, string(run.Scope.Kind), string(run.Status)).Inc()
	log.Info("Propagation rolled back", zap.String("run_id", run.ID))
	return c.JSON(http.StatusOK, run)
}

// Cancel handles POST /propagations/:id/cancel.
func (h *PropagationHandler) Cancel(c echo.Context) error {
	if _, ok := middleware.PrincipalFromEcho(c); !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if err := h.engine.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, propagation.ErrRunNotRunning) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "propagation run is not running"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel failed"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"message": "cancellation requested"})
}
