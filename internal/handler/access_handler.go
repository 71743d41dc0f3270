package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"propagation-service/internal/access"
	"propagation-service/internal/feature"
	"propagation-service/internal/middleware"
	"propagation-service/pkg/logger"
	"propagation-service/prometheus"
)

// AccessHandler serves the feature registry and authorization checks.
type AccessHandler struct {
	evaluator   *access.Evaluator
	registry    *feature.Registry
	serviceName string
}

// NewAccessHandler constructs an AccessHandler.
func NewAccessHandler(evaluator *access.Evaluator, registry *feature.Registry, serviceName string) *AccessHandler {
	return &AccessHandler{evaluator: evaluator, registry: registry, serviceName: serviceName}
}

// ListFeatures returns the canonical feature registry. Client-side
// gating mirrors are generated from this response so feature names
// cannot drift between layers.
func (h *AccessHandler) ListFeatures(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"features": h.registry.All(),
	})
}

// CheckAccess answers "can I do this" for the calling principal. A
// denial is still a 200: the decision payload, not the status code,
// drives the caller's upgrade or permission prompt.
func (h *AccessHandler) CheckAccess(c echo.Context) error {
	log := logger.FromEcho(c)

	principal, ok := middleware.PrincipalFromEcho(c)
	if !ok {
		log.Error("Failed to get principal from context")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	featureID := c.QueryParam("feature")
	if featureID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "feature is required"})
	}

	var tenantID uint
	if raw := c.QueryParam("tenant_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tenant_id"})
		}
		tenantID = uint(parsed)
	}

	decision := h.evaluator.Authorize(principal, featureID, tenantID)
	prometheus.AccessDecisionCounter.WithLabelValues(h.serviceName, featureID, strconv.FormatBool(decision.Allowed)).Inc()
	log.Debug("access decision",
		zap.String("feature", featureID),
		zap.Uint("tenant_id", tenantID),
		zap.Bool("allowed", decision.Allowed),
		zap.String("reason", decision.Reason))
	return c.JSON(http.StatusOK, decision)
}
