package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"propagation-service/pkg/database"
)

// HealthCheck handles the health check endpoint
func HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":  "healthy",
		"service": "propagation-service",
	})
}

// ReadyCheck reports readiness including database connectivity
func ReadyCheck(c echo.Context) error {
	db := database.GetDB()
	if db == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "database not initialized"})
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB.PingContext(c.Request().Context()) != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "database unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
