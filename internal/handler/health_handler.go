package handler

import (
	"net/http"

	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/labstack/echo/v4"
)

// HealthCheck reports service liveness and database connectivity.
func HealthCheck(c echo.Context) error {
	dbStatus := "up"
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err != nil || sqlDB.Ping() != nil {
			dbStatus = "down"
		}
	} else {
		dbStatus = "down"
	}

	status := http.StatusOK
	if dbStatus != "up" {
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, echo.Map{
		"service":  "fake-discord",
		"status":   "ok",
		"database": dbStatus,
	})
}
