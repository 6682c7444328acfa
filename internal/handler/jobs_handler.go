package handler

import (
	"net/http"
	"time"

	"github.com/glideapps/fake-discord/internal/scheduler"
	"github.com/glideapps/fake-discord/pkg/config"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var tenantTTL = 24 * time.Hour

// InitJobsHandler configures the manually-triggered job endpoints.
func InitJobsHandler(cfg *config.Config) {
	tenantTTL = cfg.Tenant.TTL
}

// RunCleanupJob triggers the cleanup-old-tenants sweep on demand so drivers
// don't have to wait for the top of the hour.
func RunCleanupJob(c echo.Context) error {
	log := logger.FromContext(c)

	summary, err := scheduler.RunCleanup(database.GetDB(), tenantTTL)
	if err != nil {
		log.Error("Cleanup job failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	log.Info("Cleanup job completed", zap.Int("deleted", summary.Deleted))
	return c.JSON(http.StatusOK, summary)
}
