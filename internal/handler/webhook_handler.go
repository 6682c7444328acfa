package handler

import (
	"net/http"
	"time"

	"github.com/glideapps/fake-discord/internal/middleware"
	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/internal/resolver"
	"github.com/glideapps/fake-discord/internal/store"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// resolveApplication resolves a tenant from the :clientId path parameter.
// Webhook endpoints carry no Authorization header; the client id in the path
// is the whole credential, exactly like Discord's webhook URLs.
func resolveApplication(c echo.Context) (*model.Tenant, error) {
	tenant, err := resolver.ByClientID(database.GetDB(), c.Param("clientId"))
	if err != nil {
		return nil, err
	}
	if tenant != nil {
		middleware.SetTenantID(c, tenant.ID)
	}
	return tenant, nil
}

// EditInteractionResponse impersonates
// PATCH /api/v10/webhooks/:clientId/:token/messages/@original. Repeated
// PATCHes for the same interaction token upsert a single row.
func EditInteractionResponse(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveApplication(c)
	if err != nil {
		log.Error("Failed to resolve application", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unknownEntity(c, "Application")
	}

	body, payload, err := readJSONBody(c)
	if err != nil {
		return invalidBody(c)
	}

	defer prometheus.TrackDBOperation("upsert")(time.Now())
	responseID, err := store.UpsertInteractionResponse(
		database.GetDB(), tenant.ID, c.Param("token"), body, time.Now().UTC())
	if err != nil {
		log.Error("Failed to upsert interaction response", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	prometheus.RecordInteractionOperation("respond")
	return c.JSON(http.StatusOK, echo.Map{
		"id":      responseID,
		"content": contentOf(payload),
	})
}

// SendFollowup impersonates POST /api/v10/webhooks/:clientId/:token. Any
// number of followups may pile up behind one interaction token.
func SendFollowup(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveApplication(c)
	if err != nil {
		log.Error("Failed to resolve application", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unknownEntity(c, "Application")
	}

	body, payload, err := readJSONBody(c)
	if err != nil {
		return invalidBody(c)
	}

	followupID, err := store.GenerateID(database.GetDB(), tenant.ID, "followup")
	if err != nil {
		log.Error("Failed to generate followup id", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	followup := model.Followup{
		TenantID:         tenant.ID,
		ID:               followupID,
		InteractionToken: c.Param("token"),
		Payload:          body,
		CreatedAt:        time.Now().UTC(),
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&followup).Error; err != nil {
		log.Error("Failed to store followup", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	prometheus.RecordInteractionOperation("followup")
	return c.JSON(http.StatusOK, echo.Map{
		"id":         followup.ID,
		"channel_id": "chan-followup",
		"content":    contentOf(payload),
	})
}
