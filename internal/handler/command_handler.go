package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/internal/store"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// BulkOverwriteCommands impersonates
// PUT /api/v10/applications/:clientId/guilds/:guild/commands. The command
// set for the guild is replaced wholesale; readers never see a partial set.
func BulkOverwriteCommands(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveBot(c)
	if err != nil {
		log.Error("Failed to resolve bot token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unauthorized(c)
	}

	// The client id in the path must belong to the authenticated tenant.
	// A mismatch is a bad request, never a 404.
	if c.Param("clientId") != tenant.ClientID {
		prometheus.RecordInvalidRequest("client_id_mismatch")
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "client_id mismatch"})
	}

	guildID := c.Param("guild")
	var count int64
	if err := database.GetDB().Model(&model.Guild{}).
		Where("tenant_id = ? AND id = ?", tenant.ID, guildID).
		Count(&count).Error; err != nil {
		log.Error("Failed to look up guild", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if count == 0 {
		return unknownEntity(c, "Guild")
	}

	if !hasContentType(c, echo.MIMEApplicationJSON) {
		return invalidBody(c)
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return invalidBody(c)
	}
	var commands []map[string]interface{}
	if err := json.Unmarshal(body, &commands); err != nil {
		return invalidBody(c)
	}

	payloads := make([][]byte, len(commands))
	for i, cmd := range commands {
		raw, err := json.Marshal(cmd)
		if err != nil {
			return invalidBody(c)
		}
		payloads[i] = raw
	}

	defer prometheus.TrackDBOperation("replace")(time.Now())
	registered, err := store.ReplaceCommands(database.GetDB(), tenant.ID, guildID, payloads, time.Now().UTC())
	if err != nil {
		log.Error("Failed to replace commands", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	response := make([]map[string]interface{}, len(registered))
	for i, cmd := range registered {
		entry := map[string]interface{}{}
		for k, v := range commands[i] {
			entry[k] = v
		}
		entry["id"] = cmd.ID
		entry["application_id"] = tenant.ClientID
		entry["guild_id"] = guildID
		response[i] = entry
	}

	prometheus.RecordCommandsRegistered(len(registered))
	log.Info("Commands replaced",
		zap.String("tenant_id", tenant.ID),
		zap.String("guild_id", guildID),
		zap.Int("count", len(registered)))

	return c.JSON(http.StatusOK, response)
}
