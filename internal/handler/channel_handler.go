package handler

import (
	"errors"
	"net/http"
	"net/url"
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
	"gorm.io/gorm"
)

// resolveBot resolves the tenant from the Authorization: Bot header and
// records it on the request context. A nil tenant with a nil error means the
// caller should answer 401.
func resolveBot(c echo.Context) (*model.Tenant, error) {
	tenant, err := resolver.FromBotHeader(database.GetDB(), c.Request().Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	if tenant != nil {
		middleware.SetTenantID(c, tenant.ID)
	}
	return tenant, nil
}

func findChannel(tenantID, channelID string) (*model.Channel, error) {
	var channel model.Channel
	err := database.GetDB().
		Where("tenant_id = ? AND id = ?", tenantID, channelID).
		First(&channel).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &channel, nil
}

// GetChannel impersonates GET /api/v10/channels/:channel.
func GetChannel(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveBot(c)
	if err != nil {
		log.Error("Failed to resolve bot token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unauthorized(c)
	}

	channel, err := findChannel(tenant.ID, c.Param("channel"))
	if err != nil {
		log.Error("Failed to look up channel", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if channel == nil {
		return unknownEntity(c, "Channel")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"id":       channel.ID,
		"guild_id": channel.GuildID,
		"name":     channel.Name,
		"type":     0,
	})
}

// SendMessage impersonates POST /api/v10/channels/:channel/messages. The
// entire request body is persisted verbatim as the message payload.
func SendMessage(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveBot(c)
	if err != nil {
		log.Error("Failed to resolve bot token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unauthorized(c)
	}

	channel, err := findChannel(tenant.ID, c.Param("channel"))
	if err != nil {
		log.Error("Failed to look up channel", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if channel == nil {
		return unknownEntity(c, "Channel")
	}

	body, payload, err := readJSONBody(c)
	if err != nil {
		return invalidBody(c)
	}

	messageID, err := store.GenerateID(database.GetDB(), tenant.ID, "msg")
	if err != nil {
		log.Error("Failed to generate message id", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	message := model.Message{
		TenantID:  tenant.ID,
		ID:        messageID,
		ChannelID: channel.ID,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&message).Error; err != nil {
		log.Error("Failed to store message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	prometheus.RecordMessageOperation("send")
	return c.JSON(http.StatusOK, echo.Map{
		"id":         message.ID,
		"channel_id": channel.ID,
		"content":    contentOf(payload),
	})
}

// EditMessage impersonates PATCH /api/v10/channels/:channel/messages/:message.
// The previous payload moves into the edit history and the new payload
// replaces it, atomically.
func EditMessage(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveBot(c)
	if err != nil {
		log.Error("Failed to resolve bot token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unauthorized(c)
	}

	body, payload, err := readJSONBody(c)
	if err != nil {
		return invalidBody(c)
	}

	messageID := c.Param("message")
	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := store.EditMessage(database.GetDB(), tenant.ID, messageID, body, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return unknownEntity(c, "Message")
		}
		log.Error("Failed to edit message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	prometheus.RecordMessageOperation("edit")
	return c.JSON(http.StatusOK, echo.Map{
		"id":         messageID,
		"channel_id": c.Param("channel"),
		"content":    contentOf(payload),
	})
}

// AddReaction impersonates
// PUT /api/v10/channels/:channel/messages/:message/reactions/:emoji/@me.
func AddReaction(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolveBot(c)
	if err != nil {
		log.Error("Failed to resolve bot token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unauthorized(c)
	}

	channel, err := findChannel(tenant.ID, c.Param("channel"))
	if err != nil {
		log.Error("Failed to look up channel", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if channel == nil {
		return unknownEntity(c, "Channel")
	}

	messageID := c.Param("message")
	var count int64
	if err := database.GetDB().Model(&model.Message{}).
		Where("tenant_id = ? AND id = ?", tenant.ID, messageID).
		Count(&count).Error; err != nil {
		log.Error("Failed to look up message", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if count == 0 {
		return unknownEntity(c, "Message")
	}

	emoji := c.Param("emoji")
	if decoded, decErr := url.PathUnescape(emoji); decErr == nil {
		emoji = decoded
	}

	reaction := model.Reaction{
		TenantID:  tenant.ID,
		ChannelID: channel.ID,
		MessageID: messageID,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&reaction).Error; err != nil {
		log.Error("Failed to store reaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	prometheus.RecordMessageOperation("react")
	return c.NoContent(http.StatusNoContent)
}
